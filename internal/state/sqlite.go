package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/maine/ai_news_alerts/internal/news"
)

const sentTable = "sent_articles"

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore служит индексированной альтернативой FileStore для больших историй.
// Контракт тот же, но ошибки запросов возвращаются вызывающему.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLiteStore применяет миграции и открывает базу.
func OpenSQLiteStore(path string, clock func() time.Time) (*SQLiteStore, error) {
	if clock == nil {
		clock = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if err := migrateUp(path); err != nil {
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite допускает только одного писателя
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, clock: clock}, nil
}

func migrateUp(path string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsSent проверяет наличие записи.
func (s *SQLiteStore) IsSent(ctx context.Context, id string) (bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("1").From(sentTable).Where(sb.Equal("identity", id)).Limit(1)
	query, args := sb.Build()

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query sent article: %w", err)
	}
	return true, nil
}

// MarkSent вставляет или перезаписывает записи одним запросом.
func (s *SQLiteStore) MarkSent(ctx context.Context, articles []news.Article, at time.Time) error {
	if at.IsZero() {
		at = s.clock()
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto(sentTable).Cols("identity", "title", "url", "sent_at")
	marked := 0
	for _, article := range articles {
		if article.ID == "" {
			log.WithField("title", article.Title).Warn("Cannot mark article as sent: missing URL")
			continue
		}
		ib.Values(article.ID, article.Title, article.ID, at.UTC().Unix())
		marked++
	}
	if marked == 0 {
		return nil
	}

	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert sent articles: %w", err)
	}

	log.WithField("count", marked).Info("Marked articles as sent")
	return nil
}

// Cleanup удаляет записи старше retentionDays дней.
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := s.clock().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom(sentTable).Where(del.LessThan("sent_at", cutoff.UTC().Unix()))
	query, args := del.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if removed > 0 {
		log.WithFields(log.Fields{"removed": removed, "days": retentionDays}).Info("Cleaned up old entries")
	}
	return int(removed), nil
}

// Stats возвращает количество записей и крайние даты отправки.
func (s *SQLiteStore) Stats(ctx context.Context) (news.TrackerStats, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)", "MIN(sent_at)", "MAX(sent_at)").From(sentTable)
	query, args := sb.Build()

	var (
		total          int
		oldest, newest sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &oldest, &newest); err != nil {
		return news.TrackerStats{}, fmt.Errorf("query stats: %w", err)
	}

	stats := news.TrackerStats{Total: total}
	if total > 0 && oldest.Valid && newest.Valid {
		o := time.Unix(oldest.Int64, 0).UTC()
		n := time.Unix(newest.Int64, 0).UTC()
		stats.Oldest = &o
		stats.Newest = &n
	}
	return stats, nil
}
