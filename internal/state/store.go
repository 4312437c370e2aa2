package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/news"
)

// fileRecord хранит запись JSON-файла. sent_at хранится строкой, чтобы файлы,
// записанные старыми версиями (ISO без часового пояса), читались без ошибок.
type fileRecord struct {
	SentAt string `json:"sent_at"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// FileStore хранит отправленные новости в JSON-файле вида {url: {sent_at, title, url}}.
// Каждая операция читает файл целиком и при изменении перезаписывает его целиком.
type FileStore struct {
	path  string
	clock func() time.Time
}

// NewFileStore создаёт новый файловый стор.
func NewFileStore(path string, clock func() time.Time) *FileStore {
	if clock == nil {
		clock = time.Now
	}
	return &FileStore{path: path, clock: clock}
}

// Init создаёт каталог и пустой файл {}, если файла ещё нет.
func (s *FileStore) Init(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat state file: %w", err)
	}

	if err := s.save(map[string]news.NotificationRecord{}); err != nil {
		return err
	}
	log.WithField("path", s.path).Info("Created new storage file")
	return nil
}

// IsSent проверяет, отправлялась ли уже новость с таким идентификатором.
func (s *FileStore) IsSent(ctx context.Context, id string) (bool, error) {
	records := s.load()
	_, ok := records[id]
	return ok, nil
}

// MarkSent записывает все новости как отправленные в момент at (или сейчас, если at нулевое).
func (s *FileStore) MarkSent(ctx context.Context, articles []news.Article, at time.Time) error {
	if at.IsZero() {
		at = s.clock()
	}

	records := s.load()
	at = at.UTC()
	marked := 0
	for _, article := range articles {
		if article.ID == "" {
			log.WithField("title", article.Title).Warn("Cannot mark article as sent: missing URL")
			continue
		}
		records[article.ID] = news.NotificationRecord{
			SentAt: at,
			Title:  article.Title,
			URL:    article.ID,
		}
		marked++
	}

	if err := s.save(records); err != nil {
		return err
	}

	log.WithField("count", marked).Info("Marked articles as sent")
	return nil
}

// Cleanup удаляет записи старше retentionDays дней и возвращает их количество.
// Файл перезаписывается только если что-то удалено.
func (s *FileStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	records := s.load()
	cutoff := s.clock().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	removed := 0
	for id, rec := range records {
		if rec.SentAt.Before(cutoff) {
			delete(records, id)
			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := s.save(records); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{"removed": removed, "days": retentionDays}).Info("Cleaned up old entries")
	return removed, nil
}

// Stats возвращает количество записей и самую старую/новую дату отправки.
// Записи с нераспознанной датой учитываются в Total, но не в Oldest/Newest.
func (s *FileStore) Stats(ctx context.Context) (news.TrackerStats, error) {
	records := s.load()
	stats := news.TrackerStats{Total: len(records)}

	var oldest, newest time.Time
	for _, rec := range records {
		if rec.SentAt.IsZero() {
			continue
		}
		if oldest.IsZero() || rec.SentAt.Before(oldest) {
			oldest = rec.SentAt
		}
		if newest.IsZero() || rec.SentAt.After(newest) {
			newest = rec.SentAt
		}
	}
	if !oldest.IsZero() {
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats, nil
}

// load читает файл. Любая ошибка чтения или разбора даёт пустое хранилище:
// пайплайн должен продолжать работу, риск повторной отправки допустим.
func (s *FileStore) load() map[string]news.NotificationRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", s.path).Error("Error loading sent articles, using empty store")
		}
		return map[string]news.NotificationRecord{}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]news.NotificationRecord{}
	}

	var records map[string]fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// Повреждённый файл сохраняем рядом для анализа
		brokenPath := s.path + ".broken"
		_ = os.WriteFile(brokenPath, data, 0644)
		log.WithError(err).WithFields(log.Fields{
			"path":   s.path,
			"broken": brokenPath,
		}).Error("Error decoding JSON store, returning empty store")
		return map[string]news.NotificationRecord{}
	}

	out := make(map[string]news.NotificationRecord, len(records))
	for id, rec := range records {
		out[id] = news.NotificationRecord{
			SentAt: parseTimestamp(rec.SentAt),
			Title:  rec.Title,
			URL:    rec.URL,
		}
	}
	return out
}

// save записывает файл атомарно (через временный файл).
func (s *FileStore) save(records map[string]news.NotificationRecord) error {
	out := make(map[string]fileRecord, len(records))
	for id, rec := range records {
		out[id] = fileRecord{
			SentAt: formatTimestamp(rec.SentAt),
			Title:  rec.Title,
			URL:    rec.URL,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}

	// rename атомарен на большинстве файловых систем
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}

	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTimestamp понимает RFC3339 и ISO без зоны (считается UTC).
// Нераспознанное значение даёт нулевое время: такая запись удалится при ближайшей очистке.
func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
