package state

import (
	"context"
	"fmt"
	"time"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

// Tracker задаёт общий контракт хранилищ отправленных новостей.
type Tracker interface {
	IsSent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, articles []news.Article, at time.Time) error
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	Stats(ctx context.Context) (news.TrackerStats, error)
	Close() error
}

// Open создаёт хранилище по настройкам storage.
func Open(ctx context.Context, cfg config.Storage, clock func() time.Time) (Tracker, error) {
	switch cfg.Driver {
	case config.DriverJSON, "":
		store := NewFileStore(cfg.Path, clock)
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		return OpenSQLiteStore(cfg.Path, clock)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStorageDriver, cfg.Driver)
	}
}

// Close ничего не делает: файл не держится открытым между операциями.
func (s *FileStore) Close() error {
	return nil
}
