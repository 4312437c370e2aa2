package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job выполняет одну итерацию задания. Контекст отменяется при остановке планировщика.
type Job func(ctx context.Context)

// Scheduler запускает задание по cron-выражению в заданном часовом поясе.
// Если предыдущий запуск ещё идёт, очередной пропускается.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	expr     string
	location *time.Location

	mu      sync.Mutex
	entryID cron.EntryID
}

// New создаёт планировщик для стандартного пятипольного выражения
// (поддерживаются и дескрипторы вида "@every 8h").
func New(expr string, loc *time.Location) (*Scheduler, error) {
	expr = strings.TrimSpace(expr)
	if loc == nil {
		loc = time.UTC
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
		expr:     expr,
		location: loc,
	}, nil
}

// Next возвращает время ближайшего запуска после t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Run регистрирует задание и блокируется до отмены ctx.
// После отмены ждёт завершения уже начатого запуска.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	s.mu.Lock()
	if s.entryID != 0 {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.entryID = s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		job(ctx)
	}))
	s.mu.Unlock()

	s.cron.Start()
	log.WithFields(log.Fields{
		"schedule": s.expr,
		"next":     s.Next(time.Now()).Format(time.RFC3339),
	}).Info("Scheduler started")

	<-ctx.Done()

	log.Info("Stopping scheduler, waiting for running job")
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.cron.Remove(s.entryID)
	s.entryID = 0
	s.mu.Unlock()
	return nil
}
