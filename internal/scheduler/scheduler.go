package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"famcal/internal/storage"
	"famcal/pkg/logx"
)

// Store is what a scheduler cycle needs from persistence.
type Store interface {
	MarkerStore
	TasksInWindow(ctx context.Context, from, to string) ([]storage.Task, error)
	GetUser(ctx context.Context, id int64) (storage.User, error)
	PruneDispatchMarkers(ctx context.Context, cutoff string) (int64, error)
}

// Notifier delivers a reminder to a user. Best effort; implementations carry
// their own timeout so one stuck send cannot stall a cycle.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// markerPruneSpec runs the dispatch-marker GC once a day, off-peak.
const markerPruneSpec = "30 4 * * *"

// Service is the perpetual reminder loop: sleep, scan, dispatch. Strictly
// sequential with itself; concurrent process instances are safe because
// dedup lives in the gate's atomic admit, not here.
type Service struct {
	store    Store
	gate     *Gate
	notifier Notifier
	log      logx.Logger

	interval time.Duration
	now      func() time.Time
}

func New(store Store, notifier Notifier, interval time.Duration, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		gate:     NewGate(store),
		notifier: notifier,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes cycles until ctx is cancelled: one immediately, then one per
// interval. A failed or panicking cycle is logged and retried next tick; the
// loop itself never exits on error.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("notification scheduler started", logx.Duration("interval", s.interval))

	c := cron.New()
	if _, err := c.AddFunc(markerPruneSpec, func() { s.pruneMarkers(ctx) }); err != nil {
		s.log.Error("marker prune job not scheduled", logx.Err(err))
	}
	c.Start()
	defer c.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("notification scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler cycle panicked", logx.Any("panic", r))
		}
	}()

	start := time.Now()
	now := s.now()
	from := now.Format(storage.DateLayout)
	to := now.AddDate(0, 0, 1).Format(storage.DateLayout)

	tasks, err := s.store.TasksInWindow(ctx, from, to)
	if err != nil {
		// Store outage: skip this cycle, the next tick retries.
		s.log.Error("task scan failed", logx.Err(err))
		return
	}

	sent := 0
	for _, t := range tasks {
		n, err := s.processTask(ctx, now, t)
		sent += n
		if err != nil {
			s.log.Warn("task reminder processing failed",
				logx.Int64("task_id", t.ID), logx.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}

	if sent > 0 {
		s.log.Info("reminders dispatched",
			logx.Int("count", sent),
			logx.Int("tasks", len(tasks)),
			logx.Duration("dur", time.Since(start)))
	}
}

// processTask evaluates one task and dispatches every admitted trigger.
//
// Marker creation is the commit point: a send that fails after Admit is
// logged and dropped, never retried. Delivery is at most once.
func (s *Service) processTask(ctx context.Context, now time.Time, t storage.Task) (int, error) {
	triggers, err := Evaluate(now, t)
	if err != nil || len(triggers) == 0 {
		return 0, err
	}

	user, err := s.store.GetUser(ctx, t.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("owner %d lookup: %w", t.OwnerID, err)
	}
	if !user.NotificationsEnabled {
		s.log.Debug("reminders muted by user", logx.Int64("user_id", t.OwnerID))
		return 0, nil
	}

	sent := 0
	for _, tr := range triggers {
		admitted, err := s.gate.Admit(ctx, tr)
		if err != nil {
			return sent, fmt.Errorf("admit %s: %w", tr.Kind, err)
		}
		if !admitted {
			s.log.Debug("duplicate trigger suppressed",
				logx.Int64("task_id", tr.TaskID), logx.String("kind", string(tr.Kind)))
			continue
		}

		if err := s.notifier.Send(ctx, t.OwnerID, reminderText(t)); err != nil {
			s.log.Warn("reminder send failed after admit",
				logx.Int64("task_id", tr.TaskID),
				logx.String("kind", string(tr.Kind)),
				logx.Err(err))
			continue
		}
		sent++
		s.log.Info("reminder sent",
			logx.Int64("task_id", tr.TaskID),
			logx.Int64("user_id", t.OwnerID),
			logx.String("kind", string(tr.Kind)))
	}
	return sent, nil
}

func (s *Service) pruneMarkers(ctx context.Context) {
	cutoff := s.now().Format(storage.DateLayout)
	n, err := s.store.PruneDispatchMarkers(ctx, cutoff)
	if err != nil {
		s.log.Warn("dispatch marker prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("dispatch markers pruned", logx.Int64("count", n))
	}
}

// reminderText renders the push message for a task.
func reminderText(t storage.Task) string {
	date := t.Date
	if d, err := time.Parse(storage.DateLayout, t.Date); err == nil {
		date = d.Format("02.01.2006")
	}
	if t.StartTime != nil {
		return fmt.Sprintf("⏰ Reminder: %s\n📅 %s at %s", t.Title, date, *t.StartTime)
	}
	return fmt.Sprintf("⏰ Reminder: %s\n📅 %s", t.Title, date)
}
