// Package audit appends activity records for workflow transitions and fans
// them out to external sinks.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"teamdesk/internal/domain"
	"teamdesk/internal/logging"
	"teamdesk/internal/metrics"
	"teamdesk/internal/repo"
)

const DefaultListLimit = 100

type Details map[string]any

// Sink receives every persisted record. Delivery is best-effort.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec domain.ActivityRecord) error
}

type Writer struct {
	Repo      repo.Repo
	Now       func() time.Time
	Logger    logging.Logger
	Metrics   *metrics.Metrics
	Sinks     []Sink
	ListLimit int

	mu   sync.Mutex
	last time.Time
}

func (w *Writer) log(ctx context.Context) logging.Logger {
	return logging.From(ctx, w.Logger)
}

// stamp returns a timestamp strictly after every one handed out before, so
// records from one writer keep their order even when the clock stalls.
func (w *Writer) stamp() time.Time {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ts := now().UTC()
	if !ts.After(w.last) {
		ts = w.last.Add(time.Nanosecond)
	}
	w.last = ts
	return ts
}

// Record appends an activity record. Failures are logged and counted but
// never returned: the transition that triggered the record stands.
func (w *Writer) Record(ctx context.Context, actorID, actorName string, action domain.Action, details Details) {
	log := w.log(ctx)
	if !action.Valid() {
		log.Errorw("activity not recorded: unknown action", "action", action, "actor_id", actorID)
		w.Metrics.ObserveAuditFailure()
		return
	}
	ts := w.stamp()
	id := ksuid.New()
	if k, err := ksuid.NewRandomWithTime(ts); err == nil {
		id = k
	}
	if details == nil {
		details = Details{}
	}
	rec := domain.ActivityRecord{
		ID:        id.String(),
		ActorID:   actorID,
		ActorName: actorName,
		Action:    action,
		Details:   details,
		Timestamp: domain.FormatTime(ts),
	}
	if err := w.Repo.AppendActivity(ctx, rec); err != nil {
		log.Errorw("activity not recorded", "action", action, "actor_id", actorID, "error", err)
		w.Metrics.ObserveAuditFailure()
		return
	}
	log.Debugw("activity recorded", "action", action, "actor_id", actorID, "id", rec.ID)
	for _, s := range w.Sinks {
		if err := s.Deliver(ctx, rec); err != nil {
			log.Warnw("activity sink delivery failed", "sink", s.Name(), "id", rec.ID, "error", err)
			w.Metrics.ObserveSinkFailure(s.Name())
		}
	}
}

// Recent returns the newest records first, optionally only those of action.
// A non-positive limit uses the configured list limit.
func (w *Writer) Recent(ctx context.Context, action domain.Action, limit int) ([]domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = w.ListLimit
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return w.Repo.ListActivities(ctx, action, limit)
}
