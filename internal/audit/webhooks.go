package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
	"teamdesk/internal/logging"
	"teamdesk/internal/metrics"
	"teamdesk/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Dispatcher polls the activity log and posts new records to configured
// webhooks. Each webhook keeps its own cursor, starting at the newest record
// present when the dispatcher first sees it, and pages forward from it.
type Dispatcher struct {
	Repo     repo.Repo
	Webhooks []config.Webhook
	Client   *http.Client
	Interval time.Duration
	Logger   logging.Logger
	Metrics  *metrics.Metrics

	mu      sync.Mutex
	cursors map[int]webhookCursor
}

// webhookCursor is the timestamp of the last delivered record plus the ids
// already delivered at exactly that timestamp.
type webhookCursor struct {
	ts   string
	seen map[string]struct{}
}

func (c webhookCursor) covers(rec domain.ActivityRecord) bool {
	if rec.Timestamp != c.ts {
		return rec.Timestamp < c.ts
	}
	_, ok := c.seen[rec.ID]
	return ok
}

func NewDispatcher(r repo.Repo, hooks []config.Webhook, log logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		Repo:     r,
		Webhooks: hooks,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		Interval: defaultWebhookInterval,
		Logger:   log,
		Metrics:  m,
		cursors:  make(map[int]webhookCursor),
	}
}

// Enabled reports whether any webhook would receive deliveries.
func (d *Dispatcher) Enabled() bool {
	for _, h := range d.Webhooks {
		if h.Enabled && strings.TrimSpace(h.URL) != "" {
			return true
		}
	}
	return false
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if !d.Enabled() {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) log() logging.Logger {
	if d.Logger == nil {
		return logging.Nop()
	}
	return d.Logger
}

func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.Webhooks {
		if !hook.Enabled || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.Webhook) {
	filter := newActionFilter(hook.Actions)
	for {
		cur, ok := d.cursorFor(ctx, idx)
		if !ok {
			return
		}
		limit := defaultWebhookBatch + len(cur.seen)
		recs, err := d.Repo.ActivitiesSince(ctx, cur.ts, limit)
		if err != nil {
			d.log().Warnw("webhook: fetch activities failed", "error", err)
			return
		}
		fresh := 0
		for _, rec := range recs {
			if cur.covers(rec) {
				continue
			}
			fresh++
			if filter.match(string(rec.Action)) {
				if err := d.post(ctx, hook, rec); err != nil {
					d.log().Warnw("webhook: delivery failed", "url", hook.URL, "id", rec.ID, "error", err)
					d.Metrics.ObserveSinkFailure("webhook")
					return
				}
			}
			d.advance(idx, rec)
		}
		if fresh == 0 || len(recs) < limit {
			return
		}
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (webhookCursor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]webhookCursor)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur.clone(), true
	}
	cur := webhookCursor{seen: map[string]struct{}{}}
	latest, err := d.Repo.ListActivities(ctx, "", 1)
	if err != nil {
		d.log().Warnw("webhook: init cursor failed", "error", err)
		return webhookCursor{}, false
	}
	if len(latest) > 0 {
		cur.ts = latest[0].Timestamp
		same, err := d.Repo.ActivitiesSince(ctx, cur.ts, 0)
		if err != nil {
			d.log().Warnw("webhook: init cursor failed", "error", err)
			return webhookCursor{}, false
		}
		for _, rec := range same {
			if rec.Timestamp == cur.ts {
				cur.seen[rec.ID] = struct{}{}
			}
		}
	}
	d.cursors[idx] = cur
	return cur.clone(), true
}

func (c webhookCursor) clone() webhookCursor {
	seen := make(map[string]struct{}, len(c.seen))
	for id := range c.seen {
		seen[id] = struct{}{}
	}
	return webhookCursor{ts: c.ts, seen: seen}
}

func (d *Dispatcher) advance(idx int, rec domain.ActivityRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.cursors[idx]
	if rec.Timestamp != cur.ts || cur.seen == nil {
		cur = webhookCursor{ts: rec.Timestamp, seen: map[string]struct{}{}}
	}
	cur.seen[rec.ID] = struct{}{}
	d.cursors[idx] = cur
}

func (d *Dispatcher) post(ctx context.Context, hook config.Webhook, rec domain.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.Timeout > 0 && hook.Timeout != client.Timeout {
		client = &http.Client{Timeout: hook.Timeout, Transport: client.Transport}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Teamdesk-Action", string(rec.Action))
	req.Header.Set("X-Teamdesk-Delivery", rec.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Teamdesk-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if key := strings.TrimSpace(a); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
