package repo

import (
	"context"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

func (r Repo) AppendActivity(ctx context.Context, rec domain.ActivityRecord) error {
	return r.insert(ctx, docstore.Activities, "activity", rec)
}

// ListActivities returns the newest records first. An empty action matches all.
func (r Repo) ListActivities(ctx context.Context, action domain.Action, limit int) ([]domain.ActivityRecord, error) {
	q := docstore.Query{}.Ordered("timestamp", true).Limited(limit)
	if action != "" {
		q = q.WhereEquals("action", string(action))
	}
	return list[domain.ActivityRecord](ctx, r, docstore.Activities, "activities", q)
}

// ActivitiesSince returns records stamped at or after since, oldest first.
func (r Repo) ActivitiesSince(ctx context.Context, since string, limit int) ([]domain.ActivityRecord, error) {
	q := docstore.Query{}.Ordered("timestamp", false).Limited(limit)
	if since != "" {
		q = q.WhereAtLeast("timestamp", since)
	}
	return list[domain.ActivityRecord](ctx, r, docstore.Activities, "activities", q)
}
