package repo

import (
	"context"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

// TaskUpdate lists task fields to change. An empty DueDate clears the due date.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	DueDate     *string
	Status      *domain.TaskStatus
	UpdatedAt   string
}

func (u TaskUpdate) doc() docstore.Doc {
	d := docstore.Doc{}
	if u.Title != nil {
		d["title"] = *u.Title
	}
	if u.Description != nil {
		d["description"] = *u.Description
	}
	if u.Priority != nil {
		d["priority"] = string(*u.Priority)
	}
	if u.DueDate != nil {
		d["due_date"] = nullable(*u.DueDate)
	}
	if u.Status != nil {
		d["status"] = string(*u.Status)
	}
	if len(d) > 0 && u.UpdatedAt != "" {
		d["updated_at"] = u.UpdatedAt
	}
	return d
}

type TaskQuery struct {
	Status     domain.TaskStatus
	AssignedTo string
	AssignedBy string
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	return r.insert(ctx, docstore.Tasks, "task", t)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := r.get(ctx, docstore.Tasks, id, "task", &t)
	return t, err
}

func (r Repo) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	return r.update(ctx, docstore.Tasks, id, "task", u.doc())
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	return r.delete(ctx, docstore.Tasks, id, "task")
}

// ListTasks returns tasks newest first.
func (r Repo) ListTasks(ctx context.Context, tq TaskQuery) ([]domain.Task, error) {
	q := docstore.Query{}.Ordered("created_at", true)
	if tq.Status != "" {
		q = q.WhereEquals("status", string(tq.Status))
	}
	if tq.AssignedTo != "" {
		q = q.WhereEquals("assigned_to", tq.AssignedTo)
	}
	if tq.AssignedBy != "" {
		q = q.WhereEquals("assigned_by", tq.AssignedBy)
	}
	return list[domain.Task](ctx, r, docstore.Tasks, "tasks", q)
}
