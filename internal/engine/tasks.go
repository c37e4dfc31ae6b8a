package engine

import (
	"context"
	"fmt"
	"strings"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/repo"
	"teamdesk/internal/validation"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string          `json:"title" validate:"notblank,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	AssigneeID  string          `json:"assigned_to" validate:"notblank"`
	Priority    domain.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     string          `json:"due_date" validate:"omitempty,isodate"`
}

// CreateTask assigns a new pending task to an approved member. Display
// names are copied onto the task and not kept in sync afterwards.
func (e Engine) CreateTask(ctx context.Context, actorID string, opts TaskCreateOptions) (domain.Task, error) {
	const op = "create task"
	if err := validation.Check(op, opts); err != nil {
		return domain.Task{}, err
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireApproved(actor, op); err != nil {
		return domain.Task{}, err
	}
	assignee, err := e.Repo.GetMember(ctx, strings.TrimSpace(opts.AssigneeID))
	if isNotFound(err) || (err == nil && !assignee.IsApproved) {
		return domain.Task{}, apperr.Validation(op, "assignee must be an approved member")
	}
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	now := e.now()
	t := domain.Task{
		ID:             docstore.NewID(),
		Title:          strings.TrimSpace(opts.Title),
		Description:    strings.TrimSpace(opts.Description),
		AssignedTo:     assignee.ID,
		AssignedToName: assignee.Name,
		AssignedBy:     actor.ID,
		AssignedByName: actor.Name,
		Status:         domain.TaskPending,
		Priority:       opts.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.DueDate != "" {
		due := opts.DueDate
		t.DueDate = &due
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	e.record(ctx, actor, domain.ActionTaskCreate, audit.Details{
		"taskTitle":      t.Title,
		"assignedTo":     t.AssignedTo,
		"assignedToName": t.AssignedToName,
	})
	return t, nil
}

func ensureTaskTransition(oldStatus, newStatus domain.TaskStatus, strict bool) error {
	if newStatus == domain.TaskPending {
		return apperr.Validation("change task status", "a task cannot move back to pending")
	}
	if !strict {
		return nil
	}
	switch oldStatus {
	case domain.TaskPending:
		if newStatus == domain.TaskInProgress || newStatus == domain.TaskCompleted {
			return nil
		}
	case domain.TaskInProgress:
		if newStatus == domain.TaskCompleted {
			return nil
		}
	}
	return apperr.Validation("change task status", fmt.Sprintf("invalid task status transition %s -> %s", oldStatus, newStatus))
}

// ChangeTaskStatus moves a task to status. Only the assignee may do this.
func (e Engine) ChangeTaskStatus(ctx context.Context, actorID, taskID string, status domain.TaskStatus) (domain.Task, error) {
	const op = "change task status"
	if !status.Valid() {
		return domain.Task{}, apperr.Validation(op, "status must be pending, in-progress or completed")
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireAssignee(actor, t, op); err != nil {
		return domain.Task{}, err
	}
	if t.Status == status {
		return t, nil
	}
	if err := ensureTaskTransition(t.Status, status, e.Options.StrictTaskStatus); err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	if err := e.Repo.UpdateTask(ctx, t.ID, repo.TaskUpdate{Status: &status, UpdatedAt: now}); err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	t.Status = status
	t.UpdatedAt = now
	e.record(ctx, actor, domain.ActionTaskStatus, audit.Details{
		"taskTitle": t.Title,
		"from":      string(from),
		"to":        string(status),
	})
	return t, nil
}

// TaskEdit lists task fields to change. An empty DueDate clears it.
type TaskEdit struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    *domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *string          `json:"due_date,omitempty" validate:"omitempty,isodate|eq="`
}

// EditTask changes the task's details. Only the creator may do this.
func (e Engine) EditTask(ctx context.Context, actorID, taskID string, edit TaskEdit) (domain.Task, error) {
	const op = "edit task"
	if err := validation.Check(op, edit); err != nil {
		return domain.Task{}, err
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireCreator(actor, t, op); err != nil {
		return domain.Task{}, err
	}
	upd := repo.TaskUpdate{UpdatedAt: e.now()}
	var changes []string
	if edit.Title != nil && strings.TrimSpace(*edit.Title) != t.Title {
		v := strings.TrimSpace(*edit.Title)
		upd.Title = &v
		changes = append(changes, "title")
	}
	if edit.Description != nil && strings.TrimSpace(*edit.Description) != t.Description {
		v := strings.TrimSpace(*edit.Description)
		upd.Description = &v
		changes = append(changes, "description")
	}
	if edit.Priority != nil && *edit.Priority != t.Priority {
		upd.Priority = edit.Priority
		changes = append(changes, "priority")
	}
	if edit.DueDate != nil {
		cur := ""
		if t.DueDate != nil {
			cur = *t.DueDate
		}
		if *edit.DueDate != cur {
			upd.DueDate = edit.DueDate
			changes = append(changes, "due_date")
		}
	}
	if len(changes) == 0 {
		return t, nil
	}
	if err := e.Repo.UpdateTask(ctx, t.ID, upd); err != nil {
		return domain.Task{}, err
	}
	updated, err := e.Repo.GetTask(ctx, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	e.record(ctx, actor, domain.ActionTaskEdit, audit.Details{
		"taskTitle": updated.Title,
		"changes":   changes,
	})
	return updated, nil
}

// DeleteTask removes a task. Only the creator may do this.
func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	const op = "delete task"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := auth.RequireCreator(actor, t, op); err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, t.ID); err != nil {
		return err
	}
	e.record(ctx, actor, domain.ActionTaskDelete, audit.Details{"taskTitle": t.Title})
	return nil
}

// TaskFilter narrows the task list. Status is a task status or "all";
// Assignee is a member id, "mine" or "all". Both filters must match.
type TaskFilter struct {
	Status   string
	Assignee string
}

func (e Engine) ListTasks(ctx context.Context, actorID string, f TaskFilter) ([]domain.Task, error) {
	const op = "list tasks"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireApproved(actor, op); err != nil {
		return nil, err
	}
	var q repo.TaskQuery
	switch s := strings.TrimSpace(f.Status); s {
	case "", "all":
	default:
		st, err := domain.ParseTaskStatus(s)
		if err != nil {
			return nil, apperr.Validation(op, "status must be all, pending, in-progress or completed")
		}
		q.Status = st
	}
	switch a := strings.TrimSpace(f.Assignee); a {
	case "", "all":
	case "mine":
		q.AssignedTo = actor.ID
	default:
		q.AssignedTo = a
	}
	return e.Repo.ListTasks(ctx, q)
}
