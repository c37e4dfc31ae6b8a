// Package engine runs the membership approval workflow, the task tracker and
// the subdomain registry. Every successful transition writes exactly one
// activity record.
package engine

import (
	"context"
	"errors"
	"time"

	"teamdesk/internal/apperr"
	"teamdesk/internal/audit"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/logging"
	"teamdesk/internal/metrics"
	"teamdesk/internal/repo"
)

// SystemActor is the actor id used for transitions made by operators
// from the command line rather than by a member.
const SystemActor = "system"

type Options struct {
	// StrictTaskStatus makes completed terminal and only allows forward moves.
	StrictTaskStatus bool
}

type Engine struct {
	Repo    repo.Repo
	Audit   *audit.Writer
	Metrics *metrics.Metrics
	// Identities removes the sign-in identity of a rejected or deleted
	// member. Nil leaves identities alone.
	Identities IdentityRemover
	Options    Options
	Now        func() time.Time
	Logger     logging.Logger
}

// IdentityRemover deletes an identity from the credential store.
type IdentityRemover interface {
	Remove(ctx context.Context, id string) error
}

func New(r repo.Repo, w *audit.Writer, m *metrics.Metrics) Engine {
	return Engine{
		Repo:    r,
		Audit:   w,
		Metrics: m,
		Now:     time.Now,
		Logger:  logging.Nop(),
	}
}

func (e Engine) now() string {
	if e.Now != nil {
		return domain.FormatTime(e.Now())
	}
	return domain.FormatTime(time.Now())
}

// actor re-reads the acting member so guards never see a stale role.
func (e Engine) actor(ctx context.Context, actorID, action string) (domain.MemberProfile, error) {
	if actorID == "" {
		return domain.MemberProfile{}, apperr.New(apperr.KindUnauthenticated, action, "")
	}
	p, err := e.Repo.GetMember(ctx, actorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.MemberProfile{}, auth.ForbiddenError{Action: action, Reason: "no member profile"}
	}
	return p, err
}

func (e Engine) record(ctx context.Context, actor domain.MemberProfile, action domain.Action, details audit.Details) {
	e.Metrics.ObserveTransition(string(action))
	if e.Audit == nil {
		return
	}
	e.Audit.Record(ctx, actor.ID, actor.Name, action, details)
}

// Activities returns the newest activity records, optionally of one action.
func (e Engine) Activities(ctx context.Context, actorID string, action domain.Action, limit int) ([]domain.ActivityRecord, error) {
	actor, err := e.actor(ctx, actorID, "view activity")
	if err != nil {
		return nil, err
	}
	if err := auth.RequireApproved(actor, "view activity"); err != nil {
		return nil, err
	}
	if action != "" && !action.Valid() {
		return nil, apperr.Validation("list activity", "unknown action "+string(action))
	}
	if e.Audit == nil {
		return e.Repo.ListActivities(ctx, action, audit.DefaultListLimit)
	}
	return e.Audit.Recent(ctx, action, limit)
}

// Dashboard summarises members, subdomains, open tasks and recent activity.
func (e Engine) Dashboard(ctx context.Context, actorID string) (domain.Dashboard, error) {
	actor, err := e.actor(ctx, actorID, "view dashboard")
	if err != nil {
		return domain.Dashboard{}, err
	}
	if err := auth.RequireApproved(actor, "view dashboard"); err != nil {
		return domain.Dashboard{}, err
	}
	stats, err := e.MemberStats(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	subs, err := e.Repo.ListSubDomains(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskQuery{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	d := domain.Dashboard{Members: stats, SubDomains: len(subs)}
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			continue
		}
		d.OpenTasks++
		if t.AssignedTo == actor.ID {
			d.MyOpenTasks++
		}
	}
	d.RecentActivity, err = e.Repo.ListActivities(ctx, "", 5)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return d, nil
}
