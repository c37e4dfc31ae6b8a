package engine

import (
	"context"
	"strings"

	"teamdesk/internal/audit"
	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/validation"
)

type SubDomainOptions struct {
	Name   string                 `json:"name" validate:"notblank,max=100"`
	URL    string                 `json:"url" validate:"required,url"`
	Type   domain.SubDomainType   `json:"type" validate:"omitempty,oneof=Frontend Backend API Other"`
	Status domain.SubDomainStatus `json:"status" validate:"omitempty,oneof=Live Maintenance Down"`
}

// AddSubDomain registers an endpoint. Type defaults to Frontend and status to Live.
func (e Engine) AddSubDomain(ctx context.Context, actorID string, opts SubDomainOptions) (domain.SubDomain, error) {
	const op = "add subdomain"
	opts.URL = strings.TrimSpace(opts.URL)
	if err := validation.Check(op, opts); err != nil {
		return domain.SubDomain{}, err
	}
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return domain.SubDomain{}, err
	}
	if err := auth.RequireApproved(actor, op); err != nil {
		return domain.SubDomain{}, err
	}
	if opts.Type == "" {
		opts.Type = domain.SubDomainFrontend
	}
	if opts.Status == "" {
		opts.Status = domain.SubDomainLive
	}
	s := domain.SubDomain{
		ID:        docstore.NewID(),
		Name:      strings.TrimSpace(opts.Name),
		URL:       opts.URL,
		Type:      opts.Type,
		Status:    opts.Status,
		CreatedBy: actor.ID,
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertSubDomain(ctx, s); err != nil {
		return domain.SubDomain{}, err
	}
	e.record(ctx, actor, domain.ActionSubDomainAdd, audit.Details{
		"subdomainName": s.Name,
		"subdomainUrl":  s.URL,
	})
	return s, nil
}

func (e Engine) ListSubDomains(ctx context.Context, actorID string) ([]domain.SubDomain, error) {
	actor, err := e.actor(ctx, actorID, "list subdomains")
	if err != nil {
		return nil, err
	}
	if err := auth.RequireApproved(actor, "list subdomains"); err != nil {
		return nil, err
	}
	return e.Repo.ListSubDomains(ctx)
}

func (e Engine) DeleteSubDomain(ctx context.Context, actorID, id string) error {
	const op = "delete subdomain"
	actor, err := e.actor(ctx, actorID, op)
	if err != nil {
		return err
	}
	if err := auth.RequireApproved(actor, op); err != nil {
		return err
	}
	s, err := e.Repo.GetSubDomain(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteSubDomain(ctx, id); err != nil {
		return err
	}
	e.record(ctx, actor, domain.ActionSubDomainDelete, audit.Details{
		"subdomainName": s.Name,
		"subdomainUrl":  s.URL,
	})
	return nil
}
