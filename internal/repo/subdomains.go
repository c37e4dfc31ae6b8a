package repo

import (
	"context"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

func (r Repo) InsertSubDomain(ctx context.Context, s domain.SubDomain) error {
	return r.insert(ctx, docstore.SubDomains, "subdomain", s)
}

func (r Repo) GetSubDomain(ctx context.Context, id string) (domain.SubDomain, error) {
	var s domain.SubDomain
	err := r.get(ctx, docstore.SubDomains, id, "subdomain", &s)
	return s, err
}

func (r Repo) DeleteSubDomain(ctx context.Context, id string) error {
	return r.delete(ctx, docstore.SubDomains, id, "subdomain")
}

func (r Repo) ListSubDomains(ctx context.Context) ([]domain.SubDomain, error) {
	return list[domain.SubDomain](ctx, r, docstore.SubDomains, "subdomains", docstore.Query{}.Ordered("created_at", true))
}
