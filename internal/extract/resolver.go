package extract

import (
	"context"
	"log/slog"
	"strings"

	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/sites"
)

// EmployerResolver names the employer behind a job-board host.
type EmployerResolver interface {
	ResolveEmployer(ctx context.Context, host string) string
}

// EmployerDirectory is the get-or-create side of the employer store.
type EmployerDirectory interface {
	GetOrCreate(ctx context.Context, name string) (int64, error)
}

// SiteResolver maps hosts through the sites registry and makes sure the
// employer exists in the directory the first time it is seen.
type SiteResolver struct {
	Sites     *sites.Registry
	Directory EmployerDirectory
	Logger    *slog.Logger

	known map[string]bool
}

// domainLookup is implemented by directories that remember which host an
// employer was first seen on.
type domainLookup interface {
	FindByDomain(ctx context.Context, host string) (domain.Employer, error)
}

func (r *SiteResolver) ResolveEmployer(ctx context.Context, host string) string {
	s, ok := r.Sites.Lookup(host)
	if !ok || s.Employer == "" {
		if dl, ok := r.Directory.(domainLookup); ok && host != "" {
			if emp, err := dl.FindByDomain(ctx, strings.TrimPrefix(strings.ToLower(host), "www.")); err == nil {
				return emp.Name
			}
		}
		return domain.UnknownEmployer
	}
	if r.Directory == nil || r.known[s.Employer] {
		return s.Employer
	}
	if _, err := r.Directory.GetOrCreate(ctx, s.Employer); err != nil {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("employer create failed", "component", "extract", "employer", s.Employer, "err", err)
		return s.Employer
	}
	if r.known == nil {
		r.known = map[string]bool{}
	}
	r.known[s.Employer] = true
	return s.Employer
}

// MapResolver is an in-memory host -> employer table.
type MapResolver map[string]string

func (m MapResolver) ResolveEmployer(_ context.Context, host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if name, ok := m[host]; ok && name != "" {
		return name
	}
	return domain.UnknownEmployer
}
