// Package sites holds per-domain scraping settings: the employer a job board
// belongs to and the cookies and headers its pages expect.
package sites

import (
	"net/url"
	"strings"

	"jobmail-engine/internal/config"
)

type Site struct {
	Domain   string
	Employer string
	Headers  map[string]string
	Cookies  map[string]string
}

type Registry struct {
	sites []Site
}

func NewRegistry(cfgSites []config.Site) *Registry {
	r := &Registry{}
	seen := map[string]bool{}
	for _, s := range cfgSites {
		d := normalizeHost(s.Domain)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		r.sites = append(r.sites, Site{
			Domain:   d,
			Employer: strings.TrimSpace(s.Employer),
			Headers:  s.Headers,
			Cookies:  s.Cookies,
		})
	}
	return r
}

// Lookup matches host against configured domains, including subdomains.
// The longest matching domain wins.
func (r *Registry) Lookup(host string) (Site, bool) {
	if r == nil {
		return Site{}, false
	}
	host = normalizeHost(host)
	if host == "" {
		return Site{}, false
	}

	var best Site
	found := false
	for _, s := range r.sites {
		if host == s.Domain || strings.HasSuffix(host, "."+s.Domain) {
			if !found || len(s.Domain) > len(best.Domain) {
				best = s
				found = true
			}
		}
	}
	return best, found
}

// LookupURL is Lookup on the host of raw.
func (r *Registry) LookupURL(raw string) (Site, bool) {
	return r.Lookup(HostOf(raw))
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sites)
}

func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}
