package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"jobmail-engine/internal/sites"
)

var ErrBadStatus = errors.New("unexpected http status")

const maxPageBytes = 8 << 20

// Fetcher loads the raw HTML of a job page.
type Fetcher interface {
	Fetch(ctx context.Context, target string, site sites.Site, userAgent string) (string, error)
}

// HTTPFetcher is a plain HTTP client with a cookie jar that keeps per-host
// state across requests. Configured site cookies are seeded into the jar the
// first time a domain is seen.
type HTTPFetcher struct {
	client *http.Client
	jar    http.CookieJar

	mu     sync.Mutex
	seeded map[string]bool
}

func NewHTTPFetcher(timeout time.Duration) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout, Jar: jar},
		jar:    jar,
		seeded: map[string]bool{},
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, target string, site sites.Site, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,es;q=0.8")
	for k, v := range site.Headers {
		req.Header.Set(k, v)
	}
	f.seedCookies(req.URL, site)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func (f *HTTPFetcher) seedCookies(u *url.URL, site sites.Site) {
	if len(site.Cookies) == 0 || site.Domain == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seeded[site.Domain] {
		return
	}
	f.seeded[site.Domain] = true

	cookies := make([]*http.Cookie, 0, len(site.Cookies))
	for name, value := range site.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/", Domain: site.Domain})
	}
	f.jar.SetCookies(u, cookies)
}
