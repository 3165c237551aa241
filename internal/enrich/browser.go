package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"jobmail-engine/internal/sites"
)

// Renderer loads a page in a real browser so client-side rendered boards
// produce their final DOM.
type Renderer interface {
	Render(ctx context.Context, target string, site sites.Site, userAgent string) (string, error)
}

// ChromeRenderer drives a headless Chrome per render. Each call gets a fresh
// browser so cookies never leak between sites.
type ChromeRenderer struct {
	ExecPath string
	// Settle is how long to wait after the body is ready for scripts to fill it in.
	Settle time.Duration
}

func (r *ChromeRenderer) Render(ctx context.Context, target string, site sites.Site, userAgent string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.DisableGPU,
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	tasks := chromedp.Tasks{network.Enable()}
	if len(site.Headers) > 0 {
		headers := network.Headers{}
		for k, v := range site.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	if len(site.Cookies) > 0 {
		cookies := make([]*network.CookieParam, 0, len(site.Cookies))
		for name, value := range site.Cookies {
			cookies = append(cookies, &network.CookieParam{Name: name, Value: value, URL: target, Path: "/"})
		}
		tasks = append(tasks, network.SetCookies(cookies))
	}

	settle := r.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}
	var html string
	tasks = append(tasks,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(browserCtx, tasks); err != nil {
		return "", fmt.Errorf("render %s: %w", target, err)
	}
	return html, nil
}
