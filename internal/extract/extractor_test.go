package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/config"
	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/sites"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestExtractor(r EmployerResolver) *Extractor {
	return New(Options{}, r, quietLogger())
}

func TestExtractSingleAlert(t *testing.T) {
	html := `<html><body><table><tr><td>
		<a href="https://board.example.com/jobs/view/42">Job: Backend Engineer (Remote)</a>
	</td></tr></table></body></html>`

	got := newTestExtractor(nil).Extract(context.Background(), html)
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, "Job: Backend Engineer (Remote)", p.Title)
	assert.Equal(t, "https://board.example.com/jobs/view/42", p.URL)
	assert.Equal(t, domain.LocationNotSpecified, p.Location)
	assert.Equal(t, "board.example.com", p.Domain)
	assert.Equal(t, domain.UnknownEmployer, p.Employer)
}

func TestExtractLocationAndDescriptionFromBlock(t *testing.T) {
	html := `<ul>
		<li><a href="https://board.example.com/empleo/9">Sr. Data Eng</a> Acme S.A. (Bogotá, Colombia) Remote friendly</li>
	</ul>`

	got := newTestExtractor(MapResolver{"board.example.com": "Board Co"}).Extract(context.Background(), html)
	require.Len(t, got, 1)
	assert.Equal(t, "Senior Data Engineer", got[0].Title)
	assert.Equal(t, "Bogotá, Colombia", got[0].Location)
	assert.Contains(t, got[0].Description, "Acme S.A.")
	assert.Equal(t, "Board Co", got[0].Employer)
}

func TestExtractSkipsExcludedAndNonJobLinks(t *testing.T) {
	html := `<div>
		<p><a href="https://board.example.com/jobs/unsubscribe">Unsubscribe from job alerts</a></p>
		<p><a href="https://board.example.com/jobs/profile">Update your job profile</a></p>
		<p><a href="/jobs/view/1">Relative job link</a></p>
		<p><a href="mailto:hr@example.com">Job questions</a></p>
		<p><a href="https://example.com/blog/post">Read our blog</a></p>
		<p><a href="https://example.com/careers/77">Data Analyst</a></p>
		<p><a href="https://example.com/x">Vacante: Contador</a></p>
		<p><a href="https://example.com/jobs/3">   </a></p>
		<p><a href="https://example.com/jobs/4">★★★</a></p>
	</div>`

	got := newTestExtractor(nil).Extract(context.Background(), html)
	var titles []string
	for _, p := range got {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"Data Analyst", "Vacante: Contador"}, titles)
}

func TestExtractExclusionWinsOverValidHref(t *testing.T) {
	for _, term := range DefaultExcludeTerms {
		html := `<p><a href="https://board.example.com/jobs/view/1">Job ` + term + `</a></p>`
		got := newTestExtractor(nil).Extract(context.Background(), html)
		assert.Empty(t, got, term)
	}
}

func TestExtractDedupsCanonicalURL(t *testing.T) {
	html := `<div>
		<p><a href="https://board.example.com/jobs/view/42?utm_source=a">Backend Engineer job</a></p>
		<p><a href="https://board.example.com/jobs/view/42?utm_source=b">Backend Engineer job again</a></p>
	</div>`
	got := newTestExtractor(nil).Extract(context.Background(), html)
	require.Len(t, got, 1)
	assert.Equal(t, "https://board.example.com/jobs/view/42", got[0].URL)
}

func TestExtractEmptyAndGarbage(t *testing.T) {
	assert.Empty(t, newTestExtractor(nil).Extract(context.Background(), ""))
	assert.Empty(t, newTestExtractor(nil).Extract(context.Background(), "<p>no links here</p>"))
}

func TestExtractCustomOptions(t *testing.T) {
	e := New(Options{JobKeywords: []string{"gig"}, PathMarkers: []string{"/gigs/"}}, nil, quietLogger())
	html := `<p><a href="https://x.example.com/a">Cool gig</a> <a href="https://x.example.com/gigs/2">Writer</a> <a href="https://x.example.com/jobs/3">Job board</a></p>`
	got := e.Extract(context.Background(), html)
	require.Len(t, got, 2)
	assert.Equal(t, "Cool Gig", got[0].Title)
	assert.Equal(t, "Writer", got[1].Title)
}

type fakeDirectory struct {
	created []string
	err     error
}

func (f *fakeDirectory) GetOrCreate(_ context.Context, name string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, name)
	return int64(len(f.created)), nil
}

func TestSiteResolver(t *testing.T) {
	reg := sites.NewRegistry([]config.Site{{Domain: "board.example.com", Employer: "Board Co"}})
	dir := &fakeDirectory{}
	r := &SiteResolver{Sites: reg, Directory: dir, Logger: quietLogger()}

	assert.Equal(t, "Board Co", r.ResolveEmployer(context.Background(), "jobs.board.example.com"))
	assert.Equal(t, "Board Co", r.ResolveEmployer(context.Background(), "board.example.com"))
	assert.Equal(t, []string{"Board Co"}, dir.created, "created once per run")
	assert.Equal(t, domain.UnknownEmployer, r.ResolveEmployer(context.Background(), "other.example.org"))

	failing := &SiteResolver{Sites: reg, Directory: &fakeDirectory{err: errors.New("db down")}, Logger: quietLogger()}
	assert.Equal(t, "Board Co", failing.ResolveEmployer(context.Background(), "board.example.com"))
}

func TestLinkifyText(t *testing.T) {
	text := "Nuevas vacantes\n\nIngeniero de datos\nhttps://board.example.com/empleo/1\nAnalista QA https://board.example.com/empleo/2.\n"
	html := LinkifyText(text)

	got := newTestExtractor(nil).Extract(context.Background(), html)
	require.Len(t, got, 2)
	assert.Equal(t, "Ingeniero de Datos", got[0].Title)
	assert.Equal(t, "https://board.example.com/empleo/1", got[0].URL)
	assert.Equal(t, "Analista QA", got[1].Title)
	assert.Equal(t, "https://board.example.com/empleo/2", got[1].URL)
	assert.False(t, strings.Contains(html, "<script"))
}
