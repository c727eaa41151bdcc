package spider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gitspider/internal/config"
	"gitspider/internal/github"
	"gitspider/internal/render"
)

// fakeRenderer serves canned markup by URL and records every render call.
// Unknown URLs fail, which the walker must absorb per item.
type fakeRenderer struct {
	mu          sync.Mutex
	pages       map[string]string
	calls       []string
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{pages: make(map[string]string)}
}

func (f *fakeRenderer) addPage(url, markup string) {
	f.pages[url] = markup
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (*render.PageSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	markup, ok := f.pages[url]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("render %s: connection refused", url)
	}
	return &render.PageSnapshot{URL: url, HTML: markup, Text: render.TextProjection(markup)}, nil
}

func (f *fakeRenderer) Close() error { return nil }

func (f *fakeRenderer) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// listing builds primary-schema markup for a directory page. Entries whose
// href contains /tree/ are directories.
func listing(entries ...[2]string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><table>")
	for _, e := range entries {
		name, href := e[0], e[1]
		icon := `<svg aria-label="File" class="octicon octicon-file"></svg>`
		if strings.Contains(href, "/tree/") {
			icon = `<svg aria-label="Directory" class="octicon octicon-file-directory-fill"></svg>`
		}
		sb.WriteString(`<tr class="react-directory-row"><td>` + icon +
			`<a href="` + href + `">` + name + `</a></td></tr>`)
	}
	sb.WriteString("</table></body></html>")
	return sb.String()
}

func walkerSession(t *testing.T, r render.Renderer, branch string) *Session {
	t.Helper()
	cfg := config.DefaultConfig()
	client := github.NewClient(cfg.GitHub, &http.Client{Transport: NewMockTransport()})
	repo := github.RepositoryRef{Owner: "acme", Name: "widgets", CanonicalURL: "https://github.com/acme/widgets"}
	return NewSession(cfg, repo, branch, client, r)
}

func TestWalkRoot_TargetDirPrioritized(t *testing.T) {
	defer goleak.VerifyNone(t)

	fr := newFakeRenderer()
	fr.addPage("https://github.com/acme/widgets/tree/main", listing(
		[2]string{"src", "/acme/widgets/tree/main/src"},
		[2]string{"docs", "/acme/widgets/tree/main/docs"},
		[2]string{"package.json", "/acme/widgets/blob/main/package.json"},
		[2]string{"LICENSE", "/acme/widgets/blob/main/LICENSE"},
	))
	fr.addPage("https://github.com/acme/widgets/tree/main/src", listing(
		[2]string{"auth.service.ts", "/acme/widgets/blob/main/src/auth.service.ts"},
		[2]string{"index.ts", "/acme/widgets/blob/main/src/index.ts"},
	))

	s := walkerSession(t, fr, "main")
	newWalker(s).walkRoot(context.Background())

	st := s.snapshot()
	assert.Contains(t, st.fileTree, "src/")
	assert.Contains(t, st.fileTree, "docs/")
	assert.Contains(t, st.fileTree, "src/auth.service.ts")
	assert.Contains(t, st.fileTree, "package.json")

	// A target directory exists at the root, so docs is listed but never
	// descended into.
	for _, call := range fr.calls {
		assert.NotContains(t, call, "/docs")
	}

	paths := s.keyFilePaths()
	assert.Contains(t, paths, "package.json")
	assert.Contains(t, paths, "src/auth.service.ts")
	assert.NotContains(t, paths, "LICENSE")
}

func TestWalkRoot_ShallowFallbackWhenNoTargetDir(t *testing.T) {
	defer goleak.VerifyNone(t)

	fr := newFakeRenderer()
	var rows [][2]string
	for _, name := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"} {
		rows = append(rows, [2]string{name, "/acme/widgets/tree/main/" + name})
	}
	fr.addPage("https://github.com/acme/widgets/tree/main", listing(rows...))
	// Only alpha has content; the rest fail to render, which is absorbed.
	fr.addPage("https://github.com/acme/widgets/tree/main/alpha", listing(
		[2]string{"config.yml", "/acme/widgets/blob/main/alpha/config.yml"},
		[2]string{"nested", "/acme/widgets/tree/main/alpha/nested"},
	))

	s := walkerSession(t, fr, "main")
	newWalker(s).walkRoot(context.Background())

	// Root plus at most ShallowCrawlCap top-level directories; nested sits
	// past the one-level budget and is never rendered.
	assert.LessOrEqual(t, fr.renderCount(), 1+s.cfg.ShallowCrawlCap)

	st := s.snapshot()
	assert.Contains(t, st.fileTree, "alpha/config.yml")
	assert.Contains(t, st.fileTree, "alpha/nested/")
	assert.Contains(t, st.fileTree, "alpha/nested/...", "unexplored subtree leaves a truncation marker")
	assert.Contains(t, s.keyFilePaths(), "alpha/config.yml")
}

func TestWalkDir_DepthBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	fr := newFakeRenderer()
	fr.addPage("https://github.com/acme/widgets/tree/main", listing(
		[2]string{"src", "/acme/widgets/tree/main/src"},
	))
	chain := "src"
	for _, sub := range []string{"x", "y", "z", "w"} {
		next := chain + "/" + sub
		fr.addPage("https://github.com/acme/widgets/tree/main/"+chain, listing(
			[2]string{sub, "/acme/widgets/tree/main/" + next},
		))
		chain = next
	}

	s := walkerSession(t, fr, "main")
	newWalker(s).walkRoot(context.Background())

	st := s.snapshot()
	assert.Contains(t, st.fileTree, "src/x/y/z/w/")
	assert.Contains(t, st.fileTree, "src/x/y/z/w/...", "recursion stops at the depth bound")
	for _, call := range fr.calls {
		assert.NotContains(t, call, "/src/x/y/z/w", "pages past the bound are never rendered")
	}
}

func TestWalkRoot_RetriesBranchesWhenRootEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	fr := newFakeRenderer()
	fr.addPage("https://github.com/acme/widgets/tree/main", "<html><body>branch gone</body></html>")
	fr.addPage("https://github.com/acme/widgets/tree/master", listing(
		[2]string{"src", "/acme/widgets/tree/master/src"},
	))

	s := walkerSession(t, fr, "")
	s.setBranch("main")
	newWalker(s).walkRoot(context.Background())

	assert.Equal(t, "master", s.Branch(), "adopts the first branch whose root lists")
	assert.Contains(t, s.snapshot().fileTree, "src/")
}

func TestListDirectory_VisitedGuard(t *testing.T) {
	fr := newFakeRenderer()
	url := "https://github.com/acme/widgets/tree/main/src"
	fr.addPage(url, listing([2]string{"index.ts", "/acme/widgets/blob/main/src/index.ts"}))

	s := walkerSession(t, fr, "main")
	w := newWalker(s)

	first := w.listDirectory(context.Background(), url)
	require.Len(t, first, 1)
	assert.Nil(t, w.listDirectory(context.Background(), url), "revisits yield nothing")
	assert.Equal(t, 1, fr.renderCount(), "the page is rendered exactly once")
}

// Every render goes through the session semaphore, so the number of pages in
// flight can never exceed the configured budget.
func TestWalker_ConcurrencyBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	fr := newFakeRenderer()
	fr.delay = 10 * time.Millisecond
	var rows [][2]string
	for _, name := range []string{"src", "app", "lib", "backend", "frontend"} {
		rows = append(rows, [2]string{name, "/acme/widgets/tree/main/" + name})
		fr.addPage("https://github.com/acme/widgets/tree/main/"+name, listing(
			[2]string{"index.ts", "/acme/widgets/blob/main/" + name + "/index.ts"},
		))
	}
	fr.addPage("https://github.com/acme/widgets/tree/main", listing(rows...))

	cfg := config.DefaultConfig()
	cfg.Spider.Concurrency = 2
	client := github.NewClient(cfg.GitHub, &http.Client{Transport: NewMockTransport()})
	repo := github.RepositoryRef{Owner: "acme", Name: "widgets", CanonicalURL: "https://github.com/acme/widgets"}
	s := NewSession(cfg, repo, "main", client, fr)

	newWalker(s).walkRoot(context.Background())

	assert.Equal(t, 6, fr.renderCount(), "root plus five target directories")
	assert.LessOrEqual(t, fr.maxInFlight, 2)
}

// Scenario: the primary schema misses but the alternate matches; the entries
// are used and no diagnostic excerpt is retained.
func TestListDirectory_AlternateSchemaNoExcerpt(t *testing.T) {
	fr := newFakeRenderer()
	url := "https://github.com/acme/widgets/tree/main"
	fr.addPage(url, `<html><body>
<div role="row" class="Box-row"><svg class="octicon octicon-file-directory"></svg>
<a href="/acme/widgets/tree/main/src">src</a></div>
</body></html>`)

	s := walkerSession(t, fr, "main")
	entries := newWalker(s).listDirectory(context.Background(), url)
	require.Len(t, entries, 1)
	assert.Empty(t, s.snapshot().debugHTML)
}

func TestListDirectory_SavesDebugExcerptWhenUnparseable(t *testing.T) {
	fr := newFakeRenderer()
	url := "https://github.com/acme/widgets/tree/main"
	fr.addPage(url, "<html><body><p>rate limited</p></body></html>")

	s := walkerSession(t, fr, "main")
	assert.Empty(t, newWalker(s).listDirectory(context.Background(), url))
	assert.NotEmpty(t, s.snapshot().debugHTML)
}
