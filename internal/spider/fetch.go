package spider

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"gitspider/internal/logging"
)

// fetcher retrieves key-file contents over the raw endpoint, one goroutine
// per candidate, bounded by the session semaphore. A file no branch can serve
// stays contentless; it never fails the crawl.
type fetcher struct {
	s *Session
}

func newFetcher(s *Session) *fetcher {
	return &fetcher{s: s}
}

// fetchAll fetches every tracked candidate concurrently. Results land in a
// per-index slice and are merged into the session only after the whole batch
// finishes.
func (f *fetcher) fetchAll(ctx context.Context) {
	s := f.s
	paths := s.keyFilePaths()
	logging.Fetch("[%s] Fetching content for %d key file(s)", s.ID, len(paths))

	results := make([]string, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			results[i] = f.fetchOne(egCtx, path)
			return nil
		})
	}
	_ = eg.Wait()

	for i, path := range paths {
		if results[i] != "" {
			s.setKeyFileContent(path, results[i])
		}
	}
}

// fetchOne walks the branch fallback chain for one path: the session branch
// first, then the remaining candidates in declared order. The first branch
// that serves plausible content wins.
func (f *fetcher) fetchOne(ctx context.Context, path string) string {
	s := f.s

	clean := s.rules.Clean(path)
	if clean == "" || !s.rules.IsValid(clean) {
		return ""
	}

	branches := []string{s.Branch()}
	for _, b := range s.cfg.CandidateBranches {
		if b != branches[0] {
			branches = append(branches, b)
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer s.sem.Release(1)

	for _, branch := range branches {
		content, err := s.client.FetchRawContent(ctx, s.Repo.Owner, s.Repo.Name, branch, clean)
		if err != nil {
			logging.FetchDebug("[%s] %s@%s: %v", s.ID, clean, branch, err)
			continue
		}
		content = truncate(content, s.cfg.FetchContentCap)
		if !ValidContent(content) {
			logging.FetchDebug("[%s] %s@%s served an error page", s.ID, clean, branch)
			continue
		}
		return content
	}

	logging.FetchWarn("[%s] No branch served %s", s.ID, clean)
	return ""
}

// ValidContent reports whether text looks like actual file content rather
// than an HTML error page delivered with a success status. The checks look
// only at the head of the text, lowercased.
func ValidContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	head := strings.ToLower(trimmed)
	if len(head) > 200 {
		head = head[:200]
	}
	if strings.HasPrefix(head, "404") {
		return false
	}
	if strings.Contains(head, "404: not found") {
		return false
	}
	if strings.Contains(head, "<html") && strings.Contains(head, "not found") {
		return false
	}
	return true
}
