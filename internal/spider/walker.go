package spider

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"gitspider/internal/logging"
)

// walker is the web tier: when the structured tree is unavailable it rebuilds
// the repository layout by rendering directory pages and following their
// listings. All rendering draws from the session's semaphore, so walker
// renders and content fetches compete for the same slots.
type walker struct {
	s         *Session
	extractor *Extractor
}

func newWalker(s *Session) *walker {
	return &walker{s: s, extractor: NewExtractor(s.rules)}
}

// walkResult is the subtree a walkDir call discovered. Children report
// results by return value; the parent merges them after the batch completes,
// so no aggregation state is shared between siblings.
type walkResult struct {
	paths []string
	keys  []string
}

func (r *walkResult) merge(other walkResult) {
	r.paths = append(r.paths, other.paths...)
	r.keys = append(r.keys, other.keys...)
}

// dirJob is one top-level directory queued for traversal with its own depth
// budget.
type dirJob struct {
	url    string
	prefix string
	budget int
}

// walkRoot lists the repository root and dispatches the traversal. Target
// directories get the full depth budget; when none are present at the root,
// a capped number of top-level directories are crawled one level deep so the
// blueprint is never empty-handed for unconventional layouts.
func (w *walker) walkRoot(ctx context.Context) {
	s := w.s

	entries := w.listDirectory(ctx, w.treeURL(s.Branch(), ""))

	// The probed branch may render an empty or error page even though the
	// probe succeeded. Retry the remaining candidates and adopt the first
	// branch whose root actually lists.
	if len(entries) == 0 {
		for _, alt := range s.cfg.CandidateBranches {
			if alt == s.Branch() {
				continue
			}
			if entries = w.listDirectory(ctx, w.treeURL(alt, "")); len(entries) > 0 {
				logging.Walker("[%s] Root listed on branch %q instead of %q", s.ID, alt, s.Branch())
				s.setBranch(alt)
				break
			}
		}
	}
	if len(entries) == 0 {
		logging.Walker("[%s] Root listing empty on every candidate branch", s.ID)
		return
	}

	var targets, others []dirJob
	for _, entry := range entries {
		name := s.rules.Clean(entry.Name)
		if name == "" || !s.rules.IsValid(name) {
			continue
		}
		if entry.IsDir {
			s.addTreePaths(name + "/")
			job := dirJob{url: w.resolveLink(entry.Link), prefix: name}
			if s.rules.IsTargetDir(name) {
				job.budget = s.cfg.MaxDepth
				targets = append(targets, job)
			} else {
				job.budget = 1
				others = append(others, job)
			}
		} else {
			s.addTreePaths(name)
			if s.rules.IsKeyFile(name) {
				s.registerKeyFile(name)
			}
		}
	}

	jobs := targets
	if len(jobs) == 0 {
		if len(others) > s.cfg.ShallowCrawlCap {
			others = others[:s.cfg.ShallowCrawlCap]
		}
		jobs = others
		logging.Walker("[%s] No target directory at root, shallow-crawling %d top-level directories", s.ID, len(jobs))
	}

	results := make([]walkResult, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		eg.Go(func() error {
			results[i] = w.walkDir(egCtx, job.url, job.prefix, 1, job.budget)
			return nil
		})
	}
	_ = eg.Wait()

	for _, res := range results {
		s.addTreePaths(res.paths...)
		for _, key := range res.keys {
			s.registerKeyFile(key)
		}
	}
}

// walkDir lists one directory and recurses into its subdirectories
// concurrently. depth is the level this call sits at; past the budget a
// truncation marker stands in for the unexplored subtree.
func (w *walker) walkDir(ctx context.Context, url, prefix string, depth, budget int) walkResult {
	s := w.s

	if depth > budget {
		return walkResult{paths: []string{prefix + "/..."}}
	}

	var res walkResult
	var children []dirJob
	for _, entry := range w.listDirectory(ctx, url) {
		name := s.rules.Clean(entry.Name)
		if name == "" || !s.rules.IsValid(name) {
			continue
		}
		full := prefix + "/" + name
		if entry.IsDir {
			res.paths = append(res.paths, full+"/")
			children = append(children, dirJob{url: w.resolveLink(entry.Link), prefix: full})
		} else {
			res.paths = append(res.paths, full)
			if s.rules.IsKeyFile(name) {
				res.keys = append(res.keys, full)
			}
		}
	}

	if len(children) == 0 {
		return res
	}

	childResults := make([]walkResult, len(children))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, child := range children {
		i, child := i, child
		eg.Go(func() error {
			childResults[i] = w.walkDir(egCtx, child.url, child.prefix, depth+1, budget)
			return nil
		})
	}
	_ = eg.Wait()

	for _, child := range childResults {
		res.merge(child)
	}
	return res
}

// listDirectory renders one directory page under a semaphore slot and runs
// the extraction cascade over it. Already-visited URLs and render failures
// both yield nil; when the cascade itself comes up empty the page markup is
// retained as a debugging excerpt.
func (w *walker) listDirectory(ctx context.Context, url string) []Entry {
	s := w.s

	if !s.markVisited(url) {
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	snap, err := s.renderer.Render(ctx, url)
	s.sem.Release(1)
	if err != nil {
		logging.Walker("[%s] Render failed for %s: %v", s.ID, url, err)
		return nil
	}

	entries := w.extractor.Extract(snap)
	logging.WalkerDebug("[%s] %s yielded %d entries", s.ID, url, len(entries))
	if len(entries) == 0 {
		s.setDebugHTML(snap.HTML)
	}
	return entries
}

// treeURL builds the rendered-listing URL for a directory on a branch.
func (w *walker) treeURL(branch, dir string) string {
	url := fmt.Sprintf("%s/%s/%s/tree/%s", w.s.webBase, w.s.Repo.Owner, w.s.Repo.Name, branch)
	if dir != "" {
		url += "/" + strings.TrimLeft(dir, "/")
	}
	return url
}

// resolveLink absolutizes a listing href against the web base.
func (w *walker) resolveLink(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return w.s.webBase + "/" + strings.TrimLeft(href, "/")
}
