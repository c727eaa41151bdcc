package spider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"gitspider/internal/config"
	"gitspider/internal/github"
	"gitspider/internal/logging"
	"gitspider/internal/render"
)

// KeyFileCandidate tracks one architecturally significant file from discovery
// through content fetch.
type KeyFileCandidate struct {
	Path    string
	Content string
}

// Session owns the state of exactly one crawl: the working branch, the
// visited set, the accumulating file tree, and the key-file candidates.
// Nothing is shared across concurrent crawls. All concurrent work inside the
// crawl draws from one weighted semaphore sized at construction time.
type Session struct {
	ID   string
	Repo github.RepositoryRef

	cfg      config.SpiderConfig
	webBase  string
	client   *github.Client
	renderer render.Renderer
	rules    *Ruleset
	sem      *semaphore.Weighted

	explicitBranch string

	mu        sync.Mutex
	branch    string
	visited   map[string]bool
	fileTree  []string
	keyFiles  map[string]*KeyFileCandidate
	keyOrder  []string
	debugHTML string
}

// NewSession prepares a crawl session. branch pins the working branch; when
// empty it is resolved by probing before the tiers run.
func NewSession(cfg config.Config, repo github.RepositoryRef, branch string, client *github.Client, renderer render.Renderer) *Session {
	working := branch
	if working == "" {
		working = cfg.Spider.CandidateBranches[0]
	}
	return &Session{
		ID:             uuid.NewString(),
		Repo:           repo,
		cfg:            cfg.Spider,
		webBase:        strings.TrimRight(cfg.GitHub.WebBaseURL, "/"),
		client:         client,
		renderer:       renderer,
		rules:          NewRuleset(cfg.Spider),
		sem:            semaphore.NewWeighted(cfg.Spider.Concurrency),
		explicitBranch: branch,
		branch:         working,
		visited:        make(map[string]bool),
		keyFiles:       make(map[string]*KeyFileCandidate),
	}
}

// Crawl executes the full acquisition pipeline and returns the blueprint.
// Tier and item failures are absorbed into the blueprint's diagnostics; only
// a genuinely unexpected fault surfaces as an error.
func (s *Session) Crawl(ctx context.Context) (bp *Blueprint, err error) {
	defer func() {
		if r := recover(); r != nil {
			bp = nil
			err = fmt.Errorf("crawl of %s failed: %v", s.Repo, r)
		}
	}()

	logging.Walker("[%s] Starting crawl of %s", s.ID, s.Repo.CanonicalURL)

	if s.explicitBranch == "" {
		s.setBranch(s.client.ResolveBranch(ctx, s.Repo.Owner, s.Repo.Name, s.cfg.CandidateBranches))
	}

	res := s.client.FetchTree(ctx, s.Repo.Owner, s.Repo.Name, s.Branch())
	if res.Status == github.TreeOK {
		logging.Tree("[%s] Using structured tree (%d entries)", s.ID, len(res.Entries))
		s.ingestTree(res.Entries)
	} else {
		logging.Walker("[%s] Structured tier unavailable (%s), falling back to web crawl", s.ID, res.Reason)
		newWalker(s).walkRoot(ctx)
	}

	if s.keyFileCount() > 0 {
		newFetcher(s).fetchAll(ctx)
	}

	return s.assemble(), nil
}

// ingestTree cleans and registers the structured tier's entries. Key-file
// registration is a single predicate evaluated once per entry; exact
// well-known names are part of IsKeyFile, so root-level build files are
// always captured.
func (s *Session) ingestTree(entries []github.TreeEntry) {
	for _, entry := range entries {
		if entry.Type != "blob" {
			continue
		}
		clean := s.rules.Clean(entry.Path)
		if clean == "" || !s.rules.IsValid(clean) {
			continue
		}
		s.addTreePaths(clean)

		base := clean[strings.LastIndex(clean, "/")+1:]
		if s.rules.IsKeyFile(base) || s.rules.IsInTargetDir(clean) {
			s.registerKeyFile(clean)
		}
	}
}

// Branch returns the current working branch.
func (s *Session) Branch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branch
}

func (s *Session) setBranch(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branch = branch
}

// markVisited records url and reports whether this is its first visit.
func (s *Session) markVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[url] {
		return false
	}
	s.visited[url] = true
	return true
}

func (s *Session) addTreePaths(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileTree = append(s.fileTree, paths...)
}

// registerKeyFile tracks a candidate for content retrieval. The cap is
// enforced here, at insertion time: first discovered, first kept.
func (s *Session) registerKeyFile(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keyFiles[path]; ok {
		return true
	}
	if len(s.keyFiles) >= s.cfg.MaxKeyFiles {
		return false
	}
	s.keyFiles[path] = &KeyFileCandidate{Path: path}
	s.keyOrder = append(s.keyOrder, path)
	return true
}

func (s *Session) keyFileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyFiles)
}

// keyFilePaths returns the tracked candidate paths in discovery order.
func (s *Session) keyFilePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keyOrder...)
}

func (s *Session) setKeyFileContent(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.keyFiles[path]; ok {
		c.Content = content
	}
}

// setDebugHTML retains the last unparseable page's markup, truncated, as a
// diagnostic artifact for markup drift.
func (s *Session) setDebugHTML(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugHTML = truncate(markup, s.cfg.DebugExcerptCap)
}

// snapshot captures the session state for assembly.
func (s *Session) snapshot() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyFiles := make([]KeyFileCandidate, 0, len(s.keyOrder))
	for _, path := range s.keyOrder {
		keyFiles = append(keyFiles, *s.keyFiles[path])
	}
	return sessionState{
		repo:         s.Repo,
		branch:       s.branch,
		fileTree:     append([]string(nil), s.fileTree...),
		keyFiles:     keyFiles,
		visitedCount: len(s.visited),
		debugHTML:    s.debugHTML,
	}
}

func (s *Session) assemble() *Blueprint {
	bp := assembleBlueprint(s.rules, s.cfg, s.snapshot())
	logging.Assemble("[%s] Blueprint ready: %d tree paths, %d key files with content, %d failed",
		s.ID, bp.Stats.TotalFilesInTree, bp.Stats.TotalKeyFilesWithContent, bp.Stats.FilesFailed)
	return bp
}

func truncate(text string, limit int) string {
	if limit > 0 && len(text) > limit {
		return text[:limit]
	}
	return text
}

// Crawl is the package entry point: derive the repository reference, run one
// session, and return its blueprint.
func Crawl(ctx context.Context, cfg config.Config, client *github.Client, renderer render.Renderer, repoURL, branch string) (*Blueprint, error) {
	repo, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	return NewSession(cfg, repo, branch, client, renderer).Crawl(ctx)
}
