package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gitspider/internal/config"
	"gitspider/internal/logging"
)

// TreeStatus tags the outcome of one structured tree acquisition attempt.
type TreeStatus int

const (
	// TreeOK means the endpoint returned a usable entry list.
	TreeOK TreeStatus = iota
	// TreeEmpty means the call succeeded but listed nothing.
	TreeEmpty
	// TreeFailed means the tier failed: non-success status, malformed
	// payload, or transport error. Triggers fallback, never aborts.
	TreeFailed
)

// TreeEntry is one raw entry from the recursive tree endpoint. Filtering and
// cleaning is the sanitizer's job, not the client's.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	Size int64  `json:"size"`
}

// TreeResult is the tagged result of a tree acquisition attempt.
type TreeResult struct {
	Status  TreeStatus
	Entries []TreeEntry
	Reason  string
}

// Client issues requests against the structured-metadata and raw-content
// endpoints. It holds no crawl state and is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	apiBase      string
	rawBase      string
	token        string
	userAgent    string
	probeTimeout time.Duration
	treeTimeout  time.Duration
	fetchTimeout time.Duration
	contentCap   int64
}

// NewClient builds a client from configuration. A nil httpClient selects
// http.DefaultClient; tests inject a client with a stub transport.
func NewClient(cfg config.GitHubConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:   httpClient,
		apiBase:      strings.TrimRight(cfg.APIBaseURL, "/"),
		rawBase:      strings.TrimRight(cfg.RawBaseURL, "/"),
		token:        cfg.Token,
		userAgent:    cfg.UserAgent,
		probeTimeout: cfg.ProbeTimeoutDuration(),
		treeTimeout:  cfg.TreeTimeoutDuration(),
		fetchTimeout: cfg.FetchTimeoutDuration(),
		contentCap:   64 << 10,
	}
}

// ResolveBranch probes the candidate branches in order with a lightweight
// HEAD check on README.md and returns the first that answers. Falls back to
// the first candidate when every probe fails; absence of a confirmed branch
// only means later tiers must retry across candidates themselves.
func (c *Client) ResolveBranch(ctx context.Context, owner, name string, candidates []string) string {
	for _, branch := range candidates {
		url := fmt.Sprintf("%s/%s/%s/%s/README.md", c.rawBase, owner, name, branch)

		probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
		if err != nil {
			cancel()
			continue
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			logging.Branch("Detected branch %q for %s/%s", branch, owner, name)
			return branch
		}
	}

	logging.Branch("Could not detect branch for %s/%s, defaulting to %q", owner, name, candidates[0])
	return candidates[0]
}

// FetchTree issues one request for the full recursive entry listing. The
// outcome is always a tagged result; a TreeFailed result is a tier failure
// that the caller answers with the rendered-page fallback.
func (c *Client) FetchTree(ctx context.Context, owner, name, branch string) TreeResult {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.apiBase, owner, name, branch)

	treeCtx, cancel := context.WithTimeout(ctx, c.treeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(treeCtx, http.MethodGet, url, nil)
	if err != nil {
		return TreeResult{Status: TreeFailed, Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Tree("Tree endpoint error for %s/%s: %v", owner, name, err)
		return TreeResult{Status: TreeFailed, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Tree("Tree endpoint returned %d for %s/%s@%s", resp.StatusCode, owner, name, branch)
		return TreeResult{Status: TreeFailed, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var payload struct {
		Tree      []TreeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TreeResult{Status: TreeFailed, Reason: fmt.Sprintf("decode: %v", err)}
	}

	if len(payload.Tree) == 0 {
		return TreeResult{Status: TreeEmpty}
	}

	logging.Tree("Tree endpoint returned %d entries for %s/%s@%s", len(payload.Tree), owner, name, branch)
	return TreeResult{Status: TreeOK, Entries: payload.Tree}
}

// FetchRawContent fetches a file's raw bytes for (owner, name, branch, path).
// The body is read through a size guard; semantic truncation and content
// validation belong to the content fetcher.
func (c *Client) FetchRawContent(ctx context.Context, owner, name, branch, path string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawBase, owner, name, branch, path)

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.contentCap))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
