// Package github talks to the structured-metadata and raw-content endpoints
// of a GitHub-style host. All tier failures are reported as tagged results,
// never as raised errors; fallback decisions belong to the caller.
package github

import (
	"fmt"
	"regexp"
	"strings"
)

// RepositoryRef identifies a repository. Derived once from the input URL and
// immutable for the crawl's lifetime.
type RepositoryRef struct {
	Owner        string
	Name         string
	CanonicalURL string
}

// String returns the owner/name form.
func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

var deepLinkPattern = regexp.MustCompile(`/(tree|blob)/[^/]+.*$`)

// NormalizeRepoURL reduces a repository URL to its canonical root form:
// trailing slashes, a .git suffix, and any deep-link /tree/<branch>/<path>
// suffix are removed.
func NormalizeRepoURL(raw string) string {
	url := strings.TrimSpace(raw)
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, ".git")
	url = deepLinkPattern.ReplaceAllString(url, "")
	return url
}

// ParseRepoURL derives a RepositoryRef from a repository URL.
func ParseRepoURL(raw string) (RepositoryRef, error) {
	canonical := NormalizeRepoURL(raw)

	trimmed := canonical
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")

	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) < 3 {
		return RepositoryRef{}, fmt.Errorf("not a repository URL: %q", raw)
	}

	owner := parts[len(parts)-2]
	name := parts[len(parts)-1]
	if owner == "" || name == "" {
		return RepositoryRef{}, fmt.Errorf("not a repository URL: %q", raw)
	}

	return RepositoryRef{
		Owner:        owner,
		Name:         name,
		CanonicalURL: canonical,
	}, nil
}
