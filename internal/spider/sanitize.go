// Package spider implements the multi-tier acquisition engine that deep-crawls
// a repository and produces its Architectural Blueprint: structured tree
// fetch, rendered-page walking with an extraction cascade, bounded-concurrency
// content fetching, and the sanitization layer that makes the extracted
// strings trustworthy.
package spider

import (
	"regexp"
	"strings"

	"gitspider/internal/config"
)

// Ruleset is the declarative configuration behind path cleaning and key-file
// classification. Every set is supplied by config so tests can substitute
// fixtures instead of poking package-level literals.
type Ruleset struct {
	noisePrefixes []string
	noiseSegments map[string]bool
	keyFilenames  map[string]bool
	keyKeywords   []string
	targetDirs    map[string]bool

	noisePattern *regexp.Regexp
	prosePattern *regexp.Regexp
}

// NewRuleset compiles a Ruleset from spider configuration.
func NewRuleset(cfg config.SpiderConfig) *Ruleset {
	r := &Ruleset{
		noisePrefixes: append([]string(nil), cfg.NoisePrefixes...),
		noiseSegments: make(map[string]bool, len(cfg.NoiseSegments)),
		keyFilenames:  make(map[string]bool, len(cfg.KeyFilenames)),
		keyKeywords:   append([]string(nil), cfg.KeyKeywords...),
		targetDirs:    make(map[string]bool, len(cfg.TargetDirs)),
	}
	for _, s := range cfg.NoiseSegments {
		r.noiseSegments[strings.ToLower(s)] = true
	}
	for _, f := range cfg.KeyFilenames {
		r.keyFilenames[strings.ToLower(f)] = true
	}
	for _, d := range cfg.TargetDirs {
		r.targetDirs[strings.ToLower(d)] = true
	}

	if len(r.noisePrefixes) > 0 {
		quoted := make([]string, len(r.noisePrefixes))
		for i, p := range r.noisePrefixes {
			quoted[i] = regexp.QuoteMeta(p)
		}
		r.noisePattern = regexp.MustCompile(`(?i)^(` + strings.Join(quoted, "|") + `)[/\\\s]*`)
	}

	// A capitalized word followed by a long free-text run is page prose,
	// not a path.
	r.prosePattern = regexp.MustCompile(`^[A-Z][a-z]+ .{20,}`)

	return r
}

// Clean strips UI-chrome noise from an extracted path: known prefixes are
// removed from the front, noise-only segments are dropped, and the result is
// re-joined. Clean is idempotent.
func (r *Ruleset) Clean(path string) string {
	cleaned := strings.TrimSpace(path)

	// Prefixes can stack in any order; strip until nothing changes.
	for {
		prev := cleaned
		for _, prefix := range r.noisePrefixes {
			if strings.HasPrefix(cleaned, prefix+"/") {
				cleaned = cleaned[len(prefix)+1:]
			} else if strings.HasPrefix(cleaned, prefix) {
				cleaned = cleaned[len(prefix):]
			}
		}
		if r.noisePattern != nil {
			cleaned = r.noisePattern.ReplaceAllString(cleaned, "")
		}
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == prev {
			break
		}
	}
	cleaned = strings.TrimSpace(strings.Trim(cleaned, "/"))

	parts := strings.Split(cleaned, "/")
	filtered := parts[:0]
	for _, p := range parts {
		if p == "" || r.noiseSegments[strings.ToLower(p)] {
			continue
		}
		filtered = append(filtered, p)
	}
	return strings.Join(filtered, "/")
}

// IsValid reports whether path looks like a real file or directory path
// rather than text captured from surrounding page chrome.
func (r *Ruleset) IsValid(path string) bool {
	if path == "" {
		return false
	}
	if strings.Contains(path, ";") {
		return false
	}
	for _, segment := range strings.Split(path, "/") {
		if strings.Count(segment, " ") > 3 {
			return false
		}
	}
	return !r.prosePattern.MatchString(path)
}

// IsKeyFile reports whether filename is architecturally significant: an
// exact well-known name, or any architecture-signal keyword in the name.
func (r *Ruleset) IsKeyFile(filename string) bool {
	lower := strings.ToLower(filename)
	if r.keyFilenames[lower] {
		return true
	}
	for _, kw := range r.keyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsInTargetDir reports whether any segment of path is a target directory.
func (r *Ruleset) IsInTargetDir(path string) bool {
	for _, p := range strings.Split(strings.ToLower(path), "/") {
		if r.targetDirs[p] {
			return true
		}
	}
	return false
}

// IsTargetDir reports whether name itself is a target directory.
func (r *Ruleset) IsTargetDir(name string) bool {
	return r.targetDirs[strings.ToLower(name)]
}
