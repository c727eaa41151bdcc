// Package config holds all gitspider configuration.
// Configuration is loaded from .gitspider/config.yaml with environment
// overrides applied on top; every knob has a working default so the
// spider runs with no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gitspider configuration.
type Config struct {
	Name    string        `yaml:"name"`
	Version string        `yaml:"version"`
	Spider  SpiderConfig  `yaml:"spider"`
	GitHub  GitHubConfig  `yaml:"github"`
	Render  RenderConfig  `yaml:"render"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// SpiderConfig configures the crawl engine: concurrency, depth, caps, and
// the declarative rulesets used for path cleaning and key-file detection.
type SpiderConfig struct {
	// Shared budget for all concurrent network work in one crawl
	// (renders, walks, and content fetches draw from the same pool).
	Concurrency int64 `yaml:"concurrency"`

	// Maximum recursion depth for the web tier.
	MaxDepth int `yaml:"max_depth"`

	// Maximum key-file candidates tracked per crawl.
	MaxKeyFiles int `yaml:"max_key_files"`

	// Top-level directories to shallow-crawl when no target directory
	// exists at the repository root.
	ShallowCrawlCap int `yaml:"shallow_crawl_cap"`

	// Content truncation caps, bytes.
	FetchContentCap     int `yaml:"fetch_content_cap"`
	BlueprintContentCap int `yaml:"blueprint_content_cap"`
	DebugExcerptCap     int `yaml:"debug_excerpt_cap"`

	// Branches tried in order when none is pinned.
	CandidateBranches []string `yaml:"candidate_branches"`

	// Directories deep-crawled for architectural insight.
	TargetDirs []string `yaml:"target_dirs"`

	// Filenames always worth capturing regardless of directory.
	KeyFilenames []string `yaml:"key_filenames"`

	// Filename keywords that signal architectural importance.
	KeyKeywords []string `yaml:"key_keywords"`

	// UI chrome fragments the rendered tier sometimes captures as part
	// of a link's visible text.
	NoisePrefixes []string `yaml:"noise_prefixes"`
	NoiseSegments []string `yaml:"noise_segments"`
}

// GitHubConfig configures the structured-metadata and raw-content endpoints.
type GitHubConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	RawBaseURL string `yaml:"raw_base_url"`
	WebBaseURL string `yaml:"web_base_url"`

	// Optional bearer token for the tree endpoint (avoids rate limiting).
	Token string `yaml:"token"`

	UserAgent string `yaml:"user_agent"`

	// Per-tier timeouts as duration strings ("10s").
	ProbeTimeout string `yaml:"probe_timeout"`
	TreeTimeout  string `yaml:"tree_timeout"`
	FetchTimeout string `yaml:"fetch_timeout"`
}

// RenderConfig configures the headless rendering tier.
type RenderConfig struct {
	Headless       bool   `yaml:"headless"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	PageTimeout    string `yaml:"page_timeout"`
	BrowserBin     string `yaml:"browser_bin"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	CrawlTimeout string `yaml:"crawl_timeout"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the built-in defaults. The rulesets mirror what is
// known to work against github.com listings in the wild.
func DefaultConfig() Config {
	return Config{
		Name:    "gitspider",
		Version: "1.0.0",
		Spider: SpiderConfig{
			Concurrency:         8,
			MaxDepth:            4,
			MaxKeyFiles:         60,
			ShallowCrawlCap:     5,
			FetchContentCap:     8192,
			BlueprintContentCap: 4096,
			DebugExcerptCap:     5000,
			CandidateBranches:   []string{"main", "master", "develop", "dev"},
			TargetDirs:          []string{"src", "app", "lib", "backend", "frontend"},
			KeyFilenames: []string{
				"package.json", "readme.md", "tsconfig.json", "next.config.js",
				"next.config.ts", "next.config.mjs", ".env.example",
				"docker-compose.yml", "dockerfile", "requirements.txt",
				"pyproject.toml", "manage.py", "cargo.toml", "go.mod",
			},
			KeyKeywords: []string{
				"auth", "middleware", "controller", "route", "service",
				"provider", "guard", "interceptor", "module", "config",
				"database", "schema", "model", "migration", "api",
			},
			NoisePrefixes: []string{
				"Skip to content", "Navigation Menu", "Go to file",
				"Search syntax tips", "Footer",
			},
			NoiseSegments: []string{
				"skip to content", "navigation menu", "go to file", "footer",
				"actions", "autofix", "search syntax tips",
			},
		},
		GitHub: GitHubConfig{
			APIBaseURL:   "https://api.github.com",
			RawBaseURL:   "https://raw.githubusercontent.com",
			WebBaseURL:   "https://github.com",
			Token:        os.Getenv("GITHUB_TOKEN"),
			UserAgent:    "gitspider/1.0 (Architectural Blueprint Crawler)",
			ProbeTimeout: "10s",
			TreeTimeout:  "30s",
			FetchTimeout: "15s",
		},
		Render: RenderConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 900,
			PageTimeout:    "60s",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			CrawlTimeout: "5m",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// missing field. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFromWorkspace loads .gitspider/config.yaml under the given workspace.
func LoadFromWorkspace(workspace string) (Config, error) {
	return Load(filepath.Join(workspace, ".gitspider", "config.yaml"))
}

// applyEnvOverrides applies GITSPIDER_* environment variables on top of the
// loaded configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GITSPIDER_GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GITSPIDER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GITSPIDER_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
	if v := os.Getenv("GITSPIDER_HEADFUL"); v == "1" || v == "true" {
		c.Render.Headless = false
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.Spider.Concurrency < 1 {
		return fmt.Errorf("spider.concurrency must be >= 1, got %d", c.Spider.Concurrency)
	}
	if c.Spider.MaxDepth < 1 {
		return fmt.Errorf("spider.max_depth must be >= 1, got %d", c.Spider.MaxDepth)
	}
	if c.Spider.MaxKeyFiles < 1 {
		return fmt.Errorf("spider.max_key_files must be >= 1, got %d", c.Spider.MaxKeyFiles)
	}
	if len(c.Spider.CandidateBranches) == 0 {
		return fmt.Errorf("spider.candidate_branches must not be empty")
	}
	return nil
}

// parseDuration parses a duration string, returning def on empty or bad input.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ProbeTimeoutDuration returns the branch-probe timeout.
func (g GitHubConfig) ProbeTimeoutDuration() time.Duration {
	return parseDuration(g.ProbeTimeout, 10*time.Second)
}

// TreeTimeoutDuration returns the structured tree fetch timeout.
func (g GitHubConfig) TreeTimeoutDuration() time.Duration {
	return parseDuration(g.TreeTimeout, 30*time.Second)
}

// FetchTimeoutDuration returns the raw content fetch timeout.
func (g GitHubConfig) FetchTimeoutDuration() time.Duration {
	return parseDuration(g.FetchTimeout, 15*time.Second)
}

// PageTimeoutDuration returns the full-page render timeout. Renders are the
// slowest tier, so this is the longest of the per-request timeouts.
func (r RenderConfig) PageTimeoutDuration() time.Duration {
	return parseDuration(r.PageTimeout, 60*time.Second)
}

// CrawlTimeoutDuration bounds one whole /crawl request.
func (s ServerConfig) CrawlTimeoutDuration() time.Duration {
	return parseDuration(s.CrawlTimeout, 5*time.Minute)
}
