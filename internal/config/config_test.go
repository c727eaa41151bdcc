package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(8), cfg.Spider.Concurrency)
	assert.Equal(t, 4, cfg.Spider.MaxDepth)
	assert.Equal(t, 60, cfg.Spider.MaxKeyFiles)
	assert.Equal(t, []string{"main", "master", "develop", "dev"}, cfg.Spider.CandidateBranches)
	assert.Contains(t, cfg.Spider.TargetDirs, "src")
	assert.Contains(t, cfg.Spider.KeyFilenames, "package.json")

	assert.Equal(t, 10*time.Second, cfg.GitHub.ProbeTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.GitHub.TreeTimeoutDuration())
	assert.Equal(t, 15*time.Second, cfg.GitHub.FetchTimeoutDuration())
	assert.Equal(t, 60*time.Second, cfg.Render.PageTimeoutDuration())
	assert.Equal(t, 5*time.Minute, cfg.Server.CrawlTimeoutDuration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gitspider", cfg.Name)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
spider:
  concurrency: 4
  max_depth: 2
github:
  probe_timeout: 3s
server:
  addr: ":9999"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(4), cfg.Spider.Concurrency)
	assert.Equal(t, 2, cfg.Spider.MaxDepth)
	assert.Equal(t, 3*time.Second, cfg.GitHub.ProbeTimeoutDuration())
	assert.Equal(t, ":9999", cfg.Server.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Spider.MaxKeyFiles)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GITSPIDER_GITHUB_TOKEN", "ghp_testtoken")
	t.Setenv("GITSPIDER_ADDR", ":7070")
	t.Setenv("GITSPIDER_DEBUG", "1")

	cfg, err := LoadFromWorkspace(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "ghp_testtoken", cfg.GitHub.Token)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spider.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Spider.CandidateBranches = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Spider.MaxDepth = 0
	assert.Error(t, cfg.Validate())
}

func TestParseDuration_BadInputFallsBack(t *testing.T) {
	g := GitHubConfig{ProbeTimeout: "not-a-duration"}
	assert.Equal(t, 10*time.Second, g.ProbeTimeoutDuration())

	g = GitHubConfig{ProbeTimeout: "-5s"}
	assert.Equal(t, 10*time.Second, g.ProbeTimeoutDuration())
}
