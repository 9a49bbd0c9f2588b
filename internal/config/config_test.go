package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  path: ./docs-site
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "source", cfg.Source.Name)
	assert.Equal(t, "main", cfg.Source.Branch)
	assert.Equal(t, "cargo", cfg.Docgen.Command)
	assert.Equal(t, []string{"doc", "--no-deps"}, cfg.Docgen.Args)
	assert.Equal(t, "target/doc", cfg.Docgen.OutputDir)
	assert.Equal(t, "static/api", cfg.Site.MountPath)
	assert.Equal(t, "hugo", cfg.Site.Command)
	assert.Equal(t, "public", cfg.Site.PublishDir)
	assert.Equal(t, "pages", cfg.Publish.Environment)
	assert.Equal(t, 1024, cfg.Publish.SizeLimitMB)
	assert.Equal(t, CloneStrategyFresh, cfg.Build.CloneStrategy)
	assert.Equal(t, RetryBackoffLinear, cfg.Build.RetryBackoff)
	assert.Equal(t, VerifyWarn, cfg.Build.VerifyLinks)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("DOCSHIP_TEST_TOKEN", "sekrit")
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  path: ./docs-site
publish:
  api_url: https://pages.example.com/api/v1
  token: ${DOCSHIP_TEST_TOKEN}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.Publish.Token)
}

func TestValidateRejectsMissingSource(t *testing.T) {
	path := writeConfig(t, `
site:
  path: ./docs-site
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.url")
}

func TestValidateRejectsSiteRepoAndPath(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  path: ./docs-site
  repo:
    url: https://example.com/site.git
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  path: ./docs-site
docgen:
  timeout: soon
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docgen.timeout")
}

func TestValidateRejectsUnknownVerifyMode(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  path: ./docs-site
build:
  verify_links: maybe
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify_links")
}

func TestSiteRepoDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://example.com/specs.git
site:
  repo:
    url: https://example.com/site.git
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "site", cfg.Site.Repo.Name)
	assert.Equal(t, "main", cfg.Site.Repo.Branch)
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	// Written example must round-trip through Load once the env var is set.
	t.Setenv("DOCSHIP_PAGES_TOKEN", "tok")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "specs", cfg.Source.Name)
	assert.Equal(t, "tok", cfg.Publish.Token)
}
