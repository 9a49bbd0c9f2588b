// Package git provides repository checkout and update operations for the
// docship pipeline on top of go-git.
package git

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Client handles git operations inside a workspace directory.
type Client struct {
	workspaceDir string
	buildCfg     *appcfg.BuildConfig // optional build config for strategy flags
	inRetry      bool                // internal guard to avoid nested retry wrapping
}

// NewClient creates a git client rooted at the given workspace directory.
func NewClient(workspaceDir string) *Client { return &Client{workspaceDir: workspaceDir} }

// WithBuildConfig attaches build configuration to the client (fluent helper).
func (c *Client) WithBuildConfig(cfg *appcfg.BuildConfig) *Client { c.buildCfg = cfg; return c }

// EnsureWorkspace creates the workspace directory if missing.
func (c *Client) EnsureWorkspace() error {
	if err := os.MkdirAll(c.workspaceDir, 0o750); err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}
	return nil
}

// CheckoutResult describes a completed checkout.
type CheckoutResult struct {
	Path     string
	PreHead  string // HEAD before the operation ("" for fresh clones)
	PostHead string
}

// Checkout materializes the repository according to the configured clone
// strategy: fresh clone or incremental update.
func (c *Client) Checkout(repo appcfg.Repository) (CheckoutResult, error) {
	strategy := appcfg.CloneStrategyFresh
	if c.buildCfg != nil && c.buildCfg.CloneStrategy != "" {
		strategy = c.buildCfg.CloneStrategy
	}
	if strategy == appcfg.CloneStrategyIncremental {
		return c.UpdateRepository(repo)
	}
	return c.CloneRepository(repo)
}

// CloneRepository clones a repository into the workspace (with retry wrapper if enabled).
func (c *Client) CloneRepository(repo appcfg.Repository) (CheckoutResult, error) {
	if c.inRetry {
		return c.cloneOnce(repo)
	}
	return c.withRetry("clone", repo.Name, func() (CheckoutResult, error) { return c.cloneOnce(repo) })
}

func (c *Client) cloneOnce(repo appcfg.Repository) (CheckoutResult, error) {
	repoPath := filepath.Join(c.workspaceDir, repo.Name)
	slog.Debug("Cloning repository", logfields.URL(repo.URL), logfields.Repository(repo.Name),
		slog.String("branch", repo.Branch), logfields.Path(repoPath))
	if err := os.RemoveAll(repoPath); err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to remove existing directory: %w", err)
	}

	opts := &gogit.CloneOptions{URL: repo.URL}
	if repo.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(repo.Branch)
		opts.SingleBranch = true
	}
	if c.buildCfg != nil && c.buildCfg.ShallowDepth > 0 {
		opts.Depth = c.buildCfg.ShallowDepth
	}
	auth, err := buildAuth(repo.Auth)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to setup authentication: %w", err)
	}
	if auth != nil {
		opts.Auth = auth
	}

	repository, err := gogit.PlainClone(repoPath, false, opts)
	if err != nil {
		return CheckoutResult{}, classifyError("clone", repo.URL, err)
	}

	res := CheckoutResult{Path: repoPath}
	if ref, herr := repository.Head(); herr == nil {
		res.PostHead = ref.Hash().String()
		slog.Info("Repository cloned", logfields.Repository(repo.Name), logfields.URL(repo.URL),
			logfields.Commit(shortHash(res.PostHead)), logfields.Path(repoPath))
	} else {
		slog.Info("Repository cloned", logfields.Repository(repo.Name), logfields.URL(repo.URL), logfields.Path(repoPath))
	}
	return res, nil
}

// UpdateRepository updates an existing repository or clones if missing.
func (c *Client) UpdateRepository(repo appcfg.Repository) (CheckoutResult, error) {
	if c.inRetry {
		return c.updateOnce(repo)
	}
	return c.withRetry("update", repo.Name, func() (CheckoutResult, error) { return c.updateOnce(repo) })
}

func (c *Client) updateOnce(repo appcfg.Repository) (CheckoutResult, error) {
	repoPath := filepath.Join(c.workspaceDir, repo.Name)
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil { // missing => clone
		slog.Debug("Repository missing, cloning", logfields.Repository(repo.Name))
		return c.cloneOnce(repo)
	}
	return c.updateExisting(repoPath, repo)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
