package git

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/logfields"
)

func (c *Client) updateExisting(repoPath string, repo appcfg.Repository) (CheckoutResult, error) {
	repository, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("open repo: %w", err)
	}
	slog.Info("Updating repository", logfields.Repository(repo.Name), logfields.Path(repoPath))

	res := CheckoutResult{Path: repoPath}
	if head, herr := ReadRepoHead(repoPath); herr == nil {
		res.PreHead = head
	}

	wt, err := repository.Worktree()
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("worktree: %w", err)
	}

	if err := c.fetchOrigin(repository, repo); err != nil {
		return CheckoutResult{}, classifyError("fetch", repo.URL, err)
	}

	branch := resolveTargetBranch(repository, repo)

	localRef, remoteRef, err := checkoutAndGetRefs(repository, wt, branch)
	if err != nil {
		return CheckoutResult{}, err
	}

	if err := fastForward(wt, repo, branch, localRef, remoteRef); err != nil {
		return CheckoutResult{}, err
	}

	if head, herr := ReadRepoHead(repoPath); herr == nil {
		res.PostHead = head
	}
	slog.Info("Repository updated", logfields.Repository(repo.Name),
		slog.String("branch", branch), logfields.Commit(shortHash(res.PostHead)))
	return res, nil
}

// fetchOrigin fetches origin with appropriate depth, refspec, and authentication.
func (c *Client) fetchOrigin(repository *gogit.Repository, repo appcfg.Repository) error {
	opts := &gogit.FetchOptions{
		RemoteName: "origin",
		Tags:       gogit.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if c.buildCfg != nil && c.buildCfg.ShallowDepth > 0 {
		opts.Depth = c.buildCfg.ShallowDepth
	}
	auth, err := buildAuth(repo.Auth)
	if err != nil {
		return err
	}
	if auth != nil {
		opts.Auth = auth
	}
	if err := repository.Fetch(opts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// resolveTargetBranch follows precedence: explicit config branch, current HEAD
// branch, then "main" fallback.
func resolveTargetBranch(repository *gogit.Repository, repo appcfg.Repository) string {
	if repo.Branch != "" {
		return repo.Branch
	}
	if headRef, err := repository.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short()
	}
	return "main"
}

// checkoutAndGetRefs ensures the local branch exists and is checked out,
// returning both local and remote references.
func checkoutAndGetRefs(repository *gogit.Repository, wt *gogit.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localBranchRef := plumbing.NewBranchReferenceName(branch)
	remoteBranchRef := plumbing.NewRemoteReferenceName("origin", branch)
	remoteRef, err = repository.Reference(remoteBranchRef, true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}
	localRef, lerr := repository.Reference(localBranchRef, true)
	if lerr != nil { // create local branch
		if err = wt.Checkout(&gogit.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, _ = repository.Reference(localBranchRef, true)
	} else {
		if err = wt.Checkout(&gogit.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
		}
	}
	return localRef, remoteRef, nil
}

// fastForward resets the worktree to the remote head. A local head that is
// neither equal to nor behind the remote is reported as divergence.
func fastForward(wt *gogit.Worktree, repo appcfg.Repository, branch string, localRef, remoteRef *plumbing.Reference) error {
	if localRef != nil && localRef.Hash() == remoteRef.Hash() {
		return nil
	}
	err := wt.Reset(&gogit.ResetOptions{Commit: remoteRef.Hash(), Mode: gogit.HardReset})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "diverged") {
			return &RemoteDivergedError{Op: "update", URL: repo.URL, Branch: branch, Err: err}
		}
		return fmt.Errorf("reset to remote head: %w", err)
	}
	return nil
}
