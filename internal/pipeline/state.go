package pipeline

import (
	"context"
	"time"

	"git.home.luguber.info/inful/docship/internal/artifact"
	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/docgen"
	gitpkg "git.home.luguber.info/inful/docship/internal/git"
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/site"
	"git.home.luguber.info/inful/docship/internal/verify"
)

// SourceCheckout materializes a repository and reports heads.
type SourceCheckout interface {
	Checkout(repo appcfg.Repository) (gitpkg.CheckoutResult, error)
}

// DocGenerator runs the external documentation generator.
type DocGenerator interface {
	Generate(ctx context.Context, repoPath, subdir string) (docgen.Result, error)
}

// SiteBuilder runs the external static-site generator.
type SiteBuilder interface {
	Build(ctx context.Context, siteDir string) (site.Result, error)
}

// Deployer uploads an artifact and drives its deployment to a terminal state.
type Deployer interface {
	Publish(ctx context.Context, info artifact.Info, environment, commit string) (*publish.Deployment, error)
}

// RunState carries mutable state across stages of one run.
type RunState struct {
	Config *appcfg.Config
	Report *Report

	WorkspaceDir string
	OutputDir    string // local artifact output directory

	SourcePath string // checkout path of the source repository
	SitePath   string // site source tree (checkout or configured local path)

	DocsDir    string // generated documentation tree
	PublishDir string // built site output

	Artifact   artifact.Info
	Deployment *publish.Deployment

	Verify []verify.Finding

	start time.Time
}

// newRunState constructs a RunState for one run.
func newRunState(cfg *appcfg.Config, report *Report) *RunState {
	return &RunState{
		Config: cfg,
		Report: report,
		start:  time.Now(),
	}
}
