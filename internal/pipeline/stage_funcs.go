package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docship/internal/artifact"
	"git.home.luguber.info/inful/docship/internal/compose"
	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/docgen"
	gitpkg "git.home.luguber.info/inful/docship/internal/git"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/site"
	"git.home.luguber.info/inful/docship/internal/verify"
	"git.home.luguber.info/inful/docship/internal/workspace"
)

// artifactName is the packed site artifact filename within the output directory.
const artifactName = "site.tar.gz"

// stagePrepare materializes the workspace and output directory. Collaborators
// that depend on the workspace path are constructed here when not injected.
func (p *Pipeline) stagePrepare(_ context.Context, rs *RunState) error {
	if p.workspace == nil {
		p.workspace = workspace.NewManager("")
	}
	if err := p.workspace.Create(); err != nil {
		return newFatalStageError(StagePrepare, err)
	}
	rs.WorkspaceDir = p.workspace.GetPath()

	out := rs.Config.Output.Directory
	if rs.Config.Output.Clean {
		if err := os.RemoveAll(out); err != nil {
			return newFatalStageError(StagePrepare, fmt.Errorf("clean output directory: %w", err))
		}
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		return newFatalStageError(StagePrepare, fmt.Errorf("create output directory: %w", err))
	}
	rs.OutputDir = out

	if p.checkout == nil {
		p.checkout = gitpkg.NewClient(rs.WorkspaceDir).WithBuildConfig(&rs.Config.Build)
	}
	if p.docgen == nil {
		p.docgen = docgen.NewRunner(&rs.Config.Docgen)
	}
	if p.builder == nil {
		p.builder = site.NewBuilder(&rs.Config.Site)
	}
	if p.deployer == nil && p.publishEnabled {
		// Deployment polling retries internally; upload retries are driven by
		// the stage engine, so the publisher gets a non-retrying policy.
		policy := p.policy
		policy.MaxRetries = 0
		p.deployer = publish.NewPublisher(publish.NewClient(&rs.Config.Publish), policy)
	}
	return nil
}

// stageCheckoutSource materializes the documentation source repository.
func (p *Pipeline) stageCheckoutSource(_ context.Context, rs *RunState) error {
	res, err := p.checkout.Checkout(rs.Config.Source)
	if err != nil {
		if code, ok := classifyGitIssue(err); ok {
			rs.Report.AddIssue(code, StageCheckoutSource, SeverityError, err.Error())
		}
		return newFatalStageError(StageCheckoutSource, err)
	}
	rs.SourcePath = res.Path
	rs.Report.SourceHead = res.PostHead
	return nil
}

// stageGenerateDocs runs the external documentation generator against the
// source checkout.
func (p *Pipeline) stageGenerateDocs(ctx context.Context, rs *RunState) error {
	res, err := p.docgen.Generate(ctx, rs.SourcePath, rs.Config.Source.Subdir)
	if err != nil {
		code := IssueDocgenFailed
		if errors.Is(err, docgen.ErrToolMissing) {
			code = IssueToolMissing
		}
		rs.Report.AddIssue(code, StageGenerateDocs, SeverityError, err.Error())
		return newFatalStageError(StageGenerateDocs, err)
	}
	rs.DocsDir = res.OutputDir
	return nil
}

// stageCheckoutSite materializes the static-site source tree, either from a
// git repository or by copying a configured local tree into the workspace. The
// copy keeps the compose stage from mutating a tree the user owns.
func (p *Pipeline) stageCheckoutSite(_ context.Context, rs *RunState) error {
	if repo := rs.Config.Site.Repo; repo != nil {
		res, err := p.checkout.Checkout(*repo)
		if err != nil {
			if code, ok := classifyGitIssue(err); ok {
				rs.Report.AddIssue(code, StageCheckoutSite, SeverityError, err.Error())
			}
			return newFatalStageError(StageCheckoutSite, err)
		}
		rs.SitePath = res.Path
		rs.Report.SiteHead = res.PostHead
		return nil
	}

	src := rs.Config.Site.Path
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return newFatalStageError(StageCheckoutSite, fmt.Errorf("site.path is not a directory: %s", src))
	}
	dst := filepath.Join(rs.WorkspaceDir, "site")
	if _, err := compose.CopyTree(src, dst); err != nil {
		return newFatalStageError(StageCheckoutSite, fmt.Errorf("copy site tree: %w", err))
	}
	rs.SitePath = dst
	return nil
}

// stageCompose merges the generated documentation into the site tree at the
// mount path and ensures the mount root has an entry page.
func (p *Pipeline) stageCompose(_ context.Context, rs *RunState) error {
	mountPath := rs.Config.Site.MountPath
	count, err := compose.Merge(rs.DocsDir, rs.SitePath, mountPath)
	if err != nil {
		return newFatalStageError(StageCompose, err)
	}
	rs.Report.DocFiles = count

	crateRoot := filepath.Join(rs.SourcePath, filepath.FromSlash(rs.Config.Source.Subdir))
	title := compose.LandingTitle(crateRoot, rs.Config.Source.Name)
	mountDir := filepath.Join(rs.SitePath, filepath.FromSlash(mountPath))
	if err := compose.WriteLandingPage(mountDir, title); err != nil {
		return newFatalStageError(StageCompose, fmt.Errorf("write landing page: %w", err))
	}
	return nil
}

// stageBuildSite runs the external static-site generator.
func (p *Pipeline) stageBuildSite(ctx context.Context, rs *RunState) error {
	res, err := p.builder.Build(ctx, rs.SitePath)
	if err != nil {
		code := IssueSiteBuildFailed
		if errors.Is(err, site.ErrBuilderMissing) {
			code = IssueToolMissing
		}
		rs.Report.AddIssue(code, StageBuildSite, SeverityError, err.Error())
		return newFatalStageError(StageBuildSite, err)
	}
	rs.PublishDir = res.PublishDir
	return nil
}

// stageVerify scans the built site for broken internal links.
func (p *Pipeline) stageVerify(_ context.Context, rs *RunState) error {
	mode := rs.Config.Build.VerifyLinks
	if mode == appcfg.VerifyOff {
		return nil
	}
	findings, err := verify.CheckTree(rs.PublishDir)
	if err != nil {
		return newFatalStageError(StageVerify, err)
	}
	rs.Verify = findings
	rs.Report.BrokenLinks = len(findings)
	if len(findings) == 0 {
		return nil
	}

	sev := SeverityWarning
	if mode == appcfg.VerifyFatal {
		sev = SeverityError
	}
	for _, f := range findings {
		rs.Report.AddIssue(IssueBrokenLinks, StageVerify, sev, f.String())
	}
	err = fmt.Errorf("%d broken internal links", len(findings))
	if mode == appcfg.VerifyFatal {
		return newFatalStageError(StageVerify, err)
	}
	return newWarnStageError(StageVerify, err)
}

// stagePackage writes the deterministic site artifact.
func (p *Pipeline) stagePackage(_ context.Context, rs *RunState) error {
	limit := int64(rs.Config.Publish.SizeLimitMB) << 20
	dest := filepath.Join(rs.OutputDir, artifactName)
	info, err := artifact.Pack(rs.PublishDir, dest, limit)
	if err != nil {
		if errors.Is(err, artifact.ErrTooLarge) {
			rs.Report.AddIssue(IssueArtifactTooLarge, StagePackage, SeverityError, err.Error())
		}
		return newFatalStageError(StagePackage, err)
	}
	rs.Artifact = info
	rs.Report.ArtifactDigest = info.Digest
	rs.Report.ArtifactSize = info.Size
	p.recorder.ObserveArtifactSize(info.Size)
	return nil
}

// stagePublish uploads the artifact and waits for the deployment to settle.
// Transient failures are surfaced as retryable stage errors.
func (p *Pipeline) stagePublish(ctx context.Context, rs *RunState) error {
	dep, err := p.deployer.Publish(ctx, rs.Artifact, rs.Config.Publish.Environment, rs.Report.SourceHead)
	p.recorder.IncDeployResult(err == nil)
	if err != nil {
		var authErr *publish.AuthError
		var sizeErr *publish.TooLargeError
		var failErr *publish.DeploymentFailedError
		switch {
		case errors.As(err, &authErr):
			rs.Report.AddIssue(IssueAuthFailure, StagePublish, SeverityError, err.Error())
		case errors.As(err, &sizeErr):
			rs.Report.AddIssue(IssueArtifactTooLarge, StagePublish, SeverityError, err.Error())
		case publish.IsTransient(err):
			return newTransientStageError(StagePublish, err)
		case errors.As(err, &failErr):
			rs.Report.AddIssue(IssueDeployFailed, StagePublish, SeverityError, err.Error())
		default:
			rs.Report.AddIssue(IssueDeployFailed, StagePublish, SeverityError, err.Error())
		}
		return newFatalStageError(StagePublish, err)
	}

	rs.Deployment = dep
	rs.Report.Published = true
	rs.Report.DeploymentID = dep.ID
	rs.Report.DeploymentURL = dep.URL
	slog.Info("Deployment active", logfields.DeploymentID(dep.ID), logfields.URL(dep.URL))
	return nil
}

// stagePostProcess persists the run record and writes the report summary next
// to the artifact. Failures here degrade to warnings: the site is already
// built and published.
func (p *Pipeline) stagePostProcess(ctx context.Context, rs *RunState) error {
	if err := p.persistRun(ctx, rs); err != nil {
		return newWarnStageError(StagePostProcess, fmt.Errorf("record run: %w", err))
	}
	if err := writeReportFile(rs); err != nil {
		return newWarnStageError(StagePostProcess, err)
	}
	return nil
}

// writeReportFile serializes the report as JSON into the output directory.
func writeReportFile(rs *RunState) error {
	rs.Report.Duration = time.Since(rs.start)
	data, err := json.MarshalIndent(reportDocument(rs.Report), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(rs.OutputDir, "report.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// classifyGitIssue maps typed git errors onto report issue codes. Unclassified
// errors yield ok=false and are carried on the stage error alone.
func classifyGitIssue(err error) (ReportIssueCode, bool) {
	var (
		authErr     *gitpkg.AuthError
		notFound    *gitpkg.NotFoundError
		protoErr    *gitpkg.UnsupportedProtocolError
		divergedErr *gitpkg.RemoteDivergedError
		rateErr     *gitpkg.RateLimitError
		timeoutErr  *gitpkg.NetworkTimeoutError
	)
	switch {
	case errors.As(err, &authErr):
		return IssueAuthFailure, true
	case errors.As(err, &notFound):
		return IssueRepoNotFound, true
	case errors.As(err, &protoErr):
		return IssueUnsupportedProto, true
	case errors.As(err, &divergedErr):
		return IssueRemoteDiverged, true
	case errors.As(err, &rateErr):
		return IssueRateLimit, true
	case errors.As(err, &timeoutErr):
		return IssueNetworkTimeout, true
	default:
		return "", false
	}
}
