package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docship/internal/artifact"
	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/docgen"
	gitpkg "git.home.luguber.info/inful/docship/internal/git"
	"git.home.luguber.info/inful/docship/internal/history"
	"git.home.luguber.info/inful/docship/internal/metrics"
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/site"
	"git.home.luguber.info/inful/docship/internal/workspace"
)

// --- stub collaborators ---

type stubCheckout struct {
	t   *testing.T
	dir string
	err error
}

func (s *stubCheckout) Checkout(repo appcfg.Repository) (gitpkg.CheckoutResult, error) {
	if s.err != nil {
		return gitpkg.CheckoutResult{}, s.err
	}
	path := filepath.Join(s.dir, repo.Name)
	require.NoError(s.t, os.MkdirAll(path, 0o750))
	require.NoError(s.t, os.WriteFile(filepath.Join(path, "README.md"), []byte("# Widget Crate\n"), 0o600))
	return gitpkg.CheckoutResult{Path: path, PostHead: "deadbeefcafe"}, nil
}

type stubDocgen struct {
	t   *testing.T
	dir string
	err error
}

func (s *stubDocgen) Generate(_ context.Context, _, _ string) (docgen.Result, error) {
	if s.err != nil {
		return docgen.Result{}, s.err
	}
	out := filepath.Join(s.dir, "doc")
	require.NoError(s.t, os.MkdirAll(filepath.Join(out, "widget"), 0o750))
	require.NoError(s.t, os.WriteFile(filepath.Join(out, "widget", "index.html"), []byte("<html></html>"), 0o600))
	return docgen.Result{OutputDir: out}, nil
}

type stubBuilder struct {
	t    *testing.T
	html string
	err  error
}

func (s *stubBuilder) Build(_ context.Context, siteDir string) (site.Result, error) {
	if s.err != nil {
		return site.Result{}, s.err
	}
	pub := filepath.Join(siteDir, "public")
	require.NoError(s.t, os.MkdirAll(pub, 0o750))
	require.NoError(s.t, os.WriteFile(filepath.Join(pub, "index.html"), []byte(s.html), 0o600))
	return site.Result{PublishDir: pub}, nil
}

type stubDeployer struct {
	calls int
	errs  []error // error per call; nil past the end
}

func (s *stubDeployer) Publish(context.Context, artifact.Info, string, string) (*publish.Deployment, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return &publish.Deployment{ID: "dep-1", Status: publish.StatusActive, URL: "https://pages.example.com/widget"}, nil
}

type countingRecorder struct {
	metrics.NoopRecorder
	retries   int
	exhausted int
}

func (r *countingRecorder) IncStageRetry(string)          { r.retries++ }
func (r *countingRecorder) IncStageRetryExhausted(string) { r.exhausted++ }

// --- fixtures ---

func testConfig(t *testing.T) *appcfg.Config {
	t.Helper()
	sitePath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sitePath, "hugo.toml"), []byte("title = 'Docs'\n"), 0o600))
	return &appcfg.Config{
		Source: appcfg.Repository{URL: "https://example.invalid/widget.git", Name: "widget", Branch: "main"},
		Site: appcfg.SiteConfig{
			Path:       sitePath,
			MountPath:  "static/api",
			PublishDir: "public",
		},
		Publish: appcfg.PublishConfig{
			APIURL:      "https://pages.example.invalid",
			Environment: "pages",
			SizeLimitMB: 10,
		},
		Build: appcfg.BuildConfig{
			MaxRetries:        2,
			RetryBackoff:      appcfg.RetryBackoffFixed,
			RetryInitialDelay: "1ms",
			RetryMaxDelay:     "2ms",
			VerifyLinks:       appcfg.VerifyWarn,
		},
		Output: appcfg.OutputConfig{Directory: filepath.Join(t.TempDir(), "out")},
	}
}

func testPipeline(t *testing.T, cfg *appcfg.Config) (*Pipeline, *stubDeployer) {
	t.Helper()
	dep := &stubDeployer{}
	p := New(cfg).
		WithWorkspace(workspace.NewManager(t.TempDir())).
		WithCheckout(&stubCheckout{t: t, dir: t.TempDir()}).
		WithDocGenerator(&stubDocgen{t: t, dir: t.TempDir()}).
		WithSiteBuilder(&stubBuilder{t: t, html: "<html><body>ok</body></html>"}).
		WithDeployer(dep)
	return p, dep
}

// --- tests ---

func TestRunSuccess(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome())
	assert.Equal(t, 1, dep.calls)
	assert.True(t, report.Published)
	assert.Equal(t, "dep-1", report.DeploymentID)
	assert.Equal(t, "deadbeefcafe", report.SourceHead)
	assert.NotEmpty(t, report.ArtifactDigest)
	assert.Positive(t, report.DocFiles)

	// Artifact and report land in the output directory.
	_, err = os.Stat(filepath.Join(cfg.Output.Directory, "site.tar.gz"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Output.Directory, "report.json"))
	assert.NoError(t, err)

	// Every stage ran exactly once.
	for _, st := range p.stages() {
		assert.Contains(t, report.StageDurations, st.Name)
	}
}

func TestRunBuildOnlySkipsPublish(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	p.WithPublishEnabled(false)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome())
	assert.Zero(t, dep.calls)
	assert.False(t, report.Published)
	assert.NotContains(t, report.StageDurations, StagePublish)
	assert.NotEmpty(t, report.ArtifactDigest)
}

func TestRunBrokenLinksWarn(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	p.WithSiteBuilder(&stubBuilder{t: t, html: `<html><body><a href="missing.html">gone</a></body></html>`})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeWarning, report.Outcome())
	assert.Equal(t, 1, report.BrokenLinks)
	assert.True(t, report.HasIssue(IssueBrokenLinks))
	// Warning does not stop the run.
	assert.Equal(t, 1, dep.calls)
	assert.True(t, report.Published)
}

func TestRunBrokenLinksFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Build.VerifyLinks = appcfg.VerifyFatal
	p, dep := testPipeline(t, cfg)
	p.WithSiteBuilder(&stubBuilder{t: t, html: `<html><body><a href="missing.html">gone</a></body></html>`})

	report, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, OutcomeFailed, report.Outcome())
	assert.Zero(t, dep.calls)
	assert.NotContains(t, report.StageDurations, StagePackage)
}

func TestRunDocgenToolMissing(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	p.WithDocGenerator(&stubDocgen{t: t, err: docgen.ErrToolMissing})

	report, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, OutcomeFailed, report.Outcome())
	assert.True(t, report.HasIssue(IssueToolMissing))
	assert.Zero(t, dep.calls)
}

func TestRunCheckoutAuthFailure(t *testing.T) {
	cfg := testConfig(t)
	p, _ := testPipeline(t, cfg)
	p.WithCheckout(&stubCheckout{t: t, err: &gitpkg.AuthError{Op: "clone", URL: cfg.Source.URL, Err: os.ErrPermission}})

	report, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, OutcomeFailed, report.Outcome())
	assert.True(t, report.HasIssue(IssueAuthFailure))
}

func TestRunPublishTransientRetried(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	dep.errs = []error{&publish.TransientError{Op: "upload artifact", Err: os.ErrDeadlineExceeded}}
	rec := &countingRecorder{}
	p.WithRecorder(rec)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome())
	assert.Equal(t, 2, dep.calls)
	assert.Equal(t, 1, rec.retries)
	assert.Zero(t, rec.exhausted)
	assert.True(t, report.Published)
}

func TestRunPublishTransientExhausted(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	transient := &publish.TransientError{Op: "upload artifact", Err: os.ErrDeadlineExceeded}
	dep.errs = []error{transient, transient, transient}
	rec := &countingRecorder{}
	p.WithRecorder(rec)

	report, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, OutcomeFailed, report.Outcome())
	assert.Equal(t, 3, dep.calls) // initial attempt + MaxRetries
	assert.Equal(t, 2, rec.retries)
	assert.Equal(t, 1, rec.exhausted)
	assert.False(t, report.Published)
}

func TestRunPublishAuthErrorNotRetried(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	dep.errs = []error{&publish.AuthError{Op: "upload artifact", Err: os.ErrPermission}, nil}

	report, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, dep.calls)
	assert.True(t, report.HasIssue(IssueAuthFailure))
	assert.Equal(t, OutcomeFailed, report.Outcome())
}

func TestRunCanceledContext(t *testing.T) {
	cfg := testConfig(t)
	p, dep := testPipeline(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx)
	require.Error(t, err)

	assert.Equal(t, OutcomeCanceled, report.Outcome())
	assert.Zero(t, dep.calls)
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Path = filepath.Join(t.TempDir(), "runs.db")
	store, err := history.NewSQLiteStore(cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	p, _ := testPipeline(t, cfg)
	p.WithHistory(store)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	run, err := store.Get(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(OutcomeSuccess), run.Outcome)
	assert.Equal(t, report.ArtifactDigest, run.ArtifactDigest)
	assert.Equal(t, "dep-1", run.DeploymentID)
}

func TestRunRecordsFailedRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Path = filepath.Join(t.TempDir(), "runs.db")
	store, err := history.NewSQLiteStore(cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	p, _ := testPipeline(t, cfg)
	p.WithHistory(store)
	p.WithDocGenerator(&stubDocgen{t: t, err: docgen.ErrGenerationFailed})

	report, runErr := p.Run(context.Background())
	require.Error(t, runErr)

	run, err := store.Get(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(OutcomeFailed), run.Outcome)
	assert.NotEmpty(t, run.Error)
}

func TestReportOutcomePrecedence(t *testing.T) {
	r := NewReport("r1")
	assert.Equal(t, OutcomeSuccess, r.Outcome())

	r.Warnings = append(r.Warnings, os.ErrInvalid)
	assert.Equal(t, OutcomeWarning, r.Outcome())

	r.Errors = append(r.Errors, os.ErrInvalid)
	assert.Equal(t, OutcomeFailed, r.Outcome())

	r.StageErrorKinds[StageCheckoutSource] = StageErrorCanceled
	assert.Equal(t, OutcomeCanceled, r.Outcome())
}
