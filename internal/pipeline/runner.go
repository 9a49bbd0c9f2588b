package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/history"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/metrics"
	"git.home.luguber.info/inful/docship/internal/retry"
	"git.home.luguber.info/inful/docship/internal/workspace"
)

// Pipeline wires the collaborators of one run and executes the stages.
type Pipeline struct {
	cfg       *appcfg.Config
	workspace *workspace.Manager

	checkout SourceCheckout
	docgen   DocGenerator
	builder  SiteBuilder
	deployer Deployer

	recorder metrics.Recorder
	store    history.Store
	policy   retry.Policy

	publishEnabled bool
}

// New creates a pipeline for the given configuration. Collaborators default
// to nil and must be injected with the With helpers before Run.
func New(cfg *appcfg.Config) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		recorder:       metrics.NoopRecorder{},
		policy:         retry.FromBuildConfig(&cfg.Build),
		publishEnabled: true,
	}
}

// Fluent dependency injection helpers.

func (p *Pipeline) WithWorkspace(m *workspace.Manager) *Pipeline  { p.workspace = m; return p }
func (p *Pipeline) WithCheckout(c SourceCheckout) *Pipeline       { p.checkout = c; return p }
func (p *Pipeline) WithDocGenerator(d DocGenerator) *Pipeline     { p.docgen = d; return p }
func (p *Pipeline) WithSiteBuilder(b SiteBuilder) *Pipeline       { p.builder = b; return p }
func (p *Pipeline) WithDeployer(d Deployer) *Pipeline             { p.deployer = d; return p }
func (p *Pipeline) WithRecorder(r metrics.Recorder) *Pipeline     { p.recorder = r; return p }
func (p *Pipeline) WithHistory(s history.Store) *Pipeline         { p.store = s; return p }
func (p *Pipeline) WithPublishEnabled(enabled bool) *Pipeline     { p.publishEnabled = enabled; return p }

// stages returns the stage sequence for this pipeline's mode.
func (p *Pipeline) stages() []StageDef {
	defs := []StageDef{
		{StagePrepare, p.stagePrepare},
		{StageCheckoutSource, p.stageCheckoutSource},
		{StageGenerateDocs, p.stageGenerateDocs},
		{StageCheckoutSite, p.stageCheckoutSite},
		{StageCompose, p.stageCompose},
		{StageBuildSite, p.stageBuildSite},
		{StageVerify, p.stageVerify},
		{StagePackage, p.stagePackage},
	}
	if p.publishEnabled {
		defs = append(defs, StageDef{StagePublish, p.stagePublish})
	}
	return append(defs, StageDef{StagePostProcess, p.stagePostProcess})
}

// Run executes the pipeline once and returns its report. The returned error
// is non-nil when the run did not reach a successful (or warning) outcome.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	report := NewReport(runID)
	rs := newRunState(p.cfg, report)

	slog.Info("Pipeline run starting", logfields.RunID(runID),
		logfields.Repository(p.cfg.Source.Name), slog.Bool("publish", p.publishEnabled))

	err := p.runStages(ctx, rs, p.stages())
	report.Duration = time.Since(rs.start)

	if p.workspace != nil {
		if cerr := p.workspace.Cleanup(); cerr != nil {
			slog.Warn("Workspace cleanup failed", logfields.Error(cerr))
		}
	}

	// An aborted run never reaches post_process; record it here so the
	// history reflects failures too.
	if _, ran := report.StageDurations[StagePostProcess]; !ran {
		if herr := p.persistRun(context.WithoutCancel(ctx), rs); herr != nil {
			slog.Warn("Failed to record run", logfields.RunID(runID), logfields.Error(herr))
		}
	}

	outcome := report.Outcome()
	p.recorder.ObserveRunDuration(report.Duration)
	p.recorder.IncRunOutcome(string(outcome))

	slog.Info("Pipeline run finished", logfields.RunID(runID),
		slog.String("outcome", string(outcome)),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	return report, err
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error. Transient stage errors are retried per the build policy.
func (p *Pipeline) runStages(ctx context.Context, rs *RunState, defs []StageDef) error {
	for _, st := range defs {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.Name, ctx.Err())
			p.recordStage(rs, st.Name, se, 0)
			return se
		default:
		}

		t0 := time.Now()
		err := p.runStageWithRetry(ctx, rs, st)
		dur := time.Since(t0)
		rs.Report.StageDurations[st.Name] = dur
		p.recorder.ObserveStageDuration(string(st.Name), dur)

		if err == nil {
			p.recordStage(rs, st.Name, nil, dur)
			continue
		}

		se, ok := AsStageError(err)
		if !ok {
			// Wrap unknown errors as fatal by default.
			se = newFatalStageError(st.Name, err)
		}
		p.recordStage(rs, st.Name, se, dur)
		switch se.Kind {
		case StageErrorWarning:
			rs.Report.Warnings = append(rs.Report.Warnings, se)
			continue
		default:
			rs.Report.Errors = append(rs.Report.Errors, se)
			return se
		}
	}
	return nil
}

// runStageWithRetry retries a stage while it reports transient failures.
// Exhausted retries escalate to fatal.
func (p *Pipeline) runStageWithRetry(ctx context.Context, rs *RunState, st StageDef) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := st.Fn(ctx, rs)
		if err == nil {
			return nil
		}
		se, ok := AsStageError(err)
		if !ok || se.Kind != StageErrorTransient {
			return err
		}
		lastErr = se.Err
		if attempt >= p.policy.MaxRetries {
			p.recorder.IncStageRetryExhausted(string(st.Name))
			return newFatalStageError(st.Name, lastErr)
		}
		p.recorder.IncStageRetry(string(st.Name))
		slog.Warn("Transient stage failure, retrying", logfields.Stage(string(st.Name)),
			slog.Int("attempt", attempt+1), logfields.Error(se.Err))
		select {
		case <-ctx.Done():
			return newCanceledStageError(st.Name, ctx.Err())
		case <-time.After(p.policy.Delay(attempt + 1)):
		}
	}
}

// recordStage updates report counters and emits stage metrics.
func (p *Pipeline) recordStage(rs *RunState, stage StageName, se *StageError, _ time.Duration) {
	sc := rs.Report.StageCounts[stage]
	if se == nil {
		sc.Success++
		rs.Report.StageCounts[stage] = sc
		p.recorder.IncStageResult(string(stage), metrics.ResultSuccess)
		return
	}
	rs.Report.StageErrorKinds[stage] = se.Kind
	switch se.Kind {
	case StageErrorWarning:
		sc.Warning++
		p.recorder.IncStageResult(string(stage), metrics.ResultWarning)
	case StageErrorCanceled:
		sc.Canceled++
		p.recorder.IncStageResult(string(stage), metrics.ResultCanceled)
	default:
		sc.Fatal++
		p.recorder.IncStageResult(string(stage), metrics.ResultFatal)
	}
	rs.Report.StageCounts[stage] = sc
}

// persistRun writes the run record; called from the post_process stage.
func (p *Pipeline) persistRun(ctx context.Context, rs *RunState) error {
	if p.store == nil {
		return nil
	}
	report := rs.Report
	run := history.Run{
		ID:             report.RunID,
		StartedAt:      report.StartedAt,
		FinishedAt:     time.Now(),
		Outcome:        string(report.Outcome()),
		SourceHead:     report.SourceHead,
		SiteHead:       report.SiteHead,
		ArtifactDigest: report.ArtifactDigest,
		ArtifactSize:   report.ArtifactSize,
		DeploymentID:   report.DeploymentID,
		DeploymentURL:  report.DeploymentURL,
	}
	if len(report.Errors) > 0 {
		run.Error = errors.Join(report.Errors...).Error()
	}
	return p.store.Record(ctx, run)
}
