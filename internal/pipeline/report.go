package pipeline

import (
	"time"
)

// ReportIssueCode identifies a class of pipeline problem for machine consumption.
type ReportIssueCode string

// Issue codes.
const (
	IssueAuthFailure      ReportIssueCode = "AUTH_FAILURE"
	IssueRepoNotFound     ReportIssueCode = "REPO_NOT_FOUND"
	IssueUnsupportedProto ReportIssueCode = "UNSUPPORTED_PROTOCOL"
	IssueRemoteDiverged   ReportIssueCode = "REMOTE_DIVERGED"
	IssueRateLimit        ReportIssueCode = "RATE_LIMIT"
	IssueNetworkTimeout   ReportIssueCode = "NETWORK_TIMEOUT"
	IssueToolMissing      ReportIssueCode = "TOOL_MISSING"
	IssueDocgenFailed     ReportIssueCode = "DOCGEN_FAILED"
	IssueSiteBuildFailed  ReportIssueCode = "SITE_BUILD_FAILED"
	IssueBrokenLinks      ReportIssueCode = "BROKEN_LINKS"
	IssueArtifactTooLarge ReportIssueCode = "ARTIFACT_TOO_LARGE"
	IssueDeployFailed     ReportIssueCode = "DEPLOY_FAILED"
)

// Severity of a report issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one classified problem encountered during a run.
type Issue struct {
	Code     ReportIssueCode
	Stage    StageName
	Severity Severity
	Message  string
}

// StageCount tracks per-stage outcome tallies (retries make >1 possible).
type StageCount struct {
	Success  int
	Warning  int
	Fatal    int
	Canceled int
}

// Outcome is the final classification of a run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Report aggregates everything observed in one pipeline run.
type Report struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Issues          []Issue
	Warnings        []error
	Errors          []error

	SourceHead     string
	SiteHead       string
	DocFiles       int // files merged into the site
	BrokenLinks    int
	ArtifactDigest string
	ArtifactSize   int64
	DeploymentID   string
	DeploymentURL  string
	Published      bool
}

// NewReport constructs an empty report for a run.
func NewReport(runID string) *Report {
	return &Report{
		RunID:           runID,
		StartedAt:       time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

// AddIssue records a classified problem.
func (r *Report) AddIssue(code ReportIssueCode, stage StageName, sev Severity, msg string) {
	r.Issues = append(r.Issues, Issue{Code: code, Stage: stage, Severity: sev, Message: msg})
}

// HasIssue reports whether an issue with the given code was recorded.
func (r *Report) HasIssue(code ReportIssueCode) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// reportDoc is the JSON shape of a run report written alongside the artifact.
type reportDoc struct {
	RunID          string             `json:"run_id"`
	Outcome        Outcome            `json:"outcome"`
	StartedAt      time.Time          `json:"started_at"`
	DurationMS     int64              `json:"duration_ms"`
	SourceHead     string             `json:"source_head,omitempty"`
	SiteHead       string             `json:"site_head,omitempty"`
	DocFiles       int                `json:"doc_files"`
	BrokenLinks    int                `json:"broken_links"`
	ArtifactDigest string             `json:"artifact_digest,omitempty"`
	ArtifactSize   int64              `json:"artifact_size,omitempty"`
	DeploymentID   string             `json:"deployment_id,omitempty"`
	DeploymentURL  string             `json:"deployment_url,omitempty"`
	Published      bool               `json:"published"`
	Stages         map[string]int64   `json:"stage_duration_ms"`
	Issues         []reportDocIssue   `json:"issues,omitempty"`
}

type reportDocIssue struct {
	Code     ReportIssueCode `json:"code"`
	Stage    StageName       `json:"stage"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
}

// reportDocument flattens a report for serialization.
func reportDocument(r *Report) reportDoc {
	doc := reportDoc{
		RunID:          r.RunID,
		Outcome:        r.Outcome(),
		StartedAt:      r.StartedAt,
		DurationMS:     r.Duration.Milliseconds(),
		SourceHead:     r.SourceHead,
		SiteHead:       r.SiteHead,
		DocFiles:       r.DocFiles,
		BrokenLinks:    r.BrokenLinks,
		ArtifactDigest: r.ArtifactDigest,
		ArtifactSize:   r.ArtifactSize,
		DeploymentID:   r.DeploymentID,
		DeploymentURL:  r.DeploymentURL,
		Published:      r.Published,
		Stages:         make(map[string]int64, len(r.StageDurations)),
	}
	for name, d := range r.StageDurations {
		doc.Stages[string(name)] = d.Milliseconds()
	}
	for _, i := range r.Issues {
		doc.Issues = append(doc.Issues, reportDocIssue{Code: i.Code, Stage: i.Stage, Severity: i.Severity, Message: i.Message})
	}
	return doc
}

// Outcome classifies the finished run.
func (r *Report) Outcome() Outcome {
	for _, kind := range r.StageErrorKinds {
		if kind == StageErrorCanceled {
			return OutcomeCanceled
		}
	}
	if len(r.Errors) > 0 {
		return OutcomeFailed
	}
	if len(r.Warnings) > 0 {
		return OutcomeWarning
	}
	return OutcomeSuccess
}
