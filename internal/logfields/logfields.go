// Package logfields defines canonical slog attribute helpers so field names
// stay consistent across packages.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyRepo       = "repository"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyCommit     = "commit"
	KeyDurationMS = "duration_ms"
	KeyDeployment = "deployment_id"
	KeyArtifact   = "artifact"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Repository(r string) slog.Attr    { return slog.String(KeyRepo, r) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func DeploymentID(id string) slog.Attr { return slog.String(KeyDeployment, id) }
func Artifact(a string) slog.Attr      { return slog.String(KeyArtifact, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
