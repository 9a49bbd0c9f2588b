// Package docgen invokes the external documentation generator and locates its
// output. The generator itself (e.g. cargo doc) is a black box; docship only
// owns invocation, timeout, and failure classification.
package docgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/logfields"
)

// ErrToolMissing indicates the generator binary is not installed.
var ErrToolMissing = errors.New("documentation generator not found in PATH")

// ErrGenerationFailed indicates the generator ran but exited non-zero.
var ErrGenerationFailed = errors.New("documentation generation failed")

// ErrNoOutput indicates the generator succeeded but produced no output directory.
var ErrNoOutput = errors.New("documentation output directory missing or empty")

// stderrTailLimit bounds how much generator stderr is kept for reports.
const stderrTailLimit = 4096

// Runner executes the documentation generator for a checked-out source tree.
type Runner struct {
	cfg *appcfg.DocgenConfig
}

// NewRunner creates a runner for the given docgen configuration.
func NewRunner(cfg *appcfg.DocgenConfig) *Runner { return &Runner{cfg: cfg} }

// Result describes a completed generation.
type Result struct {
	OutputDir  string // absolute path of the generated documentation tree
	Duration   time.Duration
	StderrTail string // last portion of stderr, kept for reports on failure
}

// Generate runs the generator inside workDir (repo path joined with the
// configured subdir) and resolves the output directory.
func (r *Runner) Generate(ctx context.Context, repoPath, subdir string) (Result, error) {
	workDir := repoPath
	if subdir != "" {
		workDir = filepath.Join(repoPath, filepath.FromSlash(subdir))
	}
	if st, err := os.Stat(workDir); err != nil || !st.IsDir() {
		return Result{}, fmt.Errorf("source subdir %s not present in checkout: %w", subdir, err)
	}

	if _, err := exec.LookPath(r.cfg.Command); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrToolMissing, r.cfg.Command)
	}

	timeout := appcfg.Duration(r.cfg.Timeout)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	cmd.Dir = workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), envList(r.cfg.Env)...)

	slog.Info("Running documentation generator",
		slog.String("command", r.cfg.Command),
		slog.String("args", strings.Join(r.cfg.Args, " ")),
		logfields.Path(workDir))

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), StderrTail: tail(stderr.Bytes())}
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
		}
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	out := filepath.Join(workDir, filepath.FromSlash(r.cfg.OutputDir))
	if err := checkOutputDir(out); err != nil {
		return res, err
	}
	res.OutputDir = out
	slog.Info("Documentation generated", logfields.Path(out),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

func checkOutputDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoOutput, dir)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoOutput, dir)
	}
	return nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func tail(b []byte) string {
	if len(b) > stderrTailLimit {
		b = b[len(b)-stderrTailLimit:]
	}
	return string(b)
}
