// Package site runs the external static-site generator against the prepared
// site source tree and locates its publish directory.
package site

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

// ErrBuilderMissing indicates the site generator binary is not installed.
var ErrBuilderMissing = errors.New("site generator not found in PATH")

// ErrBuildFailed indicates the site generator exited non-zero.
var ErrBuildFailed = errors.New("site build failed")

// ErrEmptyPublishDir indicates the build produced no deployable output.
var ErrEmptyPublishDir = errors.New("publish directory missing or empty")

const stderrTailLimit = 4096

// Builder runs the configured site generator.
type Builder struct {
	cfg *appcfg.SiteConfig
}

// NewBuilder creates a builder for the given site configuration.
func NewBuilder(cfg *appcfg.SiteConfig) *Builder { return &Builder{cfg: cfg} }

// Result describes a completed site build.
type Result struct {
	PublishDir string
	Duration   time.Duration
	StderrTail string
}

// Build runs the site generator in siteDir and verifies the publish directory.
func (b *Builder) Build(ctx context.Context, siteDir string) (Result, error) {
	if _, err := exec.LookPath(b.cfg.Command); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrBuilderMissing, b.cfg.Command)
	}

	timeout := appcfg.Duration(b.cfg.Timeout)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := b.cfg.Args
	if b.cfg.BaseURL != "" {
		args = append(append([]string{}, args...), "--baseURL", b.cfg.BaseURL)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	cmd.Dir = siteDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	slog.Info("Running site generator",
		slog.String("command", b.cfg.Command),
		slog.String("args", strings.Join(args, " ")),
		logfields.Path(siteDir))

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), StderrTail: tail(stderr.Bytes())}
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w: %v", ErrBuildFailed, ctx.Err())
		}
		return res, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	publishDir := filepath.Join(siteDir, filepath.FromSlash(b.cfg.PublishDir))
	if err := checkPublishDir(publishDir); err != nil {
		return res, err
	}
	res.PublishDir = publishDir
	slog.Info("Site built", logfields.Path(publishDir),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

func checkPublishDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEmptyPublishDir, dir)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrEmptyPublishDir, dir)
	}
	return nil
}

func tail(b []byte) string {
	if len(b) > stderrTailLimit {
		b = b[len(b)-stderrTailLimit:]
	}
	return string(b)
}
