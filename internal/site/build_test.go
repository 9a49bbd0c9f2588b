package site

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
)

func testConfig(command string, args []string) *appcfg.SiteConfig {
	return &appcfg.SiteConfig{
		Command:    command,
		Args:       args,
		PublishDir: "public",
		Timeout:    "30s",
	}
}

func TestBuildBuilderMissing(t *testing.T) {
	b := NewBuilder(testConfig("docship-no-such-builder", nil))
	_, err := b.Build(context.Background(), t.TempDir())
	if !errors.Is(err, ErrBuilderMissing) {
		t.Fatalf("expected ErrBuilderMissing, got %v", err)
	}
}

func TestBuildProducesPublishDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}
	siteDir := t.TempDir()
	script := filepath.Join(siteDir, "build.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nmkdir -p public\necho site > public/index.html\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(testConfig("sh", []string{script}))
	res, err := b.Build(context.Background(), siteDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.PublishDir != filepath.Join(siteDir, "public") {
		t.Fatalf("unexpected publish dir %s", res.PublishDir)
	}
}

func TestBuildFailureClassified(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}
	siteDir := t.TempDir()
	script := filepath.Join(siteDir, "build.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'template error' >&2\nexit 1\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(testConfig("sh", []string{script}))
	res, err := b.Build(context.Background(), siteDir)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if res.StderrTail == "" {
		t.Fatalf("expected stderr tail")
	}
}

func TestBuildEmptyPublishDirRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}
	siteDir := t.TempDir()
	script := filepath.Join(siteDir, "build.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nmkdir -p public\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(testConfig("sh", []string{script}))
	_, err := b.Build(context.Background(), siteDir)
	if !errors.Is(err, ErrEmptyPublishDir) {
		t.Fatalf("expected ErrEmptyPublishDir, got %v", err)
	}
}
