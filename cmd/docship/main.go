package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/daemon"
	"git.home.luguber.info/inful/docship/internal/history"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docship.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Publish struct {
		Output string `short:"o" help:"Local output directory for artifact and report" default:""`
	} `cmd:"" help:"Build the documentation site and deploy it to the pages host"`

	Build struct {
		Output string `short:"o" help:"Local output directory for artifact and report" default:""`
	} `cmd:"" help:"Build and package the site without deploying"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Status struct {
		Limit int    `short:"n" help:"Number of runs to show" default:"10"`
		Run   string `help:"Show one run by id"`
	} `cmd:"" help:"Show recent pipeline runs"`

	Daemon struct {
		DataDir string `short:"d" help:"Data directory for daemon state" default:""`
	} `cmd:"" help:"Run continuously: periodic rebuilds and push webhooks"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch ctx.Command() {
	case "publish":
		err = runPipelineCmd(CLI.Publish.Output, true)
	case "build":
		err = runPipelineCmd(CLI.Build.Output, false)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "status":
		err = runStatus(CLI.Status.Run, CLI.Status.Limit)
	case "daemon":
		err = runDaemon(CLI.Daemon.DataDir)
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// runPipelineCmd executes one build (and optionally publish) run.
func runPipelineCmd(output string, publish bool) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if output != "" {
		cfg.Output.Directory = output
	}
	if publish && cfg.Publish.APIURL == "" {
		return fmt.Errorf("publish.api_url is required for publish (use the build command for a local-only run)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg).
		WithWorkspace(workspace.NewManager("")).
		WithPublishEnabled(publish)
	if cfg.History.Path != "" {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		p.WithHistory(store)
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

// runStatus prints recent runs from the history store.
func runStatus(runID string, limit int) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if runID != "" {
		run, err := store.Get(ctx, runID)
		if err != nil {
			return err
		}
		printRun(*run)
		return nil
	}

	runs, err := store.Latest(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, run := range runs {
		printRun(run)
	}
	return nil
}

// runDaemon starts continuous mode and blocks until interrupted.
func runDaemon(dataDir string) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.Daemon.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.Daemon.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printReport(r *pipeline.Report) {
	fmt.Printf("run %s: %s in %s\n", r.RunID, r.Outcome(), r.Duration.Round(time.Millisecond))
	if r.SourceHead != "" {
		fmt.Printf("  source   %s\n", r.SourceHead)
	}
	if r.ArtifactDigest != "" {
		fmt.Printf("  artifact %s (%d bytes, %d doc files)\n", r.ArtifactDigest[:12], r.ArtifactSize, r.DocFiles)
	}
	if r.Published {
		fmt.Printf("  deployed %s %s\n", r.DeploymentID, r.DeploymentURL)
	}
	for _, issue := range r.Issues {
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Code, issue.Message)
	}
}

func printRun(run history.Run) {
	fmt.Printf("%s  %-8s  %s", run.StartedAt.Format("2006-01-02 15:04:05"), run.Outcome, run.ID)
	if run.DeploymentURL != "" {
		fmt.Printf("  %s", run.DeploymentURL)
	}
	if run.Error != "" {
		fmt.Printf("  (%s)", run.Error)
	}
	fmt.Println()
}
