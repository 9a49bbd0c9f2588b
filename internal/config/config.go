// Package config loads and validates the docship YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RetryBackoffMode enumerates supported retry backoff strategies.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// CloneStrategy selects how repositories are materialized in the workspace.
type CloneStrategy string

const (
	CloneStrategyFresh       CloneStrategy = "fresh"
	CloneStrategyIncremental CloneStrategy = "incremental"
)

// VerifyMode controls how broken internal links are treated.
type VerifyMode string

const (
	VerifyOff   VerifyMode = "off"
	VerifyWarn  VerifyMode = "warn"
	VerifyFatal VerifyMode = "fatal"
)

// Config is the root docship configuration.
type Config struct {
	Source  Repository    `yaml:"source"`
	Docgen  DocgenConfig  `yaml:"docgen"`
	Site    SiteConfig    `yaml:"site"`
	Publish PublishConfig `yaml:"publish"`
	Build   BuildConfig   `yaml:"build"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	History HistoryConfig `yaml:"history"`
	Output  OutputConfig  `yaml:"output"`
}

// Repository describes a Git repository to check out.
type Repository struct {
	URL    string      `yaml:"url"`
	Name   string      `yaml:"name"`
	Branch string      `yaml:"branch,omitempty"`
	Subdir string      `yaml:"subdir,omitempty"` // path inside the repo the pipeline operates on
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig represents git authentication configuration.
type AuthConfig struct {
	Type     string `yaml:"type"` // "none", "token", "basic", "ssh"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// Supported auth types.
const (
	AuthTypeNone  = "none"
	AuthTypeToken = "token"
	AuthTypeBasic = "basic"
	AuthTypeSSH   = "ssh"
)

// DocgenConfig describes the external documentation generator invocation.
type DocgenConfig struct {
	Command   string            `yaml:"command"`              // e.g. "cargo"
	Args      []string          `yaml:"args,omitempty"`       // e.g. ["doc", "--no-deps"]
	OutputDir string            `yaml:"output_dir,omitempty"` // relative to source subdir, e.g. "target/doc"
	Timeout   string            `yaml:"timeout,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// SiteConfig describes the static-site source tree and its generator.
type SiteConfig struct {
	Repo       *Repository `yaml:"repo,omitempty"` // site source tree as a git repo
	Path       string      `yaml:"path,omitempty"` // or a pre-existing local tree
	MountPath  string      `yaml:"mount_path,omitempty"`
	Command    string      `yaml:"command,omitempty"`
	Args       []string    `yaml:"args,omitempty"`
	PublishDir string      `yaml:"publish_dir,omitempty"`
	BaseURL    string      `yaml:"base_url,omitempty"`
	Timeout    string      `yaml:"timeout,omitempty"`
}

// PublishConfig describes the pages hosting deployment target.
type PublishConfig struct {
	APIURL       string `yaml:"api_url"`
	Token        string `yaml:"token,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
	SizeLimitMB  int    `yaml:"size_limit_mb,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	PollTimeout  string `yaml:"poll_timeout,omitempty"`
}

// BuildConfig carries pipeline behavior knobs shared across stages.
type BuildConfig struct {
	CloneStrategy     CloneStrategy    `yaml:"clone_strategy,omitempty"`
	ShallowDepth      int              `yaml:"shallow_depth,omitempty"`
	MaxRetries        int              `yaml:"max_retries,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
	VerifyLinks       VerifyMode       `yaml:"verify_links,omitempty"`
}

// DaemonConfig configures continuous mode.
type DaemonConfig struct {
	Interval      string      `yaml:"interval,omitempty"`
	WebhookListen string      `yaml:"webhook_listen,omitempty"`
	WebhookSecret string      `yaml:"webhook_secret,omitempty"`
	MetricsListen string      `yaml:"metrics_listen,omitempty"`
	DataDir       string      `yaml:"data_dir,omitempty"`
	NATS          *NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig configures deployment event publication.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// HistoryConfig configures the build record store.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite database path; ":memory:" for ephemeral
}

// OutputConfig configures local build output.
type OutputConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Clean     bool   `yaml:"clean,omitempty"`
}

// Load reads the configuration file, expanding ${VAR} references from the
// environment (a .env file alongside the process is loaded first if present).
func Load(configPath string) (*Config, error) {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Name == "" {
		c.Source.Name = "source"
	}
	if c.Source.Branch == "" {
		c.Source.Branch = "main"
	}
	if c.Docgen.Command == "" {
		c.Docgen.Command = "cargo"
	}
	if len(c.Docgen.Args) == 0 {
		c.Docgen.Args = []string{"doc", "--no-deps"}
	}
	if c.Docgen.OutputDir == "" {
		c.Docgen.OutputDir = "target/doc"
	}
	if c.Docgen.Timeout == "" {
		c.Docgen.Timeout = "20m"
	}
	if c.Site.Repo != nil {
		if c.Site.Repo.Name == "" {
			c.Site.Repo.Name = "site"
		}
		if c.Site.Repo.Branch == "" {
			c.Site.Repo.Branch = "main"
		}
	}
	if c.Site.MountPath == "" {
		c.Site.MountPath = "static/api"
	}
	if c.Site.Command == "" {
		c.Site.Command = "hugo"
	}
	if c.Site.PublishDir == "" {
		c.Site.PublishDir = "public"
	}
	if c.Site.Timeout == "" {
		c.Site.Timeout = "10m"
	}
	if c.Publish.Environment == "" {
		c.Publish.Environment = "pages"
	}
	if c.Publish.SizeLimitMB == 0 {
		c.Publish.SizeLimitMB = 1024
	}
	if c.Publish.PollInterval == "" {
		c.Publish.PollInterval = "3s"
	}
	if c.Publish.PollTimeout == "" {
		c.Publish.PollTimeout = "5m"
	}
	if c.Build.CloneStrategy == "" {
		c.Build.CloneStrategy = CloneStrategyFresh
	}
	if c.Build.RetryBackoff == "" {
		c.Build.RetryBackoff = RetryBackoffLinear
	}
	if c.Build.VerifyLinks == "" {
		c.Build.VerifyLinks = VerifyWarn
	}
	if c.Daemon.Interval == "" {
		c.Daemon.Interval = "1h"
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = "./docship-data"
	}
	if c.Daemon.NATS != nil && c.Daemon.NATS.Subject == "" {
		c.Daemon.NATS.Subject = "docship.deployments"
	}
	if c.History.Path == "" {
		c.History.Path = "docship.db"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./site"
	}
}

// Validate checks invariants that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Site.Repo == nil && c.Site.Path == "" {
		return fmt.Errorf("site.repo or site.path is required")
	}
	if c.Site.Repo != nil && c.Site.Path != "" {
		return fmt.Errorf("site.repo and site.path are mutually exclusive")
	}
	if c.Build.ShallowDepth < 0 {
		return fmt.Errorf("build.shallow_depth cannot be negative")
	}
	if c.Build.MaxRetries < 0 {
		return fmt.Errorf("build.max_retries cannot be negative")
	}
	switch c.Build.CloneStrategy {
	case CloneStrategyFresh, CloneStrategyIncremental:
	default:
		return fmt.Errorf("unknown clone strategy: %s", c.Build.CloneStrategy)
	}
	switch c.Build.VerifyLinks {
	case VerifyOff, VerifyWarn, VerifyFatal:
	default:
		return fmt.Errorf("unknown verify_links mode: %s", c.Build.VerifyLinks)
	}
	for _, d := range []struct{ name, val string }{
		{"docgen.timeout", c.Docgen.Timeout},
		{"site.timeout", c.Site.Timeout},
		{"publish.poll_interval", c.Publish.PollInterval},
		{"publish.poll_timeout", c.Publish.PollTimeout},
		{"daemon.interval", c.Daemon.Interval},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.val)
		}
	}
	return nil
}

// Duration parses a duration field that Validate has already checked.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
