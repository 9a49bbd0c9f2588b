package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Source: Repository{
			URL:    "https://github.com/example/specs.git",
			Name:   "specs",
			Branch: "master",
			Subdir: "rust",
		},
		Docgen: DocgenConfig{
			Command: "cargo",
			Args:    []string{"doc", "--no-deps"},
		},
		Site: SiteConfig{
			Repo: &Repository{
				URL:    "https://github.com/example/docs-site.git",
				Name:   "docs-site",
				Branch: "main",
			},
			MountPath: "static/api",
			Command:   "hugo",
			Args:      []string{"--minify"},
		},
		Publish: PublishConfig{
			APIURL:      "https://pages.example.com/api/v1",
			Token:       "${DOCSHIP_PAGES_TOKEN}",
			Environment: "pages",
		},
		Build: BuildConfig{
			CloneStrategy: CloneStrategyFresh,
			ShallowDepth:  1,
			MaxRetries:    2,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	header := "# docship configuration\n# Values of the form ${VAR} are expanded from the environment at load time.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
