package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pnupu/auto-updater/internal/domain"
)

// structValidator enforces the struct-tag constraints on Config. A
// single instance is reused the way grouper and fixer reuse theirs.
var structValidator = validator.New()

// Config represents the application configuration.
type Config struct {
	BuildCommand  string            `mapstructure:"build_command" validate:"required"`
	TestCommand   string            `mapstructure:"test_command" validate:"required"`
	MaxRetries    int               `mapstructure:"max_retries" validate:"min=0"`
	CreateCommits bool              `mapstructure:"create_commits"`
	DryRun        bool              `mapstructure:"dry_run"`
	Interactive   bool              `mapstructure:"interactive"`
	MigrationDocs map[string]string `mapstructure:"-"`

	Model ModelConfig `mapstructure:"model"`
	Log   LogConfig   `mapstructure:"log"`
}

// ModelConfig holds model-client-related configuration.
type ModelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key" validate:"required_if=Enabled true"`
	BaseURL     string  `mapstructure:"base_url"`
	Name        string  `mapstructure:"name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Timeout     string  `mapstructure:"timeout"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Flags carries the CLI flag values that can override file/env config.
// A field's zero value means "not set on the command line".
type Flags struct {
	DryRun        bool
	Interactive   bool
	NoCommit      bool
	BuildCommand  string
	TestCommand   string
	MaxRetries    int
	MaxRetriesSet bool
	MigrationDocs []string // repeated "pkg=url" flag values
	Resume        bool
	ClearState    bool
}

// LoadConfig loads configuration from an optional project-root JSON
// file, environment variables, and CLI flags, in that order of
// increasing precedence. migrationDocs from the file and from repeated
// --migration-doc flags are merged rather than one replacing the
// other.
func LoadConfig(configPath string, flags Flags) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	fileDocs := map[string]string{}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, continue with defaults and env vars.
		} else {
			fileDocs = readMigrationDocs(v.Get("migration_docs"))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.MigrationDocs = fileDocs
	applyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("build_command", "npm run build")
	v.SetDefault("test_command", "npm test")
	v.SetDefault("max_retries", 2)
	v.SetDefault("create_commits", true)
	v.SetDefault("dry_run", false)
	v.SetDefault("interactive", false)

	v.SetDefault("model.enabled", false)
	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("model.name", "gemini-1.5-pro")
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.timeout", "30s")
	v.SetDefault("model.max_retries", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

// applyFlags overlays CLI flag values; flags take precedence over
// file/env values whenever the flag was actually set.
func applyFlags(cfg *Config, flags Flags) {
	if flags.BuildCommand != "" {
		cfg.BuildCommand = flags.BuildCommand
	}
	if flags.TestCommand != "" {
		cfg.TestCommand = flags.TestCommand
	}
	if flags.MaxRetriesSet {
		cfg.MaxRetries = flags.MaxRetries
	}
	if flags.DryRun {
		cfg.DryRun = true
	}
	if flags.Interactive {
		cfg.Interactive = true
	}
	if flags.NoCommit {
		cfg.CreateCommits = false
	}

	for pkg, url := range ParseMigrationDocFlags(flags.MigrationDocs) {
		cfg.MigrationDocs[pkg] = url
	}
}

// ParseMigrationDocFlags parses repeated "pkg=url" flag values into a
// map. A later entry for the same package overwrites an earlier one.
func ParseMigrationDocFlags(values []string) map[string]string {
	out := map[string]string{}
	for _, raw := range values {
		pkg, url, ok := strings.Cut(raw, "=")
		if !ok || pkg == "" || url == "" {
			continue
		}
		out[pkg] = url
	}
	return out
}

// readMigrationDocs normalizes the file's migration_docs value, which
// may be either a single URL string or a list of URLs per package; the
// engine only ever acts on the first URL for a package, so a list
// collapses to its first element.
func readMigrationDocs(raw interface{}) map[string]string {
	out := map[string]string{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return out
	}
	for pkg, v := range m {
		switch val := v.(type) {
		case string:
			out[pkg] = val
		case []interface{}:
			if len(val) > 0 {
				if s, ok := val[0].(string); ok {
					out[pkg] = s
				}
			}
		}
	}
	return out
}

// Validate checks Config against its struct-tag rules (required
// fields, MaxRetries >= 0, Model.APIKey required when Model.Enabled)
// and the one constraint a tag can't express cleanly: a command that
// is present but entirely whitespace.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if strings.TrimSpace(c.BuildCommand) == "" {
		return fmt.Errorf("build command cannot be empty")
	}
	if strings.TrimSpace(c.TestCommand) == "" {
		return fmt.Errorf("test command cannot be empty")
	}
	return nil
}

// ToRunConfig projects the loaded Config into the RunConfig stored in
// RunState.
func (c *Config) ToRunConfig() domain.RunConfig {
	return domain.RunConfig{
		BuildCommand:  c.BuildCommand,
		TestCommand:   c.TestCommand,
		MaxRetries:    c.MaxRetries,
		CreateCommits: c.CreateCommits,
		ModelName:     c.Model.Name,
		MigrationDocs: c.MigrationDocs,
	}
}

// ModelEnabled reports whether a model client should be constructed
// for this run — true only when explicitly enabled with an API key.
func (c *Config) ModelEnabled() bool {
	return c.Model.Enabled && c.Model.APIKey != ""
}
