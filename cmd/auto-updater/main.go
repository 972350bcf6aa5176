// Command auto-updater analyzes a JavaScript/TypeScript project's
// manifest, groups and applies safe dependency upgrades, and uses a
// build/test loop (with an optional model-assisted fix pass) to keep
// the project green at every step.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pnupu/auto-updater/internal/analyzer"
	"github.com/pnupu/auto-updater/internal/checkpoint"
	"github.com/pnupu/auto-updater/internal/config"
	"github.com/pnupu/auto-updater/internal/docsearch"
	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/editengine"
	"github.com/pnupu/auto-updater/internal/fixer"
	"github.com/pnupu/auto-updater/internal/grouper"
	"github.com/pnupu/auto-updater/internal/localizer"
	"github.com/pnupu/auto-updater/internal/modelclient"
	"github.com/pnupu/auto-updater/internal/orchestrator"
	"github.com/pnupu/auto-updater/internal/packagemanager"
	"github.com/pnupu/auto-updater/internal/repoindex"
	"github.com/pnupu/auto-updater/internal/runner"
	"github.com/pnupu/auto-updater/internal/updater"
	"github.com/pnupu/auto-updater/internal/vcs"
	"github.com/pnupu/auto-updater/pkg/logger"
)

const configFileName = "auto-updater.json"

var flags config.Flags

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devpost-upgrade",
	Short: "Analyze, group, and apply dependency upgrades with a build/test safety loop",
	Long: `devpost-upgrade walks a project's manifest for outdated dependencies,
groups them into upgrade batches, applies each batch, and runs the
project's build and test commands to confirm nothing broke. When a
batch breaks the build, and a model is configured, it localizes the
failure to the likely source files, fetches migration guidance, and
asks the model to propose an edit before retrying.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Print the upgrade plan without applying it")
	rootCmd.Flags().BoolVar(&flags.Interactive, "interactive", false, "Prompt for confirmation before each group")
	rootCmd.Flags().BoolVar(&flags.NoCommit, "no-commit", false, "Apply upgrades without creating VCS commits")
	rootCmd.Flags().StringVar(&flags.BuildCommand, "build-command", "", "Override the configured build command")
	rootCmd.Flags().StringVar(&flags.TestCommand, "test-command", "", "Override the configured test command")
	rootCmd.Flags().IntVar(&flags.MaxRetries, "max-retries", 0, "Override the configured max fix-retry count")
	rootCmd.Flags().StringArrayVar(&flags.MigrationDocs, "migration-doc", nil, "pkg=url migration doc, repeatable")
	rootCmd.Flags().BoolVar(&flags.Resume, "resume", false, "Resume the most recent interrupted run from its checkpoint")
	rootCmd.Flags().BoolVar(&flags.ClearState, "clear-state", false, "Delete any persisted checkpoint and exit")
}

func run(cmd *cobra.Command, args []string) error {
	flags.MaxRetriesSet = cmd.Flags().Changed("max-retries")

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfgPath := ""
	if _, statErr := os.Stat(configFileName); statErr == nil {
		cfgPath = configFileName
	}
	cfg, err := config.LoadConfig(cfgPath, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)
	log.Info("resolved configuration", "config", config.NewDefaultConfigSanitizer().Sanitize(cfg))

	checkpointer := checkpoint.New(checkpoint.DefaultFileName)

	if flags.ClearState {
		if err := checkpointer.Clear(); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
		fmt.Println("checkpoint cleared")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	gitVCS := vcs.New(dir)
	isVersioned := gitVCS.Available(ctx)

	apiKey := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), cfg.Model.APIKey)
	modelEnabled := cfg.Model.Enabled && apiKey != ""

	threadID, initial, err := initialState(checkpointer, cfg, flags, isVersioned, modelEnabled)
	if err != nil {
		return err
	}
	ctx = logger.WithRunID(ctx, threadID)
	log = logger.FromContext(ctx, log)

	var model modelclient.ModelClient
	if modelEnabled {
		mc := modelclient.DefaultConfig()
		mc.APIKey = apiKey
		if cfg.Model.Name != "" {
			mc.Model = cfg.Model.Name
		}
		if cfg.Model.BaseURL != "" {
			mc.BaseURL = cfg.Model.BaseURL
		}
		if cfg.Model.MaxRetries > 0 {
			mc.MaxRetries = cfg.Model.MaxRetries
		}
		if d, parseErr := time.ParseDuration(cfg.Model.Timeout); parseErr == nil && d > 0 {
			mc.Timeout = d
		}
		model = modelclient.NewHTTPModelClient(mc, log)
	} else {
		log.Warn("model disabled: model not enabled or no API key configured; grouping and fixing fall back to deterministic behavior")
	}

	pm := packagemanager.New()
	index := repoindex.New(dir, repoindex.DefaultIgnorePatterns)

	deps := orchestrator.Dependencies{
		Analyzer:     analyzer.New(pm, log),
		Grouper:      grouper.New(model, log),
		Updater:      updater.New(pm, manifestPathFor(dir), log),
		Runner:       runner.New(dir, log),
		Localizer:    localizer.New(index, log),
		Fixer:        fixer.New(model, log),
		EditEngine:   editengine.New(gitVCS, dir, log),
		DocSearch:    docsearch.New(log),
		RepoIndex:    index,
		VCS:          gitVCS,
		Checkpointer: checkpointer,
	}

	o := orchestrator.New(deps, dir, log)

	final, err := o.Run(ctx, threadID, initial)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if final.Error != "" {
		fmt.Fprintf(os.Stderr, "upgrade failed in group %d: %s\n", final.Cursor, final.Error)
		fmt.Fprintln(os.Stderr, "the checkpoint was preserved; re-run with --resume to try again")
		os.Exit(1)
	}

	if len(final.Plan.Packages) == 0 {
		fmt.Println("nothing to upgrade")
	} else {
		fmt.Printf("upgraded %d group(s) across %d package(s)\n", len(final.Plan.Groups), len(final.Plan.Packages))
	}
	return nil
}

// initialState resumes from the latest checkpoint when --resume was
// passed and one exists, otherwise starts a fresh ANALYZE run under a
// new thread id.
func initialState(cp *checkpoint.Checkpointer, cfg *config.Config, f config.Flags, isVersioned, modelEnabled bool) (string, domain.RunState, error) {
	if f.Resume {
		record, ok, err := cp.LoadLatest()
		if err != nil {
			return "", domain.RunState{}, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			return record.ThreadID, record.State, nil
		}
		fmt.Println("no checkpoint found; starting a fresh run")
	}

	threadID := checkpoint.NewThreadID()
	state := domain.RunState{
		Phase:  domain.PhaseAnalyze,
		Config: cfg.ToRunConfig(),
		Flags: domain.Flags{
			IsVersioned:  isVersioned,
			ModelEnabled: modelEnabled,
			DryRun:       cfg.DryRun,
			Interactive:  cfg.Interactive,
			NoCommit:     f.NoCommit,
		},
	}
	return threadID, state, nil
}

func manifestPathFor(dir string) string {
	return filepath.Join(dir, "package.json")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
