package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tix/internal/bus"
	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
// The event bus and repository are constructed once per process and
// passed explicitly to every consumer; there is no global bus.
var (
	ui       *output.UI
	repo     store.Repository
	eventBus *bus.Bus
	tixDir   string

	verbose bool
	dryRun  bool

	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "tix",
	Short: "tix - file-backed ticket tracking for developers",
	Long: `tix tracks tickets and their tasks in a plain .tix file tree.
Multiple processes can work on the same tree concurrently: every
mutation takes a per-ticket lock and writes atomically, so the tree
is always a consistent snapshot.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <project>/.tix/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := store.Discover("."); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TIX")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	viper.SetDefault("lock.timeout", store.DefaultLockTimeout)
	viper.SetDefault("lock.stale_after", store.DefaultStaleAfter)
	viper.SetDefault("ticket.default_priority", "medium")
	// States a blocked ticket may resume to; product decision, so
	// configurable rather than hard-coded.
	viper.SetDefault("workflow.blocked_resume", []string{"todo", "doing", "review"})

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The repository is opened lazily so init/config/version commands
	// work outside an initialized project.
}

// rootRun handles `tix` with no subcommand: show the active ticket
// overview, or help when no project is initialized.
func rootRun(cmd *cobra.Command) error {
	if _, err := getRepo(); err != nil {
		return cmd.Help()
	}
	return checkRun()
}

// getRepo returns the shared repository, opening it on first call.
func getRepo() (store.Repository, error) {
	if repo != nil {
		return repo, nil
	}

	dir, err := store.Discover(".")
	if err != nil {
		return nil, err
	}

	eventBus = bus.New()
	s, err := store.NewFileStore(dir, store.Options{
		LockTimeout: viper.GetDuration("lock.timeout"),
		StaleAfter:  viper.GetDuration("lock.stale_after"),
		Policy:      policyFromConfig(),
		Bus:         eventBus,
	})
	if err != nil {
		return nil, err
	}

	tixDir = dir
	repo = s
	return repo, nil
}

// policyFromConfig builds the transition policy from configuration.
func policyFromConfig() models.TransitionPolicy {
	var resume []models.Status
	for _, raw := range viper.GetStringSlice("workflow.blocked_resume") {
		status, err := models.ParseStatus(raw)
		if err != nil || status == models.StatusBlocked {
			continue
		}
		resume = append(resume, status)
	}
	if len(resume) == 0 {
		return models.DefaultTransitionPolicy()
	}
	return models.TransitionPolicy{BlockedResume: resume}
}

// resolveTicketRef resolves a user-supplied reference, falling back
// to the active ticket when the reference is empty.
func resolveTicketRef(ctx context.Context, r store.Repository, ref string) (string, error) {
	if ref != "" {
		return r.Resolve(ctx, ref)
	}
	id, err := r.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("no ticket specified: %w", err)
	}
	return id, nil
}

// shortID returns the display form of a ticket ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
