package main

import (
	"context"
	"fmt"
	"os"

	"anchorkeeper/internal/anchor"
	"anchorkeeper/internal/backup"
	"anchorkeeper/internal/config"
	"anchorkeeper/internal/keeper"
	"anchorkeeper/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string
	savesDir   string
	dbPath     string

	// Watch flags
	debounce    string
	scanOnStart bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "anchorkeeper",
	Short: "Keeps ground anchors where you put them",
	Long: `anchorkeeper watches a KSP saves directory and undoes vertical drift of
Stamp-O-Tron Ground Anchors.

Every time a save file settles, the anchors in it are compared against a
persisted baseline. New anchors are remembered, moved anchors are accepted,
and anchors whose altitude or height changed are written back to their
remembered values.

Run without arguments to watch the saves directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(loaded)
		if err := loaded.ExpandPaths(); err != nil {
			return err
		}
		cfg = loaded

		logCfg := logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.BootDebug("Config loaded from %s: saves=%s db=%s", configPath, cfg.SavesDirectory, cfg.DatabasePath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runWatch,
}

// applyFlagOverrides puts explicitly given flags above env and file settings.
func applyFlagOverrides(c *config.Config) {
	if savesDir != "" {
		c.SavesDirectory = savesDir
	}
	if dbPath != "" {
		c.DatabasePath = dbPath
	}
	if debounce != "" {
		c.DebounceInterval = debounce
	}
	if scanOnStart {
		c.ScanOnStart = true
	}
}

// keeperOptions builds keeper options from the loaded config.
func keeperOptions() keeper.Options {
	opts := keeper.Options{
		Extractor: anchor.Extractor{
			PartName:   cfg.Anchor.PartName,
			VesselType: cfg.Anchor.VesselType,
		},
	}
	if cfg.Backup.Enabled {
		opts.Backup = backup.New(cfg.Backup.Directory, cfg.Backup.Keep)
	}
	return opts
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Config file")
	rootCmd.PersistentFlags().StringVar(&savesDir, "saves-dir", "", "Saves directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Baseline database path (overrides config)")

	for _, c := range []*cobra.Command{rootCmd, watchCmd} {
		c.Flags().StringVar(&debounce, "debounce", "", "Quiet period before a changed file is processed (e.g. 1s)")
		c.Flags().BoolVar(&scanOnStart, "scan-on-start", false, "Process every existing save file once at startup")
	}

	baselineCmd.AddCommand(baselineListCmd, baselineForgetCmd)
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(watchCmd, reconcileCmd, baselineCmd, backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
