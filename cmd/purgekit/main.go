package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/storage"
)

var version = "dev"

var (
	noColor    bool
	debugFlag  bool
	configPath string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:           "purgekit",
	Short:         "Cleaner preferences and unused localization files",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !noColor && !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			noColor = true
		}
		level := slog.LevelWarn
		if debugFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "preferences file (default: "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "task history directory (default: "+config.DefaultDataDir()+")")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(localesCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// openStore opens the preferences file named by --config.
func openStore() (*config.Store, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	s, err := config.Open(path,
		config.WithVersion(version),
		config.WithDebugOverride(debugFlag),
		config.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("opening preferences: %w", err)
	}
	return s, nil
}

func resolvedDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return config.DefaultDataDir()
}

// openTasks opens the task history under --data-dir.
func openTasks() (*storage.Store, error) {
	store, err := storage.Open(resolvedDataDir())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}
