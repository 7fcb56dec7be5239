// sqlpilot turns natural-language requests into validated SQL against a
// schema discovered through a semantic index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sqlpilot/internal/config"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sqlpilot",
	Short: "sqlpilot - natural language to SQL over a semantic schema index",
	Long: `sqlpilot resolves which tables a natural-language request refers to
(using a semantic index over schema documents, with human escalation when
ambiguous), then generates, verifies, and executes SQL through a bounded
retry loop.

Run without arguments to start the interactive prompt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.repl(cmd.Context())
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [request]",
	Short: "Run a single natural-language request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.runOnce(cmd.Context(), joinArgs(args))
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or rebuild the semantic schema index from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.index.Bootstrap(cmd.Context(), app.db)
		if err != nil {
			return fmt.Errorf("index bootstrap failed: %w", err)
		}
		fmt.Printf("Indexed %d table(s).\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all memoized capability output",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Cache.Path == "" {
			fmt.Println("No durable cache configured; nothing to clear.")
			return nil
		}
		store, err := openCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(cmd.Context())
		if err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
		fmt.Printf("Cleared %d cache entr%s.\n", n, plural(n, "y", "ies"))
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the capability memoization cache",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "sqlpilot.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(queryCmd, indexCmd, cacheCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
