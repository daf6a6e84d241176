// Package main implements the rpftiles command: build a frame index, render
// tiles from it, inspect it and publish it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arkilian/rpftiles/internal/app"
	"github.com/arkilian/rpftiles/internal/config"
	"github.com/arkilian/rpftiles/internal/observability"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile  string
	envFile     string
	dataDir     string
	indexPath   string
	logLevel    string
	metricsFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "rpftiles",
		Short:         "Index RPF frame collections and synthesize raster tiles",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if g.metricsFile == "" {
				return nil
			}
			return observability.WriteTextfile(g.metricsFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before RPFTILES_* variables are read")
	pf.StringVar(&g.dataDir, "data-dir", "", "Base directory for derived files")
	pf.StringVar(&g.indexPath, "index", "", "Index file path (default <data-dir>/rpf.idx)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	root.AddCommand(
		newBuildCmd(g),
		newTileCmd(g),
		newInfoCmd(g),
		newPublishCmd(g),
		newPullCmd(g),
	)
	return root
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func loadConfig(g *globalFlags) (*config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var cfg *config.Config
	var err error
	if g.configFile != "" {
		cfg, err = config.LoadFromFile(g.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.indexPath != "" {
		cfg.Index.Path = g.indexPath
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// newApp loads the configuration and lets mutate adjust it before the app
// resolves and validates it.
func newApp(g *globalFlags, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	return app.New(cfg)
}
