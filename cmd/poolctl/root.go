package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool/compose"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logDebug bool

	// Pool flags
	configPath  string
	regionKind  string
	regionPath  string
	poolSize    int
	kind        string
	strategy    string
	defrag      bool
	fallback    string
	nodeCount   int
	minFragment int
	boundsCheck bool
)

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Exercise and inspect poolkit memory pools",
	Long: `poolctl builds a memory pool from flags or a YAML config file, drives it
with synthetic workloads and prints statistics, block maps and the results of
the reference scenarios.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logDebug {
			logger.Init(logger.Options{Enabled: true, Level: slog.LevelDebug})
		}
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "log", false, "Log allocator decisions to stderr")

	// Pool flags override the config file
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML pool config file")
	pf.StringVar(&regionKind, "region", compose.RegionFixed, "Region kind: fixed, dynamic, mapped, anonymous")
	pf.StringVar(&regionPath, "path", "", "Backing file for a mapped region")
	pf.IntVar(&poolSize, "size", compose.DefaultSize, "Region size in bytes")
	pf.StringVar(&kind, "container", string(compose.InPlace), "Container: inplace, referenced")
	pf.StringVar(&strategy, "strategy", string(compose.FirstFit), "Placement: firstfit, bestfit, worstfit")
	pf.BoolVar(&defrag, "defrag", false, "Compact with Beat (referenced containers only)")
	pf.StringVar(&fallback, "fallback", "disabled", "Fallback to the Go heap: disabled, enabled, always")
	pf.IntVar(&nodeCount, "node-count", 0, "Node pool capacity of referenced containers")
	pf.IntVar(&minFragment, "min-fragment", 0, "Smallest free remainder kept as its own block")
	pf.BoolVar(&boundsCheck, "bounds-check", false, "Validate every freed handle")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// poolConfig merges the config file, if any, with explicitly set flags.
func poolConfig(cmd *cobra.Command) (compose.Config, error) {
	var cfg compose.Config
	if configPath != "" {
		loaded, err := compose.LoadConfig(configPath)
		if err != nil {
			return compose.Config{}, err
		}
		cfg = loaded
		printVerbose("Loaded config: %s\n", configPath)
	}

	flags := cmd.Flags()
	set := func(name string) bool { return configPath == "" || flags.Changed(name) }
	if set("region") {
		cfg.Region = regionKind
	}
	if set("path") {
		cfg.Path = regionPath
	}
	if set("size") {
		cfg.Size = poolSize
	}
	if set("container") {
		cfg.Container = kind
	}
	if set("strategy") {
		cfg.Strategy = strategy
	}
	if set("defrag") {
		cfg.Defrag = defrag
	}
	if set("fallback") {
		cfg.Fallback = fallback
	}
	if set("node-count") {
		cfg.NodeCount = nodeCount
	}
	if set("min-fragment") {
		cfg.MinFragment = minFragment
	}
	if set("bounds-check") {
		cfg.BoundsCheck = boundsCheck
	}
	return cfg, cfg.Validate()
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
