package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/joshuapare/poolkit/pool/compose"
	"github.com/joshuapare/poolkit/pool/container"
)

var (
	runOps       int
	runSeed      int64
	runMaxSize   int
	runMaxAlign  int
	runFreeRatio float64
	runWorkers   int
	runBeats     int
	runReport    bool
	runLang      string
)

func init() {
	cmd := newRunCmd()
	addWorkloadFlags(cmd)
	cmd.Flags().IntVar(&runWorkers, "workers", 1, "Concurrent workers (implies a thread-safe pool)")
	cmd.Flags().BoolVar(&runReport, "report", false, "Instrument the pool and print call statistics")
	cmd.Flags().StringVar(&runLang, "lang", "en", "Language tag used to format report numbers")
	rootCmd.AddCommand(cmd)
}

func addWorkloadFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&runOps, "ops", 10000, "Number of operations")
	cmd.Flags().Int64Var(&runSeed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&runMaxSize, "max-size", 256, "Largest request in bytes")
	cmd.Flags().IntVar(&runMaxAlign, "max-align", 8, "Largest alignment (power of two)")
	cmd.Flags().Float64Var(&runFreeRatio, "free-ratio", 0.45, "Probability that an operation frees a live block")
	cmd.Flags().IntVar(&runBeats, "beats", 16, "Compaction steps tried after a failed allocation")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a random workload against a pool",
		Long: `The run command drives a pool with a seeded mix of allocations, frees and
reallocations, checks that no allocation loses its contents, and prints the
resulting pool statistics.

Example:
  poolctl run --ops 100000 --strategy bestfit
  poolctl run --container referenced --defrag --workers 4
  poolctl run --config pool.yaml --report --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd)
		},
	}
	return cmd
}

type runOutput struct {
	Config   compose.Config     `json:"config"`
	Workload workloadResult     `json:"workload"`
	Pool     poolStats          `json:"pool"`
	Blocks   container.MapStats `json:"blocks"`
}

type poolStats struct {
	MemSize   int `json:"memSize"`
	MemFree   int `json:"memFree"`
	Fragments int `json:"fragments"`
}

func currentWorkload(keep bool) workload {
	return workload{
		Ops:       runOps,
		Seed:      runSeed,
		MaxSize:   runMaxSize,
		MaxAlign:  runMaxAlign,
		FreeRatio: runFreeRatio,
		Workers:   runWorkers,
		Beats:     runBeats,
		Keep:      keep,
	}
}

func runRun(cmd *cobra.Command) error {
	cfg, err := poolConfig(cmd)
	if err != nil {
		return err
	}
	if runWorkers > 1 {
		cfg.ThreadSafe = true
	}
	if runReport {
		cfg.Instrument = true
	}
	tag, err := language.Parse(runLang)
	if err != nil {
		return fmt.Errorf("invalid --lang %q: %w", runLang, err)
	}

	p, err := cfg.Build()
	if err != nil {
		return err
	}
	defer p.Close()

	printVerbose("Running %d ops with %d worker(s), seed %d\n", runOps, runWorkers, runSeed)
	res, err := runWorkload(context.Background(), p, currentWorkload(false))
	if err != nil {
		return err
	}
	if err := p.Flush(context.Background()); err != nil {
		return err
	}

	out := runOutput{
		Config:   cfg,
		Workload: res,
		Pool:     poolStats{MemSize: p.MemSize(), MemFree: p.MemFree(), Fragments: p.FragmentCount()},
		Blocks:   p.Stats(),
	}
	if jsonOut {
		return printJSON(out)
	}

	printInfo("Workload finished in %s\n\n", res.Duration)
	if !quiet {
		printStatsTable(out)
	}
	if runReport && !quiet {
		printInfo("\n")
		return p.Inspector.Report(os.Stdout, tag)
	}
	return nil
}

func printStatsTable(out runOutput) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	rows := [][]string{
		{"allocations", strconv.Itoa(out.Workload.Allocations)},
		{"frees", strconv.Itoa(out.Workload.Frees)},
		{"reallocations", strconv.Itoa(out.Workload.Reallocations)},
		{"failures", strconv.Itoa(out.Workload.Failures)},
		{"beats", strconv.Itoa(out.Workload.Beats)},
		{"mem size", strconv.Itoa(out.Pool.MemSize)},
		{"mem free", strconv.Itoa(out.Pool.MemFree)},
		{"fragments", strconv.Itoa(out.Pool.Fragments)},
		{"largest free", strconv.Itoa(out.Blocks.LargestFree)},
	}
	table.AppendBulk(rows)
	table.Render()
}
