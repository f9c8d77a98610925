package main

import (
	"context"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/container"
)

var mapTable bool

func init() {
	cmd := newMapCmd()
	addWorkloadFlags(cmd)
	cmd.Flags().BoolVar(&mapTable, "table", false, "Print the blocks as a table instead of JSON")
	rootCmd.AddCommand(cmd)
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Print the block map of a pool after a workload",
		Long: `The map command runs a random workload, keeps the surviving allocations
live and prints every block of the container, sentinels included.

Example:
  poolctl map --ops 200 --size 4096
  poolctl map --container referenced --defrag --table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(cmd)
		},
	}
	return cmd
}

func runMap(cmd *cobra.Command) error {
	cfg, err := poolConfig(cmd)
	if err != nil {
		return err
	}
	p, err := cfg.Build()
	if err != nil {
		return err
	}
	defer p.Close()

	w := currentWorkload(true)
	w.Workers = 1
	res, err := runWorkload(context.Background(), p, w)
	if err != nil {
		return err
	}
	printVerbose("%d live allocations\n", res.Live)

	if mapTable {
		printBlockTable(p.Container)
		return nil
	}
	data, err := container.WriteDetailedMap(p.Container)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func printBlockTable(c pool.Container) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node", "Offset", "Size", "Align", "State"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		info := c.Info(n)
		state := "free"
		switch {
		case info.Sentinel:
			state = "sentinel"
		case info.Locked:
			state = "locked"
		case info.InUse:
			state = "used"
		}
		table.Append([]string{
			strconv.FormatUint(uint64(info.Node), 10),
			strconv.Itoa(info.Offset),
			strconv.Itoa(info.Size),
			strconv.Itoa(info.Align),
			state,
		})
	}
	s := container.Stats(c)
	table.SetFooter([]string{"", "", strconv.Itoa(s.UsedBytes), "", strconv.Itoa(s.Allocations) + " used"})
	table.Render()
}
