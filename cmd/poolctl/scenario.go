package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/compose"
	"github.com/joshuapare/poolkit/pool/container"
	"github.com/joshuapare/poolkit/pool/region"
)

func init() {
	rootCmd.AddCommand(newScenarioCmd())
}

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario [name...]",
		Short: "Replay the reference scenarios",
		Long: `The scenario command replays the reference allocation scenarios A to F on
freshly built 1 KiB pools and reports whether each behaves as expected. With
no arguments every scenario runs.

  A  first fit, three 100 byte blocks
  B  allocate, free, allocate again returns the same block
  C  best fit picks the smallest fitting free block
  D  worst fit picks the largest free block
  E  one Beat slides a block down past a freed neighbour
  F  an oversized request fails without changing the pool

Example:
  poolctl scenario
  poolctl scenario C D --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(args)
		},
	}
	return cmd
}

type scenarioResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type scenario struct {
	name string
	run  func() (bool, string, error)
}

var scenarios = []scenario{
	{"A", scenarioA},
	{"B", scenarioB},
	{"C", scenarioC},
	{"D", scenarioD},
	{"E", scenarioE},
	{"F", scenarioF},
}

func runScenarios(names []string) error {
	want := make(map[string]bool)
	for _, n := range names {
		want[strings.ToUpper(n)] = true
	}

	selected := len(want) > 0
	matched := make(map[string]bool)
	var results []scenarioResult
	for _, s := range scenarios {
		if selected && !want[s.name] {
			continue
		}
		matched[s.name] = true
		ok, detail, err := s.run()
		if err != nil {
			return fmt.Errorf("scenario %s: %w", s.name, err)
		}
		results = append(results, scenarioResult{Name: s.name, Passed: ok, Detail: detail})
	}
	for _, n := range names {
		if !matched[strings.ToUpper(n)] {
			return fmt.Errorf("unknown scenario %q", n)
		}
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else if !quiet {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Scenario", "Result", "Detail"})
		table.SetAutoWrapText(false)
		for _, r := range results {
			result := "PASS"
			if !r.Passed {
				result = "FAIL"
			}
			table.Append([]string{r.Name, result, r.Detail})
		}
		table.Render()
	}

	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

const scenarioSize = 1024

func scenarioA() (bool, string, error) {
	p, err := compose.InPlaceFirstFit(region.NewFixed(scenarioSize), nil)
	if err != nil {
		return false, "", err
	}
	seen := make(map[pool.Handle]bool)
	for i := 0; i < 3; i++ {
		h := p.Allocate(100, 1)
		if h == pool.InvalidHandle {
			return false, fmt.Sprintf("allocation %d failed", i+1), nil
		}
		if seen[h] {
			return false, "duplicate handle", nil
		}
		seen[h] = true
	}
	want := scenarioSize - 3*(100+container.HeaderSize)
	return p.MemFree() == want, fmt.Sprintf("memFree %d, want %d", p.MemFree(), want), nil
}

func scenarioB() (bool, string, error) {
	p, err := compose.InPlaceFirstFit(region.NewFixed(scenarioSize), nil)
	if err != nil {
		return false, "", err
	}
	h1 := p.Allocate(200, 1)
	if h1 == pool.InvalidHandle || !p.Free(h1, false) {
		return false, "first cycle failed", nil
	}
	h2 := p.Allocate(200, 1)
	return h1 == h2, fmt.Sprintf("first %#x, second %#x", uintptr(h1), uintptr(h2)), nil
}

// fragmented leaves free blocks of 50, 150 and 300 bytes separated by live
// 8 byte blocks and fills the rest of the region. It returns the offsets of
// the three free blocks.
func fragmented(p *compose.Pool) ([3]int, error) {
	var offs [3]int
	var free [3]pool.Handle
	k := 0
	for _, size := range []int{50, 8, 150, 8, 300} {
		h := p.Allocate(size, 1)
		if h == pool.InvalidHandle {
			return offs, fmt.Errorf("setup allocation of %d bytes failed", size)
		}
		if size != 8 {
			offs[k] = offsetOf(p, h)
			free[k] = h
			k++
		}
	}
	c := p.Container
	if rest := c.EmptyHint(); rest != pool.NilNode {
		if p.Allocate(c.NodeSize(rest), 1) == pool.InvalidHandle {
			return offs, fmt.Errorf("filling the tail failed")
		}
	}
	for _, h := range free {
		if !p.Free(h, false) {
			return offs, fmt.Errorf("setup free failed")
		}
	}
	return offs, nil
}

func offsetOf(p *compose.Pool, h pool.Handle) int {
	return p.Container.Info(p.Container.Node(h)).Offset
}

func pickScenario(build func(pool.Region, *container.Options) (*compose.Pool, error), size, want int) (bool, string, error) {
	p, err := build(region.NewFixed(scenarioSize), nil)
	if err != nil {
		return false, "", err
	}
	offs, err := fragmented(p)
	if err != nil {
		return false, "", err
	}
	h := p.Allocate(size, 1)
	if h == pool.InvalidHandle {
		return false, "allocation failed", nil
	}
	got := offsetOf(p, h)
	for i, sz := range []int{50, 150, 300} {
		if offs[i] == got {
			return got == offs[want], fmt.Sprintf("%d bytes placed in the %d byte block", size, sz), nil
		}
	}
	return false, fmt.Sprintf("%d bytes placed at offset %d", size, got), nil
}

func scenarioC() (bool, string, error) { return pickScenario(compose.InPlaceBestFit, 140, 1) }
func scenarioD() (bool, string, error) { return pickScenario(compose.InPlaceWorstFit, 60, 2) }

func scenarioE() (bool, string, error) {
	p, err := compose.ReferencedDefrag(region.NewFixed(scenarioSize), nil)
	if err != nil {
		return false, "", err
	}
	a := p.Allocate(100, 1)
	b := p.Allocate(100, 1)
	c := p.Allocate(100, 1)
	if a == pool.InvalidHandle || b == pool.InvalidHandle || c == pool.InvalidHandle {
		return false, "setup allocation failed", nil
	}
	p.Container.SetLocked(a, true)
	copy(p.Resolve(c), "moving block")

	aAddr, before := dataAddr(p.Resolve(a)), dataAddr(p.Resolve(c))
	p.Free(b, false)
	if !p.Beat() {
		return false, "beat made no progress", nil
	}
	after := dataAddr(p.Resolve(c))
	ok := after < before &&
		dataAddr(p.Resolve(a)) == aAddr &&
		bytes.HasPrefix(p.Resolve(c), []byte("moving block"))
	return ok, fmt.Sprintf("handle %d moved down %d bytes", c, before-after), nil
}

func scenarioF() (bool, string, error) {
	p, err := compose.InPlaceFirstFit(region.NewFixed(scenarioSize), nil)
	if err != nil {
		return false, "", err
	}
	p.Allocate(100, 1)
	before, err := container.WriteDetailedMap(p.Container)
	if err != nil {
		return false, "", err
	}
	free := p.MemFree()

	h := p.Allocate(free+1, 1)
	after, err := container.WriteDetailedMap(p.Container)
	if err != nil {
		return false, "", err
	}
	ok := h == pool.InvalidHandle && p.MemFree() == free && bytes.Equal(before, after)
	return ok, fmt.Sprintf("request of %d bytes with %d free", free+1, free), nil
}

func dataAddr(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }
