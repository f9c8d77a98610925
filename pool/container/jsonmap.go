package container

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/joshuapare/poolkit/pool"
)

// MapStats summarizes the blocks of a container.
type MapStats struct {
	Blocks      int
	Allocations int
	Free        int
	UsedBytes   int
	FreeBytes   int
	LargestFree int
	Locked      int
}

// Stats walks c and summarizes its blocks. Sentinels are not counted.
func Stats(c pool.Container) MapStats {
	var s MapStats
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		info := c.Info(n)
		if info.Sentinel {
			continue
		}
		s.Blocks++
		if info.InUse {
			s.Allocations++
			s.UsedBytes += info.Size
			if info.Locked {
				s.Locked++
			}
			continue
		}
		s.Free++
		s.FreeBytes += info.Size
		if info.Size > s.LargestFree {
			s.LargestFree = info.Size
		}
	}
	return s
}

// WriteDetailedMap renders every block of c, sentinels included, as JSON:
//
//	{"memSize":..,"memFree":..,"fragments":..,"defragmentable":..,
//	 "allocations":..,"usedBytes":..,"freeBytes":..,"largestFree":..,
//	 "blocks":[{"node":..,"offset":..,"size":..,"align":..,"inUse":..,...}]}
func WriteDetailedMap(c pool.Container) ([]byte, error) {
	s := Stats(c)
	w := jwriter.NewWriter()

	obj := w.Object()
	obj.Name("memSize").Int(c.MemSize())
	obj.Name("memFree").Int(c.MemFree())
	obj.Name("fragments").Int(c.FragmentCount())
	obj.Name("defragmentable").Bool(c.Defragmentable())
	obj.Name("allocations").Int(s.Allocations)
	obj.Name("usedBytes").Int(s.UsedBytes)
	obj.Name("freeBytes").Int(s.FreeBytes)
	obj.Name("largestFree").Int(s.LargestFree)

	arr := obj.Name("blocks").Array()
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		info := c.Info(n)
		block := w.Object()
		block.Name("node").Int(int(info.Node))
		block.Name("offset").Int(info.Offset)
		block.Name("size").Int(info.Size)
		block.Name("align").Int(info.Align)
		block.Name("inUse").Bool(info.InUse)
		if info.Locked {
			block.Name("locked").Bool(true)
		}
		if info.Sentinel {
			block.Name("sentinel").Bool(true)
		}
		if info.Handle != pool.InvalidHandle {
			block.Name("handle").String("0x" + strconv.FormatUint(uint64(info.Handle), 16))
		}
		block.End()
	}
	arr.End()
	obj.End()

	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
