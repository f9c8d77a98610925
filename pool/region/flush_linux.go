//go:build linux || freebsd

package region

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges msyncs each coalesced range. Linux accepts page-aligned
// sub-slices of the mapping.
func (m *Mapped) flushRanges(ctx context.Context, ranges []Range) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		start, end, ok := clip(r, len(m.data))
		if !ok {
			continue
		}
		if err := unix.Msync(m.data[start:end], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapped) syncFile() error {
	return unix.Fdatasync(int(m.file.Fd()))
}
