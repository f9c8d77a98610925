//go:build darwin

package region

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges syncs the whole mapping: msync on macOS wants the address the
// mapping was created at. The kernel only writes dirty pages.
func (m *Mapped) flushRanges(ctx context.Context, _ []Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *Mapped) syncFile() error {
	return unix.Fsync(int(m.file.Fd()))
}
