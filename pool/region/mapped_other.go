//go:build !linux && !freebsd && !darwin && !windows

package region

import (
	"context"
	"io"
)

// Without mmap the region lives on the heap and Flush writes dirty ranges
// back with WriteAt.

func (m *Mapped) mapFile(size int) error {
	data := make([]byte, size)
	if _, err := m.file.ReadAt(data, 0); err != nil && err != io.EOF {
		return err
	}
	m.data = data
	return nil
}

func (m *Mapped) mapAnon(size int) error {
	m.data = make([]byte, size)
	return nil
}

func (m *Mapped) flushRanges(ctx context.Context, ranges []Range) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		start, end, ok := clip(r, len(m.data))
		if !ok {
			continue
		}
		if _, err := m.file.WriteAt(m.data[start:end], int64(start)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapped) syncFile() error {
	return m.file.Sync()
}
