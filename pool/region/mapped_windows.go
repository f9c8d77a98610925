//go:build windows

package region

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"
)

func (m *Mapped) mapFile(size int) error {
	return m.mapView(windows.Handle(m.file.Fd()), size)
}

func (m *Mapped) mapAnon(size int) error {
	return m.mapView(windows.InvalidHandle, size)
}

func (m *Mapped) mapView(fh windows.Handle, size int) error {
	sz := uint64(size)
	h, err := windows.CreateFileMapping(fh, nil, windows.PAGE_READWRITE, uint32(sz>>32), uint32(sz), nil)
	if err != nil {
		return err
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return err
	}
	m.addr = addr
	m.data = unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	m.unmap = func() error {
		err := windows.UnmapViewOfFile(addr)
		if cerr := windows.CloseHandle(h); err == nil {
			err = cerr
		}
		return err
	}
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
		if err := windows.FlushViewOfFile(m.addr+uintptr(start), uintptr(end-start)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapped) syncFile() error {
	return windows.FlushFileBuffers(windows.Handle(m.file.Fd()))
}
