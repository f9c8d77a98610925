package region

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
)

// ErrClosed is returned by operations on a closed mapped region.
var ErrClosed = errors.New("region: mapping closed")

// Mapped is a region backed by a memory mapping. File-backed mappings persist
// the pool's bytes; anonymous mappings keep them off the Go heap.
//
// The Tracker returned by Tracker should be handed to the container so every
// header write and every defragmentation move is recorded for Flush.
type Mapped struct {
	data    []byte
	file    *os.File
	path    string
	tracker *Tracker
	unmap   func() error
	addr    uintptr // view address, used by platforms that flush by address
}

var _ pool.Region = (*Mapped)(nil)

// OpenMapped maps the file at path read-write, creating it if needed and
// growing it to size bytes. A size <= 0 maps the file at its current length.
func OpenMapped(path string, size int) (*Mapped, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "region: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "region: stat %s", path)
	}
	if size <= 0 {
		if info.Size() > int64(^uint(0)>>1) {
			f.Close()
			return nil, errors.Newf("region: file too large to map (%d bytes)", info.Size())
		}
		size = int(info.Size())
	}
	if size == 0 {
		f.Close()
		return nil, errors.Newf("region: %s is empty and no size was given", path)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "region: grow %s to %d bytes", path, size)
		}
	}

	m := &Mapped{file: f, path: path, tracker: NewTracker(0)}
	if err := m.mapFile(size); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "region: map %s", path)
	}
	logger.Debug("region: mapped file", "path", path, "size", size)
	return m, nil
}

// NewAnonymous creates an anonymous mapping of size bytes.
func NewAnonymous(size int) (*Mapped, error) {
	if size <= 0 {
		return nil, errors.Newf("region: invalid anonymous mapping size %d", size)
	}
	m := &Mapped{tracker: NewTracker(0)}
	if err := m.mapAnon(size); err != nil {
		return nil, errors.Wrapf(err, "region: anonymous mapping of %d bytes", size)
	}
	logger.Debug("region: mapped anonymous", "size", size)
	return m, nil
}

// InitMem is a no-op: the mapping size is fixed when the region is opened.
func (m *Mapped) InitMem(int, []byte) {}

func (m *Mapped) Bytes() []byte { return m.data }
func (m *Mapped) Size() int     { return len(m.data) }
func (m *Mapped) Base() uintptr { return base(m.data) }

// Tracker returns the dirty range tracker of the mapping.
func (m *Mapped) Tracker() *Tracker { return m.tracker }

// Path returns the backing file path, or "" for anonymous mappings.
func (m *Mapped) Path() string { return m.path }

// Flush writes every dirty page back to the file and syncs it. Anonymous
// mappings only drop their dirty ranges.
//
// The context can be used to cancel between ranges; ranges already flushed
// stay flushed and the tracker keeps its state.
func (m *Mapped) Flush(ctx context.Context) error {
	if m.data == nil {
		return ErrClosed
	}
	if m.tracker.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.file == nil {
		m.tracker.Reset()
		return nil
	}

	ranges := m.tracker.Coalesced()
	if err := m.flushRanges(ctx, ranges); err != nil {
		return errors.Wrap(err, "region: flush")
	}
	if err := m.syncFile(); err != nil {
		return errors.Wrap(err, "region: sync")
	}
	logger.Debug("region: flushed", "path", m.path, "ranges", len(ranges))
	m.tracker.Reset()
	return nil
}

// Close unmaps the region and closes the backing file. Calling Close twice is
// a no-op.
func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}
	var err error
	if m.unmap != nil {
		err = m.unmap()
	}
	m.data = nil
	m.unmap = nil
	if m.file != nil {
		err = errors.CombineErrors(err, m.file.Close())
		m.file = nil
	}
	return err
}
