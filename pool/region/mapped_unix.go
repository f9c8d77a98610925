//go:build linux || freebsd || darwin

package region

import "golang.org/x/sys/unix"

func (m *Mapped) mapFile(size int) error {
	data, err := unix.Mmap(int(m.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	m.data = data
	m.unmap = func() error { return unix.Munmap(data) }
	return nil
}

func (m *Mapped) mapAnon(size int) error {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	m.data = data
	m.unmap = func() error { return unix.Munmap(data) }
	return nil
}

