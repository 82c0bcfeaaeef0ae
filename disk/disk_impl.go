package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-wfs/util"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk is an image file mapped into memory
type FileDisk struct {
	fd   int
	path string
	data []byte
}

// NewFileDisk maps the existing image at path read-write and shared, so
// stores land in the file.
func NewFileDisk(path string) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat image %s: %w", path, err)
	}
	if stat.Size <= 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("image %s is empty", path)
	}
	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mapping image %s: %w", path, err)
	}
	util.DPrintf(1, "mapped %s: %d bytes\n", path, len(data))
	return &FileDisk{fd: fd, path: path, data: data}, nil
}

// Grow extends the file at path to at least size bytes, creating it if
// needed. Files that are already large enough are left alone.
func Grow(path string, size uint64) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return fmt.Errorf("opening image %s: %w", path, err)
	}
	defer unix.Close(fd)
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		return fmt.Errorf("stat image %s: %w", path, err)
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) < size {
		err = unix.Ftruncate(fd, int64(size))
		if err != nil {
			return fmt.Errorf("resizing image %s: %w", path, err)
		}
	}
	return nil
}

func (d *FileDisk) ReadAt(off uint64, b []byte) error {
	if !inRange(uint64(len(d.data)), off, len(b)) {
		return fmt.Errorf("read %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	copy(b, d.data[off:])
	return nil
}

func (d *FileDisk) WriteAt(off uint64, b []byte) error {
	if !inRange(uint64(len(d.data)), off, len(b)) {
		return fmt.Errorf("write %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	copy(d.data[off:], b)
	return nil
}

func (d *FileDisk) Size() uint64 {
	return uint64(len(d.data))
}

func (d *FileDisk) Barrier() error {
	err := unix.Msync(d.data, unix.MS_SYNC)
	if err != nil {
		return fmt.Errorf("syncing image %s: %w", d.path, err)
	}
	util.DPrintf(5, "barrier\n")
	return nil
}

func (d *FileDisk) Close() error {
	err := unix.Munmap(d.data)
	d.data = nil
	if err != nil {
		unix.Close(d.fd)
		return fmt.Errorf("unmapping image %s: %w", d.path, err)
	}
	return unix.Close(d.fd)
}

/////////////////////////

var _ Disk = (*MemDisk)(nil)

// MemDisk is an image held in memory
type MemDisk struct {
	l    *sync.RWMutex
	data []byte
}

func NewMemDisk(size uint64) *MemDisk {
	return &MemDisk{l: new(sync.RWMutex), data: make([]byte, size)}
}

func (d *MemDisk) ReadAt(off uint64, b []byte) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if !inRange(uint64(len(d.data)), off, len(b)) {
		return fmt.Errorf("read %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	copy(b, d.data[off:])
	return nil
}

func (d *MemDisk) WriteAt(off uint64, b []byte) error {
	d.l.Lock()
	defer d.l.Unlock()
	if !inRange(uint64(len(d.data)), off, len(b)) {
		return fmt.Errorf("write %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	copy(d.data[off:], b)
	return nil
}

func (d *MemDisk) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.data))
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
