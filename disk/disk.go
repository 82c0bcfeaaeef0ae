package disk

import "errors"

var ErrOutOfRange = errors.New("access outside image")

// Disk provides byte-addressed access to a filesystem image
type Disk interface {
	// ReadAt fills b with the bytes starting at off
	//
	// Fails with ErrOutOfRange unless off+len(b) <= Size().
	ReadAt(off uint64, b []byte) error

	// WriteAt stores b at off
	//
	// Fails with ErrOutOfRange unless off+len(b) <= Size().
	WriteAt(off uint64, b []byte) error

	// Size reports how big the image is, in bytes
	Size() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

func inRange(size uint64, off uint64, n int) bool {
	end := off + uint64(n)
	return end >= off && end <= size
}
