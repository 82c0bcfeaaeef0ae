package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-wfs/util"
)

var _ Disk = (*BlockDisk)(nil)

// BlockDisk presents a goose block device as a byte-addressed image.
// Writes that cover part of a device block read the block, patch it, and
// write it back.
type BlockDisk struct {
	d gdisk.Disk
}

func NewBlockDisk(d gdisk.Disk) *BlockDisk {
	return &BlockDisk{d: d}
}

// OpenBlockFile opens path as a goose file disk. The image size must be a
// whole number of device blocks.
func OpenBlockFile(path string, size uint64) (*BlockDisk, error) {
	if size == 0 || size%gdisk.BlockSize != 0 {
		return nil, fmt.Errorf("image size %d is not a multiple of %d", size, gdisk.BlockSize)
	}
	fd, err := gdisk.NewFileDisk(path, size/gdisk.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("opening block image %s: %w", path, err)
	}
	return NewBlockDisk(fd), nil
}

func (bd *BlockDisk) ReadAt(off uint64, b []byte) error {
	if !inRange(bd.Size(), off, len(b)) {
		return fmt.Errorf("read %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	done := uint64(0)
	for done < uint64(len(b)) {
		pos := off + done
		blkno := pos / gdisk.BlockSize
		boff := pos % gdisk.BlockSize
		n := util.Min(gdisk.BlockSize-boff, uint64(len(b))-done)
		blk := bd.d.Read(blkno)
		copy(b[done:done+n], blk[boff:boff+n])
		done += n
	}
	return nil
}

func (bd *BlockDisk) WriteAt(off uint64, b []byte) error {
	if !inRange(bd.Size(), off, len(b)) {
		return fmt.Errorf("write %d bytes at %d: %w", len(b), off, ErrOutOfRange)
	}
	done := uint64(0)
	for done < uint64(len(b)) {
		pos := off + done
		blkno := pos / gdisk.BlockSize
		boff := pos % gdisk.BlockSize
		n := util.Min(gdisk.BlockSize-boff, uint64(len(b))-done)
		var blk gdisk.Block
		if n == gdisk.BlockSize {
			blk = util.CloneByteSlice(b[done : done+n])
		} else {
			blk = bd.d.Read(blkno)
			copy(blk[boff:boff+n], b[done:done+n])
		}
		bd.d.Write(blkno, blk)
		done += n
	}
	return nil
}

func (bd *BlockDisk) Size() uint64 {
	return bd.d.Size() * gdisk.BlockSize
}

func (bd *BlockDisk) Barrier() error {
	bd.d.Barrier()
	return nil
}

func (bd *BlockDisk) Close() error {
	bd.d.Close()
	return nil
}
