// super describes the geometry of a wfs image.
//
// An image is laid out as
//
//	superblock | inode bitmap | data bitmap | inode table | data region
//
// Each inode occupies one BlockSize slot of the inode table. Both counts are
// multiples of RoundCount, so each bitmap ends on a byte boundary.
package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/util"
)

type Superblock struct {
	NInodes uint64
	NBlocks uint64
	IBitmap addr.Addr
	DBitmap addr.Addr
	ITable  addr.Addr
	DRegion addr.Addr
}

func MkSuperblock(ninodes uint64, nblocks uint64) *Superblock {
	ninodes = util.RoundUpTo(ninodes, common.RoundCount)
	nblocks = util.RoundUpTo(nblocks, common.RoundCount)
	sb := &Superblock{
		NInodes: ninodes,
		NBlocks: nblocks,
	}
	sb.IBitmap = addr.Addr(common.SUPERSZ)
	sb.DBitmap = sb.IBitmap.Add(ninodes / 8)
	sb.ITable = sb.DBitmap.Add(nblocks / 8)
	sb.DRegion = sb.ITable.Add(ninodes * common.BlockSize)
	return sb
}

// TotalSize is the smallest image that holds this layout
func (sb *Superblock) TotalSize() uint64 {
	return uint64(sb.DRegion.Add(sb.NBlocks * common.BlockSize))
}

func (sb *Superblock) Encode() []byte {
	enc := marshal.NewEnc(common.SUPERSZ)
	enc.PutInt(sb.NInodes)
	enc.PutInt(sb.NBlocks)
	enc.PutInt(uint64(sb.IBitmap))
	enc.PutInt(uint64(sb.DBitmap))
	enc.PutInt(uint64(sb.ITable))
	enc.PutInt(uint64(sb.DRegion))
	return enc.Finish()
}

func Decode(b []byte) *Superblock {
	if uint64(len(b)) < common.SUPERSZ {
		panic("super: short superblock")
	}
	dec := marshal.NewDec(b)
	sb := &Superblock{}
	sb.NInodes = dec.GetInt()
	sb.NBlocks = dec.GetInt()
	sb.IBitmap = addr.Addr(dec.GetInt())
	sb.DBitmap = addr.Addr(dec.GetInt())
	sb.ITable = addr.Addr(dec.GetInt())
	sb.DRegion = addr.Addr(dec.GetInt())
	return sb
}

// Validate checks that the stored offsets follow the layout rules for the
// stored counts and that an image of size bytes can hold the layout.
func (sb *Superblock) Validate(size uint64) error {
	if sb.NInodes == 0 || sb.NBlocks == 0 ||
		sb.NInodes%common.RoundCount != 0 || sb.NBlocks%common.RoundCount != 0 {
		return fmt.Errorf("superblock counts %d inodes, %d blocks: %w",
			sb.NInodes, sb.NBlocks, common.ErrCorrupt)
	}
	// bound the counts so the layout arithmetic cannot wrap
	if sb.NInodes > size/common.BlockSize || sb.NBlocks > size/common.BlockSize {
		return fmt.Errorf("superblock counts exceed a %d byte image: %w", size, common.ErrCorrupt)
	}
	want := MkSuperblock(sb.NInodes, sb.NBlocks)
	if *want != *sb {
		return fmt.Errorf("superblock offsets %+v, expected %+v: %w", *sb, *want, common.ErrCorrupt)
	}
	if sb.TotalSize() > size {
		return fmt.Errorf("layout needs %d bytes, image has %d: %w", sb.TotalSize(), size, common.ErrCorrupt)
	}
	return nil
}

// Load reads and validates the superblock of the image on d
func Load(d disk.Disk) (*Superblock, error) {
	if d.Size() < common.SUPERSZ {
		return nil, fmt.Errorf("image of %d bytes has no superblock: %w", d.Size(), common.ErrCorrupt)
	}
	b := make([]byte, common.SUPERSZ)
	if err := d.ReadAt(0, b); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	sb := Decode(b)
	if err := sb.Validate(d.Size()); err != nil {
		return nil, err
	}
	util.DPrintf(1, "superblock: %d inodes, %d blocks, data at %v\n", sb.NInodes, sb.NBlocks, sb.DRegion)
	return sb, nil
}

func (sb *Superblock) InodeTable() addr.Region {
	return addr.MkRegion(sb.ITable, common.BlockSize, sb.NInodes)
}

func (sb *Superblock) DataRegion() addr.Region {
	return addr.MkRegion(sb.DRegion, common.BlockSize, sb.NBlocks)
}

func (sb *Superblock) ValidInum(inum common.Inum) bool {
	return uint64(inum) < sb.NInodes
}

// InodeAddr is the address of inum's slot in the inode table
func (sb *Superblock) InodeAddr(inum common.Inum) addr.Addr {
	return sb.InodeTable().At(uint64(inum))
}

// BlockAddr is the address of data block bn
func (sb *Superblock) BlockAddr(bn common.Bnum) addr.Addr {
	return sb.DataRegion().At(bn)
}

// BlockIndex is the data block number stored at a; false if a is not the
// start of a data block.
func (sb *Superblock) BlockIndex(a addr.Addr) (common.Bnum, bool) {
	return sb.DataRegion().Index(a)
}
