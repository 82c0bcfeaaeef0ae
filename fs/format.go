package fs

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-wfs/alloc"
	"github.com/mit-pdos/go-wfs/buf"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/inode"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

// Cred is the principal an operation runs as
type Cred struct {
	Uid uint32
	Gid uint32
}

// ProcessCred is the credential of the running process
func ProcessCred() Cred {
	return Cred{Uid: uint32(unix.Getuid()), Gid: uint32(unix.Getgid())}
}

const rootMode = unix.S_IFDIR | 0775

type FormatOptions struct {
	Cred  Cred
	Clock inode.Clock // defaults to time.Now
}

// Format writes an empty filesystem with room for ninodes inodes and nblocks
// data blocks (both rounded up to a multiple of 32) onto d.
func Format(d disk.Disk, ninodes uint64, nblocks uint64, opts FormatOptions) (*super.Superblock, error) {
	if ninodes == 0 || nblocks == 0 {
		return nil, fmt.Errorf("format %d inodes, %d blocks: %w", ninodes, nblocks, common.ErrInvalid)
	}
	if ninodes > d.Size() || nblocks > d.Size() {
		return nil, fmt.Errorf("format %d inodes, %d blocks on %d bytes: %w",
			ninodes, nblocks, d.Size(), common.ErrTooSmall)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	sb := super.MkSuperblock(ninodes, nblocks)
	if sb.TotalSize() > d.Size() {
		return nil, fmt.Errorf("layout needs %d bytes, image has %d: %w",
			sb.TotalSize(), d.Size(), common.ErrTooSmall)
	}

	sbuf := buf.MkBuf(0, sb.Encode())
	sbuf.SetDirty()
	if err := sbuf.WriteDirect(d); err != nil {
		return nil, err
	}
	bitmaps := buf.MkBuf(sb.IBitmap, make([]byte, uint64(sb.ITable-sb.IBitmap)))
	bitmaps.SetDirty()
	if err := bitmaps.WriteDirect(d); err != nil {
		return nil, err
	}

	ialloc := alloc.MkAlloc(d, sb.IBitmap, sb.NInodes)
	balloc := alloc.MkAlloc(d, sb.DBitmap, sb.NBlocks)
	if err := ialloc.MarkUsed(uint64(common.ROOTINUM)); err != nil {
		return nil, err
	}
	m := inode.MkMapper(d, sb, balloc, opts.Clock)
	now := m.Now()
	root := &inode.Inode{
		Inum:  common.ROOTINUM,
		Mode:  rootMode,
		Uid:   opts.Cred.Uid,
		Gid:   opts.Cred.Gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if err := m.Put(root); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "format: %d inodes, %d blocks, %d bytes\n", sb.NInodes, sb.NBlocks, sb.TotalSize())
	return sb, nil
}
