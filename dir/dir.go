// dir resolves paths and manages the dentry blocks of directories. A
// directory's data is an unordered array of dentry blocks held in its direct
// block slots.
package dir

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-wfs/alloc"
	"github.com/mit-pdos/go-wfs/buf"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/inode"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

type Dirs struct {
	d      disk.Disk
	sb     *super.Superblock
	ialloc *alloc.Alloc
	m      *inode.Mapper
}

func MkDirs(d disk.Disk, sb *super.Superblock, ialloc *alloc.Alloc, m *inode.Mapper) *Dirs {
	return &Dirs{d: d, sb: sb, ialloc: ialloc, m: m}
}

func (dirs *Dirs) loadBlock(dip *inode.Inode, lbn uint64) (*buf.Buf, error) {
	a, err := dirs.m.BlockFor(dip, lbn)
	if err != nil {
		return nil, err
	}
	return buf.Load(dirs.d, a, common.BlockSize)
}

// nblocks is the number of dentry blocks dip has
func nblocks(dip *inode.Inode) uint64 {
	return util.Min(dip.NBlocks(), common.NDirect)
}

// scan visits the slots of dip in block-then-slot order and returns the
// first one match accepts.
func (dirs *Dirs) scan(dip *inode.Inode, match func(Dentry) bool) (Ref, Dentry, bool, error) {
	for lbn := uint64(0); lbn < nblocks(dip); lbn++ {
		b, err := dirs.loadBlock(dip, lbn)
		if err != nil {
			return Ref{}, Dentry{}, false, err
		}
		for slot := uint64(0); slot < common.NDentry; slot++ {
			off := slot * common.DENTRYSZ
			de := DecodeDentry(b.Data[off : off+common.DENTRYSZ])
			if match(de) {
				return Ref{Block: b.Addr, Slot: slot}, de, true, nil
			}
		}
	}
	return Ref{}, Dentry{}, false, nil
}

// FindNamed looks up name among the live entries of dip
func (dirs *Dirs) FindNamed(dip *inode.Inode, name string) (Ref, Dentry, bool, error) {
	if name == "" {
		return Ref{}, Dentry{}, false, nil
	}
	return dirs.scan(dip, func(de Dentry) bool {
		return de.Name == name
	})
}

// FindFreeSlot returns the first free slot in dip's existing blocks
func (dirs *Dirs) FindFreeSlot(dip *inode.Inode) (Ref, bool, error) {
	ref, _, ok, err := dirs.scan(dip, Dentry.Free)
	return ref, ok, err
}

// Lookup returns the inode name refers to in dip
func (dirs *Dirs) Lookup(dip *inode.Inode, name string) (*inode.Inode, error) {
	if !dip.IsDir() {
		return nil, fmt.Errorf("lookup %q in inode %d: %w", name, dip.Inum, common.ErrNotDir)
	}
	_, de, ok, err := dirs.FindNamed(dip, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", name, common.ErrNotFound)
	}
	return dirs.m.Get(de.Inum())
}

// Resolve walks path from the root, one non-empty segment at a time
func (dirs *Dirs) Resolve(path string) (*inode.Inode, error) {
	ip, err := dirs.m.Get(common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		ip, err = dirs.Lookup(ip, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
	}
	util.DPrintf(10, "Resolve %s -> %d\n", path, ip.Inum)
	return ip, nil
}

func (dirs *Dirs) putEntry(ref Ref, de Dentry) error {
	b := buf.MkBuf(ref.Addr(), de.Encode())
	b.SetDirty()
	return b.WriteDirect(dirs.d)
}

// CreateEntry links a new inode under name in the directory at parent. It
// reuses a free slot or appends a dentry block, allocates the inode, binds
// the slot to it and bumps the parent's link count. The returned inode only
// has its number set; the caller initializes and stores it.
//
// If the dentry block cannot be allocated the inode is released again, so a
// failed create leaves both bitmaps as they were.
func (dirs *Dirs) CreateEntry(parent string, name string) (Ref, *inode.Inode, error) {
	if err := CheckName(name); err != nil {
		return Ref{}, nil, err
	}
	dip, err := dirs.Resolve(parent)
	if err != nil {
		return Ref{}, nil, err
	}
	if !dip.IsDir() {
		return Ref{}, nil, fmt.Errorf("create in %s: %w", parent, common.ErrNotDir)
	}

	n, err := dirs.ialloc.AllocNum()
	if err != nil {
		return Ref{}, nil, fmt.Errorf("create %s in %s: %w", name, parent, err)
	}
	inum := common.Inum(n)

	ref, ok, err := dirs.FindFreeSlot(dip)
	if err == nil && !ok {
		ref, err = dirs.appendBlock(dip)
	}
	if err != nil {
		dirs.ialloc.FreeNum(n)
		return Ref{}, nil, fmt.Errorf("create %s in %s: %w", name, parent, err)
	}

	if err := dirs.putEntry(ref, Dentry{Name: name, Num: uint32(inum)}); err != nil {
		dirs.ialloc.FreeNum(n)
		return Ref{}, nil, err
	}
	dip.Nlinks++
	if err := dirs.m.Put(dip); err != nil {
		return Ref{}, nil, err
	}
	util.DPrintf(5, "CreateEntry %s/%s -> %d at %v\n", parent, name, inum, ref)
	return ref, &inode.Inode{Inum: inum}, nil
}

// appendBlock binds a fresh, zeroed dentry block to dip and returns its
// first slot.
func (dirs *Dirs) appendBlock(dip *inode.Inode) (Ref, error) {
	lbn := dip.NBlocks()
	if lbn >= common.NDirect {
		return Ref{}, fmt.Errorf("directory %d is full: %w", dip.Inum, common.ErrNoSpace)
	}
	if err := dirs.m.EnsureBlock(dip, lbn); err != nil {
		return Ref{}, err
	}
	if err := dirs.m.Put(dip); err != nil {
		return Ref{}, err
	}
	a, err := dirs.m.BlockFor(dip, lbn)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Block: a, Slot: 0}, nil
}

// ClearEntry frees the slot at ref
func (dirs *Dirs) ClearEntry(ref Ref) error {
	return dirs.putEntry(ref, Dentry{Name: "", Num: uint32(common.NULLINUM)})
}

// Entries returns every live entry of dip, whatever its link count says
func (dirs *Dirs) Entries(dip *inode.Inode) ([]Dentry, error) {
	var des []Dentry
	_, _, _, err := dirs.scan(dip, func(de Dentry) bool {
		if !de.Free() {
			des = append(des, de)
		}
		return false
	})
	return des, err
}
