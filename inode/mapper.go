package inode

import (
	"fmt"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/alloc"
	"github.com/mit-pdos/go-wfs/buf"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

// Mapper loads and stores inodes and translates byte ranges of a file into
// data blocks, binding new blocks from balloc as writes need them.
type Mapper struct {
	d      disk.Disk
	sb     *super.Superblock
	balloc *alloc.Alloc
	clock  Clock
}

func MkMapper(d disk.Disk, sb *super.Superblock, balloc *alloc.Alloc, clock Clock) *Mapper {
	return &Mapper{d: d, sb: sb, balloc: balloc, clock: clock}
}

// Now is the current time as stored in an inode
func (m *Mapper) Now() uint64 {
	return uint64(m.clock().Unix())
}

func (m *Mapper) Get(inum common.Inum) (*Inode, error) {
	if !m.sb.ValidInum(inum) {
		return nil, fmt.Errorf("inode %d of %d: %w", inum, m.sb.NInodes, common.ErrCorrupt)
	}
	b, err := buf.Load(m.d, m.sb.InodeAddr(inum), common.INODESZ)
	if err != nil {
		return nil, err
	}
	ip := Decode(b.Data)
	ip.Inum = inum
	util.DPrintf(15, "Get %v\n", ip)
	return ip, nil
}

func (m *Mapper) Put(ip *Inode) error {
	util.DPrintf(15, "Put %v\n", ip)
	b := buf.MkBuf(m.sb.InodeAddr(ip.Inum), ip.Encode())
	b.SetDirty()
	return b.WriteDirect(m.d)
}

// checkBlock validates a stored block pointer
func (m *Mapper) checkBlock(ip *Inode, a addr.Addr) error {
	if _, ok := m.sb.BlockIndex(a); !ok {
		return fmt.Errorf("inode %d block pointer %v: %w", ip.Inum, a, common.ErrCorrupt)
	}
	return nil
}

func (m *Mapper) loadIndirect(ip *Inode) (*buf.Buf, error) {
	ind := ip.Blocks[common.IndBlock]
	if err := m.checkBlock(ip, ind); err != nil {
		return nil, err
	}
	return buf.Load(m.d, ind, common.BlockSize)
}

// BlockFor returns the address of logical block lbn of ip
func (m *Mapper) BlockFor(ip *Inode, lbn uint64) (addr.Addr, error) {
	if lbn >= common.MaxFileBlocks {
		return addr.Null, fmt.Errorf("block %d: %w", lbn, common.ErrFileTooLarge)
	}
	var a addr.Addr
	if lbn < common.NDirect {
		a = ip.Blocks[lbn]
	} else {
		ind, err := m.loadIndirect(ip)
		if err != nil {
			return addr.Null, err
		}
		a = ind.BnumGet((lbn - common.NDirect) * 8)
	}
	if err := m.checkBlock(ip, a); err != nil {
		return addr.Null, err
	}
	return a, nil
}

// allocBlock allocates a data block and zeroes it
func (m *Mapper) allocBlock() (addr.Addr, error) {
	bn, err := m.balloc.AllocNum()
	if err != nil {
		return addr.Null, err
	}
	a := m.sb.BlockAddr(bn)
	b := buf.MkBuf(a, make([]byte, common.BlockSize))
	b.SetDirty()
	if err := b.WriteDirect(m.d); err != nil {
		m.balloc.FreeNum(bn)
		return addr.Null, err
	}
	return a, nil
}

func (m *Mapper) freeBlock(ip *Inode, a addr.Addr) error {
	bn, ok := m.sb.BlockIndex(a)
	if !ok {
		util.DPrintf(1, "inode %d: skip bad block pointer %v\n", ip.Inum, a)
		return nil
	}
	return m.balloc.FreeNum(bn)
}

// bindNext binds one new block at the end of ip's extent
func (m *Mapper) bindNext(ip *Inode) error {
	lbn := ip.NBlocks()
	if lbn < common.NDirect {
		a, err := m.allocBlock()
		if err != nil {
			return err
		}
		ip.Blocks[lbn] = a
		ip.Size += common.BlockSize
		return nil
	}

	fresh := false
	if ip.Blocks[common.IndBlock].IsNull() {
		ind, err := m.allocBlock()
		if err != nil {
			return err
		}
		ip.Blocks[common.IndBlock] = ind
		fresh = true
	}
	a, err := m.allocBlock()
	if err != nil {
		if fresh {
			m.freeBlock(ip, ip.Blocks[common.IndBlock])
			ip.Blocks[common.IndBlock] = addr.Null
		}
		return err
	}
	ind, err := m.loadIndirect(ip)
	if err != nil {
		m.freeBlock(ip, a)
		return err
	}
	ind.BnumPut((lbn-common.NDirect)*8, a)
	if err := ind.WriteDirect(m.d); err != nil {
		m.freeBlock(ip, a)
		return err
	}
	ip.Size += common.BlockSize
	return nil
}

// EnsureBlock binds blocks to ip until logical block lbn is bound. Each new
// block is zeroed and grows Size by BlockSize. The caller persists ip.
func (m *Mapper) EnsureBlock(ip *Inode, lbn uint64) error {
	if lbn >= common.MaxFileBlocks {
		return fmt.Errorf("block %d: %w", lbn, common.ErrFileTooLarge)
	}
	for ip.NBlocks() <= lbn {
		if err := m.bindNext(ip); err != nil {
			util.DPrintf(5, "EnsureBlock %d lbn %d: %v\n", ip.Inum, lbn, err)
			return err
		}
	}
	return nil
}

// Read returns up to n bytes of ip starting at off, stopping at Size
func (m *Mapper) Read(ip *Inode, off uint64, n uint64) ([]byte, error) {
	if off >= ip.Size {
		return nil, nil
	}
	n = util.Min(n, ip.Size-off)
	data := make([]byte, n)
	done := uint64(0)
	for done < n {
		pos := off + done
		boff := pos % common.BlockSize
		cnt := util.Min(common.BlockSize-boff, n-done)
		a, err := m.BlockFor(ip, pos/common.BlockSize)
		if err != nil {
			return nil, err
		}
		if err := m.d.ReadAt(uint64(a.Add(boff)), data[done:done+cnt]); err != nil {
			return nil, err
		}
		done += cnt
	}
	ip.Atime = m.Now()
	if err := m.Put(ip); err != nil {
		return nil, err
	}
	return data, nil
}

// Write stores data at off, binding blocks as needed, and returns the
// number of bytes written. On failure nothing is reported as written, but
// blocks already bound stay bound and ip is persisted with them.
func (m *Mapper) Write(ip *Inode, off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if util.SumOverflows(off, n) {
		return 0, fmt.Errorf("write %d bytes at %d: %w", n, off, common.ErrInvalid)
	}
	if n > 0 && (off+n-1)/common.BlockSize >= common.MaxFileBlocks {
		return 0, fmt.Errorf("write %d bytes at %d: %w", n, off, common.ErrFileTooLarge)
	}
	done := uint64(0)
	for done < n {
		pos := off + done
		lbn := pos / common.BlockSize
		boff := pos % common.BlockSize
		cnt := util.Min(common.BlockSize-boff, n-done)
		err := m.EnsureBlock(ip, lbn)
		var a addr.Addr
		if err == nil {
			a, err = m.BlockFor(ip, lbn)
		}
		if err == nil {
			err = m.d.WriteAt(uint64(a.Add(boff)), data[done:done+cnt])
		}
		if err != nil {
			m.Put(ip)
			return 0, err
		}
		done += cnt
	}
	now := m.Now()
	ip.Atime = now
	ip.Mtime = now
	if err := m.Put(ip); err != nil {
		return 0, err
	}
	return n, nil
}

// Owned returns every non-null block pointer reachable from ip: direct
// blocks, the indirect block, and the blocks it points to. Pointers are
// not validated, except that a bad indirect block is not followed.
func (m *Mapper) Owned(ip *Inode) ([]addr.Addr, error) {
	var blks []addr.Addr
	for _, a := range ip.Blocks[:common.NDirect] {
		if !a.IsNull() {
			blks = append(blks, a)
		}
	}
	ind := ip.Blocks[common.IndBlock]
	if ind.IsNull() {
		return blks, nil
	}
	blks = append(blks, ind)
	if _, ok := m.sb.BlockIndex(ind); !ok {
		return blks, nil
	}
	b, err := buf.Load(m.d, ind, common.BlockSize)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < common.NIndirect; i++ {
		a := b.BnumGet(i * 8)
		if !a.IsNull() {
			blks = append(blks, a)
		}
	}
	return blks, nil
}

// Free releases every data block ip owns, skipping pointers that are not in
// the data region, and leaves ip empty. The caller persists or frees ip.
func (m *Mapper) Free(ip *Inode) error {
	blks, err := m.Owned(ip)
	if err != nil {
		return err
	}
	for _, a := range blks {
		if err := m.freeBlock(ip, a); err != nil {
			return err
		}
	}
	ip.Blocks = [common.NBlocks]addr.Addr{}
	ip.Size = 0
	return nil
}
