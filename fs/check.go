package fs

import (
	"fmt"

	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/inode"
)

// Report is the outcome of a consistency check
type Report struct {
	Inodes   uint64 // reachable inodes, root included
	Blocks   uint64 // data blocks referenced by reachable inodes
	Problems []string
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, a ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, a...))
}

type checker struct {
	fs     *FS
	r      *Report
	inodes map[common.Inum]bool
	blocks map[common.Bnum]common.Inum
}

// Check walks the tree from the root and compares what is reachable against
// both bitmaps.
func (fs *FS) Check() (*Report, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := &checker{
		fs:     fs,
		r:      &Report{},
		inodes: make(map[common.Inum]bool),
		blocks: make(map[common.Bnum]common.Inum),
	}
	root, err := fs.m.Get(common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	if !root.IsDir() {
		c.r.problem("root inode has mode %o", root.Mode)
		return c.r, nil
	}
	if err := c.visit("/", root); err != nil {
		return nil, err
	}
	if err := c.leaks(); err != nil {
		return nil, err
	}
	c.r.Inodes = uint64(len(c.inodes))
	c.r.Blocks = uint64(len(c.blocks))
	return c.r, nil
}

func (c *checker) visit(path string, ip *inode.Inode) error {
	if c.inodes[ip.Inum] {
		c.r.problem("%s: inode %d is linked more than once", path, ip.Inum)
		return nil
	}
	c.inodes[ip.Inum] = true
	used, err := c.fs.ialloc.IsUsed(uint64(ip.Inum))
	if err != nil {
		return err
	}
	if !used {
		c.r.problem("%s: inode %d is in use but free in the bitmap", path, ip.Inum)
	}
	if !ip.IsDir() && !ip.IsReg() {
		c.r.problem("%s: inode %d has mode %o", path, ip.Inum, ip.Mode)
	}
	if ip.Size%common.BlockSize != 0 || ip.NBlocks() > common.MaxFileBlocks {
		c.r.problem("%s: inode %d has size %d", path, ip.Inum, ip.Size)
	}
	if err := c.checkBlocks(path, ip); err != nil {
		return err
	}
	if !ip.IsDir() {
		return nil
	}

	if ip.NBlocks() > common.NDirect {
		c.r.problem("%s: directory has %d blocks", path, ip.NBlocks())
	}
	des, err := c.fs.dirs.Entries(ip)
	if err != nil {
		return err
	}
	if uint64(len(des)) != uint64(ip.Nlinks) {
		c.r.problem("%s: %d entries but link count %d", path, len(des), ip.Nlinks)
	}
	for _, de := range des {
		child := path + de.Name
		if !c.fs.sb.ValidInum(de.Inum()) {
			c.r.problem("%s: dentry points at inode %d", child, de.Num)
			continue
		}
		cip, err := c.fs.m.Get(de.Inum())
		if err != nil {
			return err
		}
		if cip.IsDir() {
			child += "/"
		}
		if err := c.visit(child, cip); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkBlocks(path string, ip *inode.Inode) error {
	blks, err := c.fs.m.Owned(ip)
	if err != nil {
		return err
	}
	for _, a := range blks {
		bn, ok := c.fs.sb.BlockIndex(a)
		if !ok {
			c.r.problem("%s: bad block pointer %v", path, a)
			continue
		}
		if other, ok := c.blocks[bn]; ok {
			c.r.problem("%s: block %d also used by inode %d", path, bn, other)
			continue
		}
		c.blocks[bn] = ip.Inum
		used, err := c.fs.balloc.IsUsed(bn)
		if err != nil {
			return err
		}
		if !used {
			c.r.problem("%s: block %d is in use but free in the bitmap", path, bn)
		}
	}
	return nil
}

func (c *checker) leaks() error {
	for i := uint64(0); i < c.fs.sb.NInodes; i++ {
		used, err := c.fs.ialloc.IsUsed(i)
		if err != nil {
			return err
		}
		if used && !c.inodes[common.Inum(i)] {
			c.r.problem("inode %d is allocated but unreachable", i)
		}
	}
	for bn := uint64(0); bn < c.fs.sb.NBlocks; bn++ {
		used, err := c.fs.balloc.IsUsed(bn)
		if err != nil {
			return err
		}
		if _, ok := c.blocks[bn]; used && !ok {
			c.r.problem("block %d (%v) is allocated but unreferenced", bn, c.fs.sb.BlockAddr(bn))
		}
	}
	return nil
}
