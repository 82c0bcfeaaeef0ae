// fs implements the filesystem operations over a formatted image. Each
// operation holds the filesystem lock from start to finish, so a bitmap
// change and the dentry change it pairs with are never seen apart.
package fs

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-wfs/alloc"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/dir"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/inode"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

type Options struct {
	Clock inode.Clock // defaults to time.Now
}

type FS struct {
	mu     *sync.Mutex
	d      disk.Disk
	sb     *super.Superblock
	ialloc *alloc.Alloc
	balloc *alloc.Alloc
	m      *inode.Mapper
	dirs   *dir.Dirs
}

// Open loads the superblock of the image on d
func Open(d disk.Disk, opts Options) (*FS, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	ialloc := alloc.MkAlloc(d, sb.IBitmap, sb.NInodes)
	balloc := alloc.MkAlloc(d, sb.DBitmap, sb.NBlocks)
	m := inode.MkMapper(d, sb, balloc, opts.Clock)
	fs := &FS{
		mu:     new(sync.Mutex),
		d:      d,
		sb:     sb,
		ialloc: ialloc,
		balloc: balloc,
		m:      m,
		dirs:   dir.MkDirs(d, sb, ialloc, m),
	}
	return fs, nil
}

func (fs *FS) Superblock() super.Superblock {
	return *fs.sb
}

// Close flushes the image; the disk itself belongs to the caller
func (fs *FS) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.d.Barrier()
}

type Attr struct {
	Ino     uint64
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Size    uint64
	Nlink   uint32
	Atime   uint64
	Mtime   uint64
	Ctime   uint64
	Blocks  uint64 // in 512-byte units
	Blksize uint32
}

func mkAttr(ip *inode.Inode) Attr {
	return Attr{
		Ino:     uint64(ip.Inum),
		Mode:    ip.Mode,
		Uid:     ip.Uid,
		Gid:     ip.Gid,
		Size:    ip.Size,
		Nlink:   ip.Nlinks,
		Atime:   ip.Atime,
		Mtime:   ip.Mtime,
		Ctime:   ip.Ctime,
		Blocks:  ip.Size / 512,
		Blksize: uint32(common.BlockSize),
	}
}

func (fs *FS) Getattr(path string) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.dirs.Resolve(path)
	if err != nil {
		return Attr{}, err
	}
	return mkAttr(ip), nil
}

func (fs *FS) create(path string, mode uint32, nlinks uint32, cred Cred) error {
	_, err := fs.dirs.Resolve(path)
	if err == nil {
		return fmt.Errorf("create %s: %w", path, common.ErrExists)
	}
	parent, name := dir.SplitPath(path)
	_, ip, err := fs.dirs.CreateEntry(parent, name)
	if err != nil {
		return err
	}
	now := fs.m.Now()
	ip.Mode = mode
	ip.Uid = cred.Uid
	ip.Gid = cred.Gid
	ip.Nlinks = nlinks
	ip.Atime = now
	ip.Mtime = now
	ip.Ctime = now
	util.DPrintf(5, "create %s: %v\n", path, ip)
	return fs.m.Put(ip)
}

// Mknod creates an empty regular file with permission bits from mode
func (fs *FS) Mknod(path string, mode uint32, cred Cred) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if t := mode & unix.S_IFMT; t != 0 && t != unix.S_IFREG {
		return fmt.Errorf("mknod %s mode %o: %w", path, mode, common.ErrInvalid)
	}
	return fs.create(path, unix.S_IFREG|mode&0o7777, 1, cred)
}

// Mkdir creates an empty directory. Directories start with no links and
// gain one per entry created in them.
func (fs *FS) Mkdir(path string, mode uint32, cred Cred) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.create(path, unix.S_IFDIR|mode&0o7777, 0, cred)
}

// lookupEntry resolves the parent of path and the dentry naming path in it
func (fs *FS) lookupEntry(path string) (*inode.Inode, dir.Ref, *inode.Inode, error) {
	parent, name := dir.SplitPath(path)
	if name == "" {
		return nil, dir.Ref{}, nil, fmt.Errorf("remove %s: %w", path, common.ErrInvalid)
	}
	dip, err := fs.dirs.Resolve(parent)
	if err != nil {
		return nil, dir.Ref{}, nil, err
	}
	if !dip.IsDir() {
		return nil, dir.Ref{}, nil, fmt.Errorf("remove %s: %w", path, common.ErrNotDir)
	}
	ref, de, ok, err := fs.dirs.FindNamed(dip, name)
	if err != nil {
		return nil, dir.Ref{}, nil, err
	}
	if !ok {
		return nil, dir.Ref{}, nil, fmt.Errorf("remove %s: %w", path, common.ErrNotFound)
	}
	ip, err := fs.m.Get(de.Inum())
	if err != nil {
		return nil, dir.Ref{}, nil, err
	}
	return dip, ref, ip, nil
}

// remove detaches the dentry at ref before releasing anything ip owns
func (fs *FS) remove(dip *inode.Inode, ref dir.Ref, ip *inode.Inode) error {
	if err := fs.dirs.ClearEntry(ref); err != nil {
		return err
	}
	if err := fs.m.Free(ip); err != nil {
		return err
	}
	if err := fs.ialloc.FreeNum(uint64(ip.Inum)); err != nil {
		return err
	}
	if dip.Nlinks > 0 {
		dip.Nlinks--
	}
	util.DPrintf(5, "remove %d from %d\n", ip.Inum, dip.Inum)
	return fs.m.Put(dip)
}

func (fs *FS) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, ref, ip, err := fs.lookupEntry(path)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		return fmt.Errorf("unlink %s: %w", path, common.ErrIsDir)
	}
	return fs.remove(dip, ref, ip)
}

func (fs *FS) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, ref, ip, err := fs.lookupEntry(path)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("rmdir %s: %w", path, common.ErrNotDir)
	}
	if ip.Nlinks > 0 {
		return fmt.Errorf("rmdir %s: %w", path, common.ErrNotEmpty)
	}
	return fs.remove(dip, ref, ip)
}

func (fs *FS) resolveFile(path string) (*inode.Inode, error) {
	ip, err := fs.dirs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if ip.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, common.ErrIsDir)
	}
	return ip, nil
}

// Read returns up to n bytes of the file at path, starting at off
func (fs *FS) Read(path string, off uint64, n uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveFile(path)
	if err != nil {
		return nil, err
	}
	return fs.m.Read(ip, off, n)
}

func (fs *FS) Write(path string, off uint64, data []byte) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveFile(path)
	if err != nil {
		return 0, err
	}
	return fs.m.Write(ip, off, data)
}

// Readdir lists the directory at path from stream position off, calling
// fill for each entry until it returns false.
func (fs *FS) Readdir(path string, off uint64, fill func(name string, inum common.Inum) bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, err := fs.dirs.Resolve(path)
	if err != nil {
		return err
	}
	if !dip.IsDir() {
		return fmt.Errorf("readdir %s: %w", path, common.ErrNotDir)
	}
	s := fs.dirs.Stream(dip, off)
	for s.HasNext() {
		e, err := s.Next()
		if err != nil {
			return err
		}
		if !fill(e.Name, e.Inum()) {
			break
		}
	}
	return nil
}

type Statfs struct {
	Bsize   uint64
	Blocks  uint64
	Bfree   uint64
	Files   uint64
	Ffree   uint64
	NameLen uint64
}

func (fs *FS) Statfs() (Statfs, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	bfree, err := fs.balloc.NumFree()
	if err != nil {
		return Statfs{}, err
	}
	ffree, err := fs.ialloc.NumFree()
	if err != nil {
		return Statfs{}, err
	}
	return Statfs{
		Bsize:   common.BlockSize,
		Blocks:  fs.sb.NBlocks,
		Bfree:   bfree,
		Files:   fs.sb.NInodes,
		Ffree:   ffree,
		NameLen: common.MaxNameLen,
	}, nil
}

// Bitmaps returns copies of the inode and data bitmaps
func (fs *FS) Bitmaps() ([]byte, []byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ibits, err := fs.ialloc.Bits()
	if err != nil {
		return nil, nil, err
	}
	dbits, err := fs.balloc.Bits()
	if err != nil {
		return nil, nil, err
	}
	return ibits, dbits, nil
}
