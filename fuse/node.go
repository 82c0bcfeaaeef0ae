package fuse

import (
	"context"
	"path"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/fs"
)

// node is one file or directory of the mount. It carries no state of its
// own: its path in the go-fuse tree names the object in the image.
type node struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeMknoder = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeWriter = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)

func (n *node) fsys() *fs.FS {
	return n.options.FS
}

func (n *node) path() string {
	return "/" + n.Path(n.Root())
}

func (n *node) child(name string) string {
	return path.Join(n.path(), name)
}

func (n *node) errno(op string, p string, err error) syscall.Errno {
	errno := toErrno(err)
	if errno == syscall.EIO {
		n.options.Logger.Error("wfs operation failed", "op", op, "path", p, "error", err)
	} else {
		n.options.Logger.Debug("wfs operation refused", "op", op, "path", p, "error", err)
	}
	return errno
}

// caller is the credential of the process making the request
func caller(ctx context.Context) fs.Cred {
	if c, ok := fuse.FromContext(ctx); ok {
		return fs.Cred{Uid: c.Uid, Gid: c.Gid}
	}
	return fs.ProcessCred()
}

func fillAttr(a fs.Attr, out *fuse.Attr) {
	out.Mode = a.Mode
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.Blksize = a.Blksize
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.Uid, Gid: a.Gid}
	out.Atime = a.Atime
	out.Mtime = a.Mtime
	out.Ctime = a.Ctime
}

// entry fills out for the object at p and returns a go-fuse inode for it
func (n *node) entry(ctx context.Context, p string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	a, err := n.fsys().Getattr(p)
	if err != nil {
		return nil, n.errno("lookup", p, err)
	}
	fillAttr(a, &out.Attr)
	out.SetEntryTimeout(n.options.EntryTimeout)
	out.SetAttrTimeout(n.options.AttrTimeout)
	child := n.NewInode(ctx, &node{options: n.options}, gofuse.StableAttr{Mode: a.Mode & syscall.S_IFMT})
	return child, 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	p := n.path()
	a, err := n.fsys().Getattr(p)
	if err != nil {
		return n.errno("getattr", p, err)
	}
	fillAttr(a, &out.Attr)
	out.SetTimeout(n.options.AttrTimeout)
	return 0
}

// Setattr accepts and ignores changes; the image has no truncate and keeps
// its own timestamps.
func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return n.Getattr(ctx, f, out)
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return n.entry(ctx, n.child(name), out)
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	p := n.path()
	var entries []fuse.DirEntry
	err := n.fsys().Readdir(p, 0, func(name string, inum common.Inum) bool {
		entries = append(entries, fuse.DirEntry{Name: name})
		return true
	})
	if err != nil {
		return nil, n.errno("readdir", p, err)
	}
	// dentries carry no type, so fill it in from each child's inode
	for i := range entries {
		a, err := n.fsys().Getattr(path.Join(p, entries[i].Name))
		if err != nil {
			return nil, n.errno("readdir", p, err)
		}
		entries[i].Mode = a.Mode & syscall.S_IFMT
	}
	return gofuse.NewListDirStream(entries), 0
}

func (n *node) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.child(name)
	if err := n.fsys().Mknod(p, mode, caller(ctx)); err != nil {
		return nil, n.errno("mknod", p, err)
	}
	return n.entry(ctx, p, out)
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	p := n.child(name)
	if err := n.fsys().Mknod(p, mode, caller(ctx)); err != nil {
		return nil, nil, 0, n.errno("create", p, err)
	}
	child, errno := n.entry(ctx, p, out)
	return child, nil, 0, errno
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.child(name)
	if err := n.fsys().Mkdir(p, mode, caller(ctx)); err != nil {
		return nil, n.errno("mkdir", p, err)
	}
	return n.entry(ctx, p, out)
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	if err := n.fsys().Unlink(p); err != nil {
		return n.errno("unlink", p, err)
	}
	return 0
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	if err := n.fsys().Rmdir(p); err != nil {
		return n.errno("rmdir", p, err)
	}
	return 0
}

// Open hands out no file handle; reads and writes go through the node.
func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	p := n.path()
	data, err := n.fsys().Read(p, uint64(off), uint64(len(dest)))
	if err != nil {
		return nil, n.errno("read", p, err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *node) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	p := n.path()
	written, err := n.fsys().Write(p, uint64(off), data)
	if err != nil {
		return 0, n.errno("write", p, err)
	}
	return uint32(written), 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st, err := n.fsys().Statfs()
	if err != nil {
		return n.errno("statfs", "/", err)
	}
	out.Bsize = uint32(st.Bsize)
	out.Frsize = uint32(st.Bsize)
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bfree
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.NameLen = uint32(st.NameLen)
	return 0
}
