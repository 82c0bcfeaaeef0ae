package inode

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/common"
)

// Inode is the in-memory copy of one inode record.
//
// Size is the allocated extent of the file, not its logical length: it is
// always a multiple of BlockSize and grows by one block each time a write
// binds a new block. Blocks[0:NDirect] hold direct block addresses and
// Blocks[IndBlock] the address of the indirect block; Null means unbound.
type Inode struct {
	Inum   common.Inum
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Nlinks uint32
	Size   uint64
	Atime  uint64
	Mtime  uint64
	Ctime  uint64
	Blocks [common.NBlocks]addr.Addr
}

// Clock supplies the timestamps stored in inodes
type Clock func() time.Time

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d mode %o size %d links %d blocks %v",
		ip.Inum, ip.Mode, ip.Size, ip.Nlinks, ip.Blocks)
}

func (ip *Inode) IsDir() bool {
	return ip.Mode&unix.S_IFMT == unix.S_IFDIR
}

func (ip *Inode) IsReg() bool {
	return ip.Mode&unix.S_IFMT == unix.S_IFREG
}

// NBlocks is the number of logical blocks bound to the inode
func (ip *Inode) NBlocks() uint64 {
	return ip.Size / common.BlockSize
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Inum))
	enc.PutInt32(ip.Mode)
	enc.PutInt32(ip.Uid)
	enc.PutInt32(ip.Gid)
	enc.PutInt32(ip.Nlinks)
	enc.PutInt(ip.Size)
	enc.PutInt(ip.Atime)
	enc.PutInt(ip.Mtime)
	enc.PutInt(ip.Ctime)
	for _, a := range ip.Blocks {
		enc.PutInt(uint64(a))
	}
	return enc.Finish()
}

func Decode(b []byte) *Inode {
	dec := marshal.NewDec(b)
	ip := &Inode{}
	ip.Inum = common.Inum(dec.GetInt())
	ip.Mode = dec.GetInt32()
	ip.Uid = dec.GetInt32()
	ip.Gid = dec.GetInt32()
	ip.Nlinks = dec.GetInt32()
	ip.Size = dec.GetInt()
	ip.Atime = dec.GetInt()
	ip.Mtime = dec.GetInt()
	ip.Ctime = dec.GetInt()
	for i := range ip.Blocks {
		ip.Blocks[i] = addr.Addr(dec.GetInt())
	}
	return ip
}
