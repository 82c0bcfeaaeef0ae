package inode

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/alloc"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

var testTime = time.Unix(1700000000, 0)

type testEnv struct {
	d      disk.Disk
	sb     *super.Superblock
	balloc *alloc.Alloc
	m      *Mapper
}

func mkEnv(nblocks uint64) *testEnv {
	sb := super.MkSuperblock(32, nblocks)
	d := disk.NewMemDisk(sb.TotalSize())
	balloc := alloc.MkAlloc(d, sb.DBitmap, sb.NBlocks)
	m := MkMapper(d, sb, balloc, func() time.Time { return testTime })
	return &testEnv{d: d, sb: sb, balloc: balloc, m: m}
}

func (env *testEnv) numFree() uint64 {
	n, err := env.balloc.NumFree()
	if err != nil {
		panic(err)
	}
	return n
}

func data(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}

func TestEncodeDecode(t *testing.T) {
	ip := &Inode{
		Inum:   3,
		Mode:   unix.S_IFREG | 0644,
		Uid:    1000,
		Gid:    100,
		Nlinks: 1,
		Size:   1024,
		Atime:  1,
		Mtime:  2,
		Ctime:  3,
	}
	ip.Blocks[0] = 0x1000
	ip.Blocks[common.IndBlock] = 0x2000
	b := ip.Encode()
	assert.Equal(t, int(common.INODESZ), len(b))
	assert.Equal(t, *ip, *Decode(b))
	assert.True(t, ip.IsReg())
	assert.False(t, ip.IsDir())
}

func TestGetPut(t *testing.T) {
	env := mkEnv(32)
	ip := &Inode{Inum: 5, Mode: unix.S_IFDIR | 0755, Nlinks: 2}
	require.NoError(t, env.m.Put(ip))

	got, err := env.m.Get(5)
	require.NoError(t, err)
	assert.Equal(t, *ip, *got)

	_, err = env.m.Get(common.Inum(env.sb.NInodes))
	assert.ErrorIs(t, err, common.ErrCorrupt)
}

func TestEnsureBlockDirect(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	ip := &Inode{Inum: 1}

	assert.NoError(env.m.EnsureBlock(ip, 2))
	assert.Equal(3*common.BlockSize, ip.Size, "gap blocks are bound too")
	for i := uint64(0); i < 3; i++ {
		assert.Equal(env.sb.BlockAddr(i), ip.Blocks[i])
	}
	assert.Equal(uint64(29), env.numFree())

	assert.NoError(env.m.EnsureBlock(ip, 1))
	assert.Equal(3*common.BlockSize, ip.Size, "already bound")
}

func TestEnsureBlockIndirect(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(128)
	ip := &Inode{Inum: 1}

	assert.NoError(env.m.EnsureBlock(ip, common.NDirect))
	assert.Equal((common.NDirect+1)*common.BlockSize, ip.Size)
	assert.Equal(env.sb.BlockAddr(common.NDirect), ip.Blocks[common.IndBlock],
		"indirect block is allocated before its first entry")
	a, err := env.m.BlockFor(ip, common.NDirect)
	assert.NoError(err)
	assert.Equal(env.sb.BlockAddr(common.NDirect+1), a)
	assert.Equal(128-common.NDirect-2, env.numFree())

	assert.NoError(env.m.EnsureBlock(ip, common.MaxFileBlocks-1))
	assert.Equal(common.MaxFileBlocks*common.BlockSize, ip.Size)
	assert.ErrorIs(env.m.EnsureBlock(ip, common.MaxFileBlocks), common.ErrFileTooLarge)
}

func TestEnsureBlockNoSpace(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	for i := uint64(0); i < 24; i++ {
		require.NoError(t, env.balloc.MarkUsed(i))
	}
	ip := &Inode{Inum: 1}
	assert.NoError(env.m.EnsureBlock(ip, common.NDirect-1))
	assert.Equal(uint64(1), env.numFree())

	err := env.m.EnsureBlock(ip, common.NDirect)
	assert.ErrorIs(err, common.ErrNoSpace)
	assert.True(ip.Blocks[common.IndBlock].IsNull(), "fresh indirect block released")
	assert.Equal(uint64(1), env.numFree())
	assert.Equal(common.NDirect*common.BlockSize, ip.Size)
}

func TestReadWrite(t *testing.T) {
	env := mkEnv(128)
	for _, n := range []int{10, int(common.BlockSize), 3*int(common.BlockSize) + 5,
		int(common.BlockSize) * 20} {
		ip := &Inode{Inum: 2}
		d := data(n)
		written, err := env.m.Write(ip, 0, d)
		require.NoError(t, err)
		assert.Equal(t, uint64(n), written)
		assert.Equal(t, util.RoundUpTo(uint64(n), common.BlockSize), ip.Size)
		assert.Equal(t, uint64(testTime.Unix()), ip.Mtime)

		got, err := env.m.Read(ip, 0, uint64(n))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(d, got), "round trip of %d bytes", n)

		require.NoError(t, env.m.Free(ip))
	}
	assert.Equal(t, uint64(128), env.numFree())
}

func TestReadClamp(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	ip := &Inode{Inum: 2}
	_, err := env.m.Write(ip, 0, data(10))
	assert.NoError(err)

	got, err := env.m.Read(ip, 500, 100)
	assert.NoError(err)
	assert.Equal(12, len(got), "clamped to the allocated extent")

	got, err = env.m.Read(ip, common.BlockSize, 10)
	assert.NoError(err)
	assert.Empty(got)

	stored, err := env.m.Get(2)
	assert.NoError(err)
	assert.Equal(uint64(testTime.Unix()), stored.Atime)
}

func TestWriteGap(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	ip := &Inode{Inum: 2}
	off := 3*common.BlockSize + 10
	n, err := env.m.Write(ip, off, []byte("hello"))
	assert.NoError(err)
	assert.Equal(uint64(5), n)
	assert.Equal(4*common.BlockSize, ip.Size)

	got, err := env.m.Read(ip, off, 5)
	assert.NoError(err)
	assert.Equal([]byte("hello"), got)
	got, err = env.m.Read(ip, 0, 10)
	assert.NoError(err)
	assert.Equal(make([]byte, 10), got, "fresh blocks are zeroed")
}

func TestWriteNoSpace(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	for i := uint64(0); i < 30; i++ {
		require.NoError(t, env.balloc.MarkUsed(i))
	}
	ip := &Inode{Inum: 2}
	n, err := env.m.Write(ip, 0, data(3*int(common.BlockSize)))
	assert.ErrorIs(err, common.ErrNoSpace)
	assert.Equal(uint64(0), n)

	stored, err := env.m.Get(2)
	assert.NoError(err)
	assert.Equal(2*common.BlockSize, stored.Size, "bound blocks stay accounted")

	_, err = env.m.Write(ip, common.MaxFileBlocks*common.BlockSize, []byte{1})
	assert.ErrorIs(err, common.ErrFileTooLarge)
}

func TestFreeSkipsBadPointers(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(32)
	ip := &Inode{Inum: 2}
	_, err := env.m.Write(ip, 0, data(10))
	assert.NoError(err)
	ip.Blocks[1] = env.sb.ITable
	ip.Blocks[2] = env.sb.BlockAddr(4).Add(3)
	ip.Blocks[common.IndBlock] = addr.Addr(env.sb.TotalSize())

	assert.NoError(env.m.Free(ip))
	assert.Equal(uint64(32), env.numFree())

	_, err = env.m.BlockFor(&Inode{Inum: 2, Blocks: [common.NBlocks]addr.Addr{env.sb.ITable}}, 0)
	assert.ErrorIs(err, common.ErrCorrupt)
}
