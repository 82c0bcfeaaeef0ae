package fs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/super"
)

func mkTestFs(t *testing.T) *FS {
	sb := super.MkSuperblock(32, 64)
	d := disk.NewMemDisk(sb.TotalSize())
	_, err := Format(d, 32, 64, FormatOptions{Cred: testCred, Clock: testClock})
	require.NoError(t, err)
	fs, err := Open(d, Options{Clock: testClock})
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/d", 0755, testCred))
	require.NoError(t, fs.Mknod("/d/f", 0644, testCred))
	_, err = fs.Write("/d/f", 0, mkData(2000, 1))
	require.NoError(t, err)
	return fs
}

func hasProblem(r *Report, substr string) bool {
	for _, p := range r.Problems {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

func TestCheckClean(t *testing.T) {
	fs := mkTestFs(t)
	r, err := fs.Check()
	require.NoError(t, err)
	assert.True(t, r.OK(), "%v", r.Problems)
	assert.Equal(t, uint64(3), r.Inodes)
	assert.Equal(t, uint64(2+4), r.Blocks, "two dentry blocks and four file blocks")
}

func TestCheckLeaks(t *testing.T) {
	fs := mkTestFs(t)
	require.NoError(t, fs.ialloc.MarkUsed(20))
	require.NoError(t, fs.balloc.MarkUsed(40))
	r, err := fs.Check()
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.True(t, hasProblem(r, "inode 20 is allocated but unreachable"), "%v", r.Problems)
	assert.True(t, hasProblem(r, "block 40"), "%v", r.Problems)
}

func TestCheckMissingBits(t *testing.T) {
	fs := mkTestFs(t)
	ip, err := fs.dirs.Resolve("/d/f")
	require.NoError(t, err)
	require.NoError(t, fs.ialloc.FreeNum(uint64(ip.Inum)))
	bn, ok := fs.sb.BlockIndex(ip.Blocks[0])
	require.True(t, ok)
	require.NoError(t, fs.balloc.FreeNum(bn))

	r, err := fs.Check()
	require.NoError(t, err)
	assert.True(t, hasProblem(r, "/d/f: inode 2 is in use but free"), "%v", r.Problems)
	assert.True(t, hasProblem(r, "is in use but free in the bitmap"), "%v", r.Problems)
}

func TestCheckBadPointers(t *testing.T) {
	fs := mkTestFs(t)
	ip, err := fs.dirs.Resolve("/d/f")
	require.NoError(t, err)
	dip, err := fs.dirs.Resolve("/d")
	require.NoError(t, err)
	ip.Blocks[1] = dip.Blocks[0]
	ip.Blocks[2] = fs.sb.ITable
	require.NoError(t, fs.m.Put(ip))
	dip.Nlinks = 5
	require.NoError(t, fs.m.Put(dip))

	r, err := fs.Check()
	require.NoError(t, err)
	assert.True(t, hasProblem(r, "also used by inode"), "%v", r.Problems)
	assert.True(t, hasProblem(r, "bad block pointer"), "%v", r.Problems)
	assert.True(t, hasProblem(r, "1 entries but link count 5"), "%v", r.Problems)
}
