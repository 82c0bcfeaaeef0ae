package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/fs"
	"github.com/mit-pdos/go-wfs/super"
)

func TestFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	size := super.MkSuperblock(32, 64).TotalSize()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-d", path, "-i", "20", "-b", "64"}, &out))
	assert.Contains(t, out.String(), "32 inodes, 64 blocks")

	d, err := disk.NewFileDisk(path)
	require.NoError(t, err)
	defer d.Close()
	wfs, err := fs.Open(d, fs.Options{})
	require.NoError(t, err)
	a, err := wfs.Getattr("/")
	require.NoError(t, err)
	assert.Equal(t, uint32(os.Getuid()), a.Uid)
	assert.Equal(t, uint64(0), a.Size)
}

func TestTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))
	err := run([]string{"-d", path, "-i", "32", "-b", "64"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, common.ErrTooSmall)
}

func TestGrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, run([]string{"-d", path, "-i", "32", "-b", "64", "--grow"}, &bytes.Buffer{}))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(super.MkSuperblock(32, 64).TotalSize()), st.Size())
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"-d", "x.img", "-i", "32"},
		{"-d", "x.img", "-b", "32"},
		{"-i", "32", "-b", "32"},
		{"-d", "x.img", "-i", "0", "-b", "32"},
		{"-d", "x.img", "-i", "32", "-b", "32", "extra"},
	} {
		assert.ErrorIs(t, run(args, &bytes.Buffer{}), errUsage, "%v", args)
	}
	err := run([]string{"-d", "x.img", "-i", "-5", "-b", "32"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "usage")

	err = run([]string{"-d", filepath.Join(t.TempDir(), "missing"), "-i", "32", "-b", "32"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "cannot open")
}
