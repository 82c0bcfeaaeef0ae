package fuse

import (
	"errors"
	"syscall"

	"github.com/mit-pdos/go-wfs/common"
)

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{common.ErrNotFound, syscall.ENOENT},
	{common.ErrExists, syscall.EEXIST},
	{common.ErrNoSpace, syscall.ENOSPC},
	{common.ErrNotDir, syscall.ENOTDIR},
	{common.ErrIsDir, syscall.EISDIR},
	{common.ErrNotEmpty, syscall.ENOTEMPTY},
	{common.ErrNameTooLong, syscall.ENAMETOOLONG},
	{common.ErrFileTooLarge, syscall.EFBIG},
	{common.ErrInvalid, syscall.EINVAL},
}

// toErrno maps an engine error to the errno FUSE returns. Anything not
// listed, corruption included, is an I/O error.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return syscall.EIO
}
