package common

import "errors"

// Errors returned by the storage engine. Callers wrap them with context and
// test with errors.Is; the FUSE adapter maps each one to an errno.
var (
	ErrNotFound     = errors.New("no such file or directory")
	ErrExists       = errors.New("file exists")
	ErrNoSpace      = errors.New("no space left on device")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrNotEmpty     = errors.New("directory not empty")
	ErrNameTooLong  = errors.New("file name too long")
	ErrFileTooLarge = errors.New("file too large")
	ErrInvalid      = errors.New("invalid argument")
	ErrCorrupt      = errors.New("corrupt image")
	ErrTooSmall     = errors.New("image too small")
)
