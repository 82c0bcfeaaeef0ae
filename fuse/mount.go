// Package fuse serves a wfs image through go-fuse. Every callback is
// translated to a path under the mount and handed to the filesystem
// operations in package fs.
package fuse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mit-pdos/go-wfs/fs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// FS is the opened image to serve.
	FS *fs.FS

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request.
	Debug bool

	// EntryTimeout and AttrTimeout bound how long the kernel caches
	// lookups and attributes. Zero uses one second.
	EntryTimeout time.Duration
	AttrTimeout  time.Duration

	// FsName is shown as the source in the mount table. Empty uses "wfs".
	FsName string

	// Logger receives diagnostic messages. If nil, only errors are logged
	// to stderr.
	Logger *slog.Logger
}

// Mount mounts the image at the configured mountpoint. The caller must call
// Unmount on the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = time.Second
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = time.Second
	}
	if options.FsName == "" {
		options.FsName = "wfs"
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	root := &node{options: &options}
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &options.EntryTimeout,
		AttrTimeout:     &options.AttrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     options.FsName,
			Name:       "wfs",
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	sb := options.FS.Superblock()
	options.Logger.Info("wfs mounted", "mountpoint", options.Mountpoint,
		"inodes", sb.NInodes, "blocks", sb.NBlocks)
	return server, nil
}
