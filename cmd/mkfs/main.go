// mkfs formats an existing image file as an empty wfs filesystem.
//
//	mkfs -d disk_img -i num_inodes -b num_blocks [--grow]
//
// Both counts are rounded up to a multiple of 32. The image must already be
// large enough for the layout unless --grow is given.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/fs"
	"github.com/mit-pdos/go-wfs/super"
	"github.com/mit-pdos/go-wfs/util"
)

const usage = "usage: mkfs -d disk_img -i num_inodes -b num_blocks [--grow]"

var errUsage = errors.New(usage)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var image string
	var ninodes, nblocks uint64
	var grow bool

	flagSet := pflag.NewFlagSet("mkfs", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&image, "disk", "d", "", "image file to format")
	flagSet.Uint64VarP(&ninodes, "inodes", "i", 0, "number of inodes (rounded up to 32)")
	flagSet.Uint64VarP(&nblocks, "blocks", "b", 0, "number of data blocks (rounded up to 32)")
	flagSet.BoolVar(&grow, "grow", false, "extend or create the image file to fit the layout")
	flagSet.Uint64Var(&util.Debug, "trace", 0, "engine trace level")

	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}
	if image == "" || ninodes == 0 || nblocks == 0 || flagSet.NArg() != 0 {
		return errUsage
	}

	sb := super.MkSuperblock(ninodes, nblocks)
	if grow {
		if err := disk.Grow(image, sb.TotalSize()); err != nil {
			return err
		}
	}
	d, err := disk.NewFileDisk(image)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", image, err)
	}
	defer d.Close()

	if _, err := fs.Format(d, ninodes, nblocks, fs.FormatOptions{Cred: fs.ProcessCred()}); err != nil {
		return fmt.Errorf("formatting %s: %w", image, err)
	}
	fmt.Fprintf(stdout, "%s: %d inodes, %d blocks of %d bytes, layout %s of %s\n",
		image, sb.NInodes, sb.NBlocks, common.BlockSize, humanize.IBytes(sb.TotalSize()), humanize.IBytes(d.Size()))
	return nil
}
