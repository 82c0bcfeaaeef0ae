// wfsck reports the geometry and usage of a wfs image and checks it for
// consistency. It exits with status 1 if the image is inconsistent.
//
//	wfsck [--bitmaps] disk_img
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/fs"
	"github.com/mit-pdos/go-wfs/util"
)

const usage = "usage: wfsck [--bitmaps] disk_img"

var errInconsistent = errors.New("image is inconsistent")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var bitmaps bool

	flagSet := pflag.NewFlagSet("wfsck", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&bitmaps, "bitmaps", false, "print both allocation bitmaps")
	flagSet.Uint64Var(&util.Debug, "trace", 0, "engine trace level")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}
	if flagSet.NArg() != 1 {
		return errors.New(usage)
	}
	image := flagSet.Arg(0)

	d, err := disk.NewFileDisk(image)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", image, err)
	}
	defer d.Close()
	wfs, err := fs.Open(d, fs.Options{})
	if err != nil {
		return fmt.Errorf("%s is not a wfs image: %w", image, err)
	}

	sb := wfs.Superblock()
	st, err := wfs.Statfs()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "image:   %s (%s, layout %s)\n", image,
		humanize.IBytes(d.Size()), humanize.IBytes(sb.TotalSize()))
	fmt.Fprintf(stdout, "layout:  inode bitmap %v, data bitmap %v, inode table %v, data %v\n",
		sb.IBitmap, sb.DBitmap, sb.ITable, sb.DRegion)
	fmt.Fprintf(stdout, "inodes:  %s used of %s\n",
		humanize.Comma(int64(st.Files-st.Ffree)), humanize.Comma(int64(st.Files)))
	fmt.Fprintf(stdout, "blocks:  %s used of %s (%s free)\n",
		humanize.Comma(int64(st.Blocks-st.Bfree)), humanize.Comma(int64(st.Blocks)),
		humanize.IBytes(st.Bfree*common.BlockSize))

	if bitmaps {
		ibits, dbits, err := wfs.Bitmaps()
		if err != nil {
			return err
		}
		printBitmap(stdout, "inode bitmap", ibits)
		printBitmap(stdout, "data bitmap", dbits)
	}

	r, err := wfs.Check()
	if err != nil {
		return err
	}
	for _, p := range r.Problems {
		fmt.Fprintf(stdout, "problem: %s\n", p)
	}
	if !r.OK() {
		return fmt.Errorf("%s: %d problems: %w", image, len(r.Problems), errInconsistent)
	}
	fmt.Fprintf(stdout, "clean:   %d inodes and %d blocks reachable\n", r.Inodes, r.Blocks)
	return nil
}

// printBitmap prints bits most significant first, 64 to a row, each row
// prefixed with the number of its first bit.
func printBitmap(w io.Writer, name string, bits []byte) {
	fmt.Fprintf(w, "%s:\n", name)
	for row := 0; row < len(bits); row += 8 {
		var sb strings.Builder
		for i := row; i < row+8 && i < len(bits); i++ {
			fmt.Fprintf(&sb, " %08b", bits[i])
		}
		fmt.Fprintf(w, "%6d%s\n", row*8, sb.String())
	}
}
