// wfs mounts a formatted image with FUSE and serves it until unmounted or
// interrupted.
//
//	wfs [flags] disk_img mountpoint
//
// Settings may also come from a YAML file given with --config; flags and
// arguments override the file.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mit-pdos/go-wfs/config"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/fs"
	"github.com/mit-pdos/go-wfs/fuse"
	"github.com/mit-pdos/go-wfs/util"
)

const usage = "usage: wfs [flags] disk_img mountpoint"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, flags and positional arguments
func loadConfig(args []string, stderr io.Writer) (*config.Config, error) {
	var configPath string
	var flags config.Config

	flagSet := pflag.NewFlagSet("wfs", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {
		fmt.Fprintln(stderr, usage)
		flagSet.PrintDefaults()
	}
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.BoolVar(&flags.AllowOther, "allow-other", false, "let other users access the mount")
	flagSet.BoolVar(&flags.Debug, "debug", false, "log every FUSE request")
	flagSet.Uint64Var(&flags.Trace, "trace", 0, "engine trace level")
	flagSet.StringVar(&flags.LogLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&flags.BlockIO, "block-io", false, "use 4096-byte block I/O instead of mapping the image")
	flagSet.DurationVar(&flags.EntryTimeout, "entry-timeout", 0, "kernel lookup cache timeout")
	flagSet.DurationVar(&flags.AttrTimeout, "attr-timeout", 0, "kernel attribute cache timeout")
	flagSet.StringVar(&flags.FsName, "fs-name", "", "source name shown in the mount table")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = flags.AllowOther
	}
	if flagSet.Changed("debug") {
		cfg.Debug = flags.Debug
	}
	if flagSet.Changed("trace") {
		cfg.Trace = flags.Trace
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if flagSet.Changed("block-io") {
		cfg.BlockIO = flags.BlockIO
	}
	if flagSet.Changed("entry-timeout") {
		cfg.EntryTimeout = flags.EntryTimeout
	}
	if flagSet.Changed("attr-timeout") {
		cfg.AttrTimeout = flags.AttrTimeout
	}
	if flagSet.Changed("fs-name") {
		cfg.FsName = flags.FsName
	}

	switch flagSet.NArg() {
	case 0:
	case 2:
		cfg.Image = flagSet.Arg(0)
		cfg.Mountpoint = flagSet.Arg(1)
	default:
		return nil, errors.New(usage)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w\n%s", err, usage)
	}
	return cfg, nil
}

func openDisk(cfg *config.Config) (disk.Disk, error) {
	if !cfg.BlockIO {
		return disk.NewFileDisk(cfg.Image)
	}
	st, err := os.Stat(cfg.Image)
	if err != nil {
		return nil, err
	}
	return disk.OpenBlockFile(cfg.Image, uint64(st.Size()))
}

func run(args []string) error {
	cfg, err := loadConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	util.Debug = cfg.Trace

	d, err := openDisk(cfg)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", cfg.Image, err)
	}
	defer d.Close()

	wfs, err := fs.Open(d, fs.Options{})
	if err != nil {
		return fmt.Errorf("%s is not a wfs image: %w", cfg.Image, err)
	}

	server, err := fuse.Mount(fuse.Options{
		Mountpoint:   cfg.Mountpoint,
		FS:           wfs,
		AllowOther:   cfg.AllowOther,
		Debug:        cfg.Debug,
		EntryTimeout: cfg.EntryTimeout,
		AttrTimeout:  cfg.AttrTimeout,
		FsName:       cfg.FsName,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info("unmounting", "signal", sig.String(), "mountpoint", cfg.Mountpoint)
		if err := server.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	server.Wait()
	signal.Stop(signals)
	logger.Info("unmounted", "mountpoint", cfg.Mountpoint)
	return wfs.Close()
}
