// Package config loads the mount configuration for wfs.
//
// The configuration comes from an optional YAML file named with --config.
// Values from the file are applied over the defaults, and command-line flags
// are applied over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes one mount.
type Config struct {
	// Image is the path of the formatted disk image.
	Image string `yaml:"image"`

	// Mountpoint is the directory the filesystem is mounted on.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther lets other users access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// Debug logs every FUSE request and reply.
	Debug bool `yaml:"debug"`

	// Trace is the engine trace level; 0 disables tracing.
	Trace uint64 `yaml:"trace"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// BlockIO accesses the image through 4096-byte block reads and writes
	// instead of mapping it.
	BlockIO bool `yaml:"block_io"`

	EntryTimeout time.Duration `yaml:"entry_timeout"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`

	// FsName is the source name shown in the mount table.
	FsName string `yaml:"fs_name"`
}

func Default() *Config {
	return &Config{
		LogLevel:     "info",
		EntryTimeout: time.Second,
		AttrTimeout:  time.Second,
		FsName:       "wfs",
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are an
// error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Level is the slog level named by LogLevel
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Mountpoint == "" {
		return fmt.Errorf("mountpoint is required")
	}
	if c.EntryTimeout < 0 || c.AttrTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}
