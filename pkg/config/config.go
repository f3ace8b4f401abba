package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBlockSize is the read/write granularity of the staging loop.
	DefaultBlockSize = 65536

	// DefaultIdleTimeout terminates a receive after this long without a
	// successful read.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultFreeSpaceDiskChangeMB is the free-space floor below which a
	// volume is flagged completed.
	DefaultFreeSpaceDiskChangeMB = 1024
)

// MimeTypeMapping binds a filename extension to a MIME type.
type MimeTypeMapping struct {
	MimeType  string `yaml:"mime_type"`
	Extension string `yaml:"extension"`
}

// PluginMapping binds a MIME type to a registered data-archive plug-in.
type PluginMapping struct {
	MimeType string `yaml:"mime_type"`
	PlugIn   string `yaml:"plug_in"`
}

// Config holds the server configuration.
type Config struct {
	HostID   string `yaml:"host_id"`
	BindAddr string `yaml:"bind_addr"`
	DataDir  string `yaml:"data_dir"`

	// Archive settings
	AllowArchiveReq       bool  `yaml:"allow_archive_req"`
	BlockSize             int   `yaml:"block_size"`
	ArchiveRcvBufSize     int   `yaml:"archive_rcv_buf_size"`
	FreeSpaceDiskChangeMB int64 `yaml:"free_space_disk_change_mb"`

	// IdleTimeout ends a stalled receive. Zero means the default 30 s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// CachingActive enables the cache-control new-files notification.
	CachingActive bool `yaml:"caching_active"`

	MimeTypeMappings []MimeTypeMapping `yaml:"mime_type_mappings"`
	PluginMappings   []PluginMapping   `yaml:"plugin_mappings"`

	// BBCPBinary overrides the bbcp executable path. Empty means "bbcp"
	// resolved through PATH.
	BBCPBinary string `yaml:"bbcp_binary"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with sane defaults for a single-host
// deployment. The host id defaults to the OS hostname.
func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		HostID:                hostname,
		BindAddr:              ":7777",
		DataDir:               "/var/lib/ngas",
		AllowArchiveReq:       true,
		BlockSize:             DefaultBlockSize,
		FreeSpaceDiskChangeMB: DefaultFreeSpaceDiskChangeMB,
		IdleTimeout:           DefaultIdleTimeout,
		MimeTypeMappings: []MimeTypeMapping{
			{MimeType: "application/fits", Extension: "fits"},
			{MimeType: "application/x-gfits", Extension: "fits.gz"},
			{MimeType: "application/x-tar", Extension: "tar"},
			{MimeType: "application/octet-stream", Extension: "dat"},
			{MimeType: "text/plain", Extension: "txt"},
			{MimeType: "text/plain", Extension: "log"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.FreeSpaceDiskChangeMB < 0 {
		return fmt.Errorf("free_space_disk_change_mb must not be negative")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return nil
}

// ExtensionFor returns the first extension configured for a MIME type. Used
// when a generated staging filename carries no extension of its own.
func (c *Config) ExtensionFor(mimeType string) (string, bool) {
	for _, m := range c.MimeTypeMappings {
		if m.MimeType == mimeType {
			return m.Extension, true
		}
	}
	return "", false
}

// PlugInFor returns the plug-in identifier configured for a MIME type.
func (c *Config) PlugInFor(mimeType string) (string, bool) {
	for _, m := range c.PluginMappings {
		if m.MimeType == mimeType {
			return m.PlugIn, true
		}
	}
	return "", false
}
