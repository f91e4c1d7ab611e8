package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is injected at build time.
var Version = "dev"

const (
	AdapterLinux   = "linux"
	AdapterMCP2221 = "mcp2221"
)

const DefaultDevice = "/dev/i2c-1"

type Config struct {
	// Device is the i2c-dev path used by the linux adapter.
	Device string `yaml:"device" toml:"device"`
	// Adapter selects the bus backend: linux or mcp2221.
	Adapter string `yaml:"adapter" toml:"adapter"`
	// HIDIndex picks one MCP2221 when several are connected; -1 means any.
	HIDIndex int  `yaml:"hid_index" toml:"hid_index"`
	Verbose  bool `yaml:"verbose" toml:"verbose"`
}

func Default() Config {
	return Config{
		Device:   DefaultDevice,
		Adapter:  AdapterLinux,
		HIDIndex: -1,
	}
}

// fileConfig uses pointers so that only keys present in the file override
// the defaults.
type fileConfig struct {
	Device   *string `yaml:"device" toml:"device"`
	Adapter  *string `yaml:"adapter" toml:"adapter"`
	HIDIndex *int    `yaml:"hid_index" toml:"hid_index"`
	Verbose  *bool   `yaml:"verbose" toml:"verbose"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("could not parse yaml config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(raw), &fc)
		if err != nil {
			return cfg, fmt.Errorf("could not parse toml config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if fc.Device != nil {
		cfg.Device = strings.TrimSpace(*fc.Device)
	}
	if fc.Adapter != nil {
		cfg.Adapter = strings.ToLower(strings.TrimSpace(*fc.Adapter))
	}
	if fc.HIDIndex != nil {
		cfg.HIDIndex = *fc.HIDIndex
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterLinux:
		if c.Device == "" {
			return fmt.Errorf("device must be set for the %s adapter", AdapterLinux)
		}
	case AdapterMCP2221:
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if c.HIDIndex < -1 {
		return fmt.Errorf("invalid hid index %d", c.HIDIndex)
	}
	return nil
}
