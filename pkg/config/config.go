// Package config holds the recompiler settings: a TOML file layered under
// environment overrides.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"recomp/pkg/log"
)

const (
	DefaultCacheDir    = "_cache"
	DefaultBaseAddress = 0x40000000
	DefaultPageAlign   = 0x1000
)

const (
	EnvCacheDir    = "RECOMP_CACHE_DIR"
	EnvBaseAddress = "RECOMP_BASE_ADDRESS"
	EnvLog         = "RECOMP_LOG"
)

type Config struct {
	CacheDir    string         `toml:"cache_dir"`
	BaseAddress uint64         `toml:"base_address"`
	PageAlign   uint64         `toml:"page_align"`
	Log         map[string]int `toml:"log"`

	// logSpec is the raw RECOMP_LOG value, applied after Log.
	logSpec string
}

func Default() *Config {
	return &Config{
		CacheDir:    DefaultCacheDir,
		BaseAddress: DefaultBaseAddress,
		PageAlign:   DefaultPageAlign,
		Log:         map[string]int{},
	}
}

// Parse reads TOML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if c.PageAlign == 0 || c.PageAlign&(c.PageAlign-1) != 0 {
		return nil, errors.Errorf("page_align must be a power of two, got %#x", c.PageAlign)
	}
	if c.Log == nil {
		c.Log = map[string]int{}
	}
	return c, nil
}

// Load reads path; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	c, err := Parse(data)
	return c, errors.Wrapf(err, "in %s", path)
}

// ApplyEnv layers the RECOMP_* variables over c.
func (c *Config) ApplyEnv() error {
	c.CacheDir = env.Str(EnvCacheDir, c.CacheDir)
	if env.Has(EnvBaseAddress) {
		addr, err := strconv.ParseUint(env.Str(EnvBaseAddress), 0, 64)
		if err != nil {
			return errors.Wrapf(err, "bad %s", EnvBaseAddress)
		}
		c.BaseAddress = addr
	}
	c.logSpec = env.Str(EnvLog)
	return nil
}

// ApplyLogSettings pushes the configured group levels into r.
func (c *Config) ApplyLogSettings(r *log.GroupRegistry) error {
	for group, level := range c.Log {
		r.ApplySetting(group, level)
	}
	if c.logSpec != "" {
		return r.ApplySettings(c.logSpec)
	}
	return nil
}
