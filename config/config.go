// Package config loads move2wasm.toml.
//
// Every key is optional; a missing file or section keeps the defaults.
//
//	[build]
//	entrypoint = "user_entrypoint"
//	memory_pages = 2
//	max_memory_pages = 256
//
//	[abi]
//	camel_case = true
//
//	[events]
//	"0xcafe::token::Transfer" = 2
//
//	[log]
//	level = "info"
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
)

// FileName is the file Find looks for
const FileName = "move2wasm.toml"

// MaxIndexed is the number of topics left after the event signature
const MaxIndexed = 3

type Config struct {
	Build  Build          `toml:"build"`
	ABI    ABI            `toml:"abi"`
	Events map[string]int `toml:"events"`
	Log    Log            `toml:"log"`

	// Path is the file the config was loaded from, empty for defaults
	Path string `toml:"-"`
}

type Build struct {
	Entrypoint     string `toml:"entrypoint"`
	MemoryPages    uint64 `toml:"memory_pages"`
	MaxMemoryPages uint64 `toml:"max_memory_pages"`
}

type ABI struct {
	CamelCase bool `toml:"camel_case"`
}

type Log struct {
	Level string `toml:"level"`
}

var levels = []string{"debug", "info", "warn", "error"}

// Default returns the configuration used without a file
func Default() *Config {
	o := compiler.DefaultOptions()
	return &Config{
		Build: Build{
			Entrypoint:     o.Entrypoint,
			MemoryPages:    o.MemoryPages,
			MaxMemoryPages: o.MaxMemoryPages,
		},
		ABI:    ABI{CamelCase: o.CamelCase},
		Events: map[string]int{},
		Log:    Log{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse "+path)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithPath(err, path)
	}
	return cfg, nil
}

// Find walks from dir towards the root looking for FileName. ok is false
// when no directory holds one.
func Find(dir string) (path string, ok bool, err error) {
	if dir == "" {
		dir = "."
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !stderrors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Discover loads the nearest config above dir, or the defaults when there
// is none
func Discover(dir string) (*Config, error) {
	path, ok, err := Find(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "find "+FileName)
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges and rewrites event keys to their canonical
// form
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Build.Entrypoint) == "" {
		return invalid("build.entrypoint", "must not be empty")
	}
	if c.Build.MemoryPages == 0 {
		return invalid("build.memory_pages", "must be at least 1")
	}
	if c.Build.MaxMemoryPages != 0 && c.Build.MaxMemoryPages < c.Build.MemoryPages {
		return invalid("build.max_memory_pages", fmt.Sprintf("%d is below memory_pages %d",
			c.Build.MaxMemoryPages, c.Build.MemoryPages))
	}
	if c.Build.MaxMemoryPages > 65536 {
		return invalid("build.max_memory_pages", "exceeds the 4GiB address space")
	}
	if !validLevel(c.Log.Level) {
		return invalid("log.level", fmt.Sprintf("%q is not one of %s", c.Log.Level, strings.Join(levels, ", ")))
	}

	events := make(map[string]int, len(c.Events))
	for key, n := range c.Events {
		canon, err := eventKey(key)
		if err != nil {
			return invalid("events."+key, err.Error())
		}
		if n < 0 || n > MaxIndexed {
			return invalid("events."+key, fmt.Sprintf("%d indexed fields, at most %d", n, MaxIndexed))
		}
		if _, dup := events[canon]; dup {
			return invalid("events."+key, "declared twice as "+canon)
		}
		events[canon] = n
	}
	c.Events = events
	return nil
}

// CompilerOptions returns the options the compiler runs with
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		Entrypoint:     c.Build.Entrypoint,
		MemoryPages:    c.Build.MemoryPages,
		MaxMemoryPages: c.Build.MaxMemoryPages,
		CamelCase:      c.ABI.CamelCase,
		Events:         c.Events,
	}
}

// EventNames returns the configured event structs sorted
func (c *Config) EventNames() []string {
	out := make([]string, 0, len(c.Events))
	for k := range c.Events {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// eventKey parses "address::module::Struct" and renders it with the
// canonical address form
func eventKey(key string) (string, error) {
	parts := strings.Split(key, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("want address::module::Struct")
	}
	addr, err := move.ParseAddress(parts[0])
	if err != nil {
		return "", err
	}
	return move.ModuleID{Address: addr, Name: parts[1]}.String() + "::" + parts[2], nil
}

func validLevel(l string) bool {
	for _, v := range levels {
		if l == v {
			return true
		}
	}
	return false
}

func invalid(key, detail string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Path(key).Detail("%s", detail).Build()
}
