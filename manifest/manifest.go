// Package manifest handles bcverify.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/bcverify/verifier"
)

// FileName is the configuration file FindAndLoad looks for.
const FileName = "bcverify.toml"

// Manifest represents a bcverify.toml configuration.
type Manifest struct {
	Verifier VerifierConfig `toml:"verifier" json:"verifier"`
	Log      LogConfig      `toml:"log" json:"log"`
	Cache    CacheConfig    `toml:"cache" json:"cache"`
	Output   OutputConfig   `toml:"output" json:"output"`

	// Dir is the directory containing the bcverify.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VerifierConfig tunes verification runs.
type VerifierConfig struct {
	StrictSubroutineHandlers bool `toml:"strict-subroutine-handlers" json:"strict-subroutine-handlers"`
	TraceLimit               int  `toml:"trace-limit" json:"trace-limit"`
	Workers                  int  `toml:"workers" json:"workers"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// OutputConfig configures report output.
type OutputConfig struct {
	Format string `toml:"format" json:"format"`
	Color  string `toml:"color" json:"color"`
}

// Default returns the configuration used when no bcverify.toml exists.
func Default() *Manifest {
	workers := runtime.NumCPU()
	if workers > 64 {
		workers = 64
	}
	return &Manifest{
		Verifier: VerifierConfig{
			StrictSubroutineHandlers: true,
			TraceLimit:               32,
			Workers:                  workers,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(".bcverify", "cache.db"),
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
	}
}

// Load parses the bcverify.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file. Keys not set in the file keep their
// defaults; unknown keys and values outside the schema are errors.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a bcverify.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the absolute path of the verdict cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogFile returns the absolute path of the log file, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}

// Options returns verifier options reflecting the [verifier] section.
func (m *Manifest) Options() verifier.Options {
	opts := verifier.DefaultOptions()
	opts.StrictSubroutineHandlers = m.Verifier.StrictSubroutineHandlers
	opts.TraceLimit = m.Verifier.TraceLimit
	opts.Workers = m.Verifier.Workers
	return opts
}
