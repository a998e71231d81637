// Package manifest handles prism.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
	"github.com/chazu/prism/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "prism.toml"

// Manifest represents a prism.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	VM       VMConfig       `toml:"vm"`
	Compress CompressConfig `toml:"compress"`
	Asm      AsmConfig      `toml:"asm"`
	Store    StoreConfig    `toml:"store"`
	Bench    BenchConfig    `toml:"bench"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the prism.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// VMConfig sets execution limits. Zero fields take vm.DefaultConfig values.
type VMConfig struct {
	MaxSteps      int   `toml:"max-steps"`
	MaxStack      int   `toml:"max-stack"`
	MaxFrames     int   `toml:"max-frames"`
	MaxMemory     int64 `toml:"max-memory"`
	MaxThreads    int   `toml:"max-threads"`
	Tolerance     *int  `toml:"tolerance"`
	LegacyAliases bool  `toml:"legacy-aliases"`
}

// CompressConfig configures the compression engine.
type CompressConfig struct {
	Method    string `toml:"method"`
	Level     *int   `toml:"level"`
	TileRows  *int   `toml:"tile-rows"`
	Integrity bool   `toml:"integrity"`
}

// AsmConfig configures the assembler.
type AsmConfig struct {
	Width   int      `toml:"width"`
	Include []string `toml:"include"`
}

// StoreConfig locates the program library.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// BenchConfig locates the benchmark results database.
type BenchConfig struct {
	DB string `toml:"db"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no prism.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Compress.Method == "" {
		m.Compress.Method = "auto"
	}
	if m.Asm.Width <= 0 {
		m.Asm.Width = 16
	}
	if m.Store.Dir == "" {
		m.Store.Dir = ".prism"
	}
	if m.Bench.DB == "" {
		m.Bench.DB = filepath.Join(m.Store.Dir, "bench.duckdb")
	}
}

// Load parses a prism.toml file from the given directory, then applies the
// .env file beside it and PRISM_* environment variables.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.applyEnv(filepath.Join(m.Dir, ".env")); err != nil {
		return nil, err
	}
	m.applyDefaults()
	if _, err := compress.ParseMethod(m.Compress.Method); err != nil {
		return nil, fmt.Errorf("%s: [compress] method: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a prism.toml file,
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

// ---------------------------------------------------------------------------
// Component configuration
// ---------------------------------------------------------------------------

// Palette builds the canonical palette described by [vm].
func (m *Manifest) Palette() *codec.CanonicalPalette {
	if m.VM.Tolerance == nil && !m.VM.LegacyAliases {
		return codec.DefaultPalette()
	}
	var opts []codec.PaletteOption
	if m.VM.Tolerance != nil {
		opts = append(opts, codec.WithTolerance(*m.VM.Tolerance))
	}
	if m.VM.LegacyAliases {
		opts = append(opts, codec.WithLegacyAliases())
	}
	return codec.NewPalette(opts...)
}

// VMConfig returns the VM limits.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		MaxSteps:   m.VM.MaxSteps,
		MaxStack:   m.VM.MaxStack,
		MaxFrames:  m.VM.MaxFrames,
		MaxMemory:  m.VM.MaxMemory,
		MaxThreads: m.VM.MaxThreads,
		Palette:    m.Palette(),
	}
}

// Method returns the configured default compression method.
func (m *Manifest) Method() compress.Method {
	method, _ := compress.ParseMethod(m.Compress.Method)
	return method
}

// EngineOptions returns the compression engine options.
func (m *Manifest) EngineOptions() []compress.Option {
	opts := []compress.Option{compress.WithPalette(m.Palette())}
	if m.Compress.Level != nil {
		opts = append(opts, compress.WithLevel(*m.Compress.Level))
	}
	if m.Compress.TileRows != nil {
		opts = append(opts, compress.WithTileRows(*m.Compress.TileRows))
	}
	return opts
}

// IncludePaths returns absolute assembler include directories.
func (m *Manifest) IncludePaths() []string {
	var paths []string
	for _, d := range m.Asm.Include {
		paths = append(paths, m.path(d))
	}
	return paths
}

// StoreDir returns the absolute program library directory.
func (m *Manifest) StoreDir() string {
	return m.path(m.Store.Dir)
}

// BenchDB returns the absolute benchmark database path.
func (m *Manifest) BenchDB() string {
	return m.path(m.Bench.DB)
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
