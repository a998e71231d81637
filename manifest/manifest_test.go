package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[project]
name = "demo"
version = "0.1.0"

[vm]
max-steps = 5000
max-stack = 32
max-threads = 4
tolerance = 3
legacy-aliases = true

[compress]
method = "hybrid"
level = 9
tile-rows = 0
integrity = true

[asm]
width = 8
include = ["macros", "/abs/lib"]

[store]
dir = "library"

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	cfg := m.VMConfig()
	if cfg.MaxSteps != 5000 || cfg.MaxStack != 32 || cfg.MaxThreads != 4 {
		t.Errorf("vm config = %+v", cfg)
	}
	if cfg.MaxFrames != 0 {
		t.Errorf("max-frames = %d, want 0 (VM default)", cfg.MaxFrames)
	}
	if cfg.Palette.Tolerance() != 3 {
		t.Errorf("tolerance = %d, want 3", cfg.Palette.Tolerance())
	}
	if op, ok := cfg.Palette.Match(300); !ok || op != codec.OpMul {
		t.Errorf("legacy alias 300 = %v, %v", op, ok)
	}
	if m.Method() != compress.MethodHybrid {
		t.Errorf("method = %s, want hybrid", m.Method())
	}
	if e := compress.New(m.EngineOptions()...); e.Level() != 9 {
		t.Errorf("engine level = %d, want 9", e.Level())
	}
	if !m.Compress.Integrity {
		t.Error("integrity = false")
	}
	if m.Asm.Width != 8 {
		t.Errorf("asm width = %d", m.Asm.Width)
	}
	inc := m.IncludePaths()
	if len(inc) != 2 || inc[0] != filepath.Join(m.Dir, "macros") || inc[1] != "/abs/lib" {
		t.Errorf("include paths = %v", inc)
	}
	if m.StoreDir() != filepath.Join(m.Dir, "library") {
		t.Errorf("store dir = %q", m.StoreDir())
	}
	if m.BenchDB() != filepath.Join(m.Dir, "library", "bench.duckdb") {
		t.Errorf("bench db = %q", m.BenchDB())
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d", m.Log.Verbosity)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Method() != compress.Auto {
		t.Errorf("method = %s, want auto", m.Method())
	}
	if m.Asm.Width != 16 {
		t.Errorf("asm width = %d, want 16", m.Asm.Width)
	}
	if m.Palette() != codec.DefaultPalette() {
		t.Error("palette is not the shared default")
	}
	if m.StoreDir() != filepath.Join(m.Dir, ".prism") {
		t.Errorf("store dir = %q", m.StoreDir())
	}
	if e := compress.New(m.EngineOptions()...); e.Level() != compress.DefaultLevel {
		t.Errorf("engine level = %d", e.Level())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory succeeded")
	}

	dir := t.TempDir()
	writeFile(t, dir, FileName, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Error("Load of invalid TOML succeeded")
	}

	dir = t.TempDir()
	writeFile(t, dir, FileName, "[compress]\nmethod = \"zip\"\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted an unknown method")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, FileName, "[project]\nname = \"root\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "root" {
		t.Fatalf("manifest = %+v, want root project", m)
	}
	abs, _ := filepath.Abs(root)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("found manifest %+v in an empty tree", m)
	}
}

// ---------------------------------------------------------------------------
// Environment overlay
// ---------------------------------------------------------------------------

func TestDotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[vm]\nmax-steps = 10\n[compress]\nmethod = \"rle\"\n")
	writeFile(t, dir, ".env", "PRISM_MAX_STEPS=20\nPRISM_LEVEL=0\nPRISM_STORE_DIR=/tmp/lib\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.VM.MaxSteps != 20 {
		t.Errorf("max steps = %d, want 20 from .env", m.VM.MaxSteps)
	}
	if m.Compress.Level == nil || *m.Compress.Level != 0 {
		t.Errorf("level = %v, want 0 from .env", m.Compress.Level)
	}
	if m.StoreDir() != "/tmp/lib" {
		t.Errorf("store dir = %q", m.StoreDir())
	}
	if m.Method() != compress.MethodRLE {
		t.Errorf("method = %s, want rle from prism.toml", m.Method())
	}
}

func TestProcessEnvWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[vm]\nmax-steps = 10\n")
	writeFile(t, dir, ".env", "PRISM_MAX_STEPS=20\n")
	t.Setenv("PRISM_MAX_STEPS", "30")
	t.Setenv("PRISM_METHOD", "palette")
	t.Setenv("PRISM_INTEGRITY", "true")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.VM.MaxSteps != 30 {
		t.Errorf("max steps = %d, want 30 from the environment", m.VM.MaxSteps)
	}
	if m.Method() != compress.MethodPalette {
		t.Errorf("method = %s", m.Method())
	}
	if !m.Compress.Integrity {
		t.Error("integrity not set from the environment")
	}
}

func TestBadEnvValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "")
	t.Setenv("PRISM_MAX_THREADS", "many")
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted PRISM_MAX_THREADS=many")
	}
}

func TestFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRISM_TILE_ROWS", "8")

	m, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if m.Compress.TileRows == nil || *m.Compress.TileRows != 8 {
		t.Errorf("tile rows = %v", m.Compress.TileRows)
	}
	if m.Store.Dir != ".prism" {
		t.Errorf("store dir = %q", m.Store.Dir)
	}

	t.Setenv("PRISM_METHOD", "zip")
	if _, err := FromEnv(); err == nil {
		t.Error("FromEnv accepted PRISM_METHOD=zip")
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if m.Method() != compress.Auto || m.Asm.Width != 16 || m.Store.Dir != ".prism" {
		t.Errorf("Default() = %+v", m)
	}
}
