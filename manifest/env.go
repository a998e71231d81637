package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/chazu/prism/compress"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PRISM_"

// envSetters maps PRISM_* names (without the prefix) to the field they
// override.
var envSetters = map[string]func(m *Manifest, v string) error{
	"MAX_STEPS":   intSetter(func(m *Manifest) *int { return &m.VM.MaxSteps }),
	"MAX_STACK":   intSetter(func(m *Manifest) *int { return &m.VM.MaxStack }),
	"MAX_FRAMES":  intSetter(func(m *Manifest) *int { return &m.VM.MaxFrames }),
	"MAX_THREADS": intSetter(func(m *Manifest) *int { return &m.VM.MaxThreads }),
	"MAX_MEMORY": func(m *Manifest, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		m.VM.MaxMemory = n
		return err
	},
	"TOLERANCE": optionalIntSetter(func(m *Manifest) **int { return &m.VM.Tolerance }),
	"METHOD": func(m *Manifest, v string) error {
		m.Compress.Method = v
		return nil
	},
	"LEVEL":     optionalIntSetter(func(m *Manifest) **int { return &m.Compress.Level }),
	"TILE_ROWS": optionalIntSetter(func(m *Manifest) **int { return &m.Compress.TileRows }),
	"INTEGRITY": func(m *Manifest, v string) error {
		b, err := strconv.ParseBool(v)
		m.Compress.Integrity = b
		return err
	},
	"STORE_DIR": func(m *Manifest, v string) error {
		m.Store.Dir = v
		return nil
	},
	"BENCH_DB": func(m *Manifest, v string) error {
		m.Bench.DB = v
		return nil
	},
	"LOG_VERBOSITY": intSetter(func(m *Manifest) *int { return &m.Log.Verbosity }),
	"LOG_FILE": func(m *Manifest, v string) error {
		m.Log.File = v
		return nil
	},
}

func intSetter(field func(*Manifest) *int) func(*Manifest, string) error {
	return func(m *Manifest, v string) error {
		n, err := strconv.Atoi(v)
		*field(m) = n
		return err
	}
}

func optionalIntSetter(field func(*Manifest) **int) func(*Manifest, string) error {
	return func(m *Manifest, v string) error {
		n, err := strconv.Atoi(v)
		*field(m) = &n
		return err
	}
}

// applyEnv overlays values from the .env file at path (if it exists) and
// then from the process environment, which wins. Empty values are ignored.
func (m *Manifest) applyEnv(path string) error {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		vars = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	for name := range envSetters {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			vars[EnvPrefix+name] = v
		}
	}

	for name, set := range envSetters {
		v, ok := vars[EnvPrefix+name]
		if !ok || v == "" {
			continue
		}
		if err := set(m, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err)
		}
	}
	return nil
}

// FromEnv returns the default configuration with PRISM_* environment
// overrides applied; it is used when no prism.toml is found.
func FromEnv() (*Manifest, error) {
	m := &Manifest{}
	if err := m.applyEnv(".env"); err != nil {
		return nil, err
	}
	m.applyDefaults()
	if _, err := compress.ParseMethod(m.Compress.Method); err != nil {
		return nil, fmt.Errorf("%sMETHOD: %w", EnvPrefix, err)
	}
	return m, nil
}
