// Prism CLI - assemble, run, compress and inspect colour programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/prism/asm"
	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
	"github.com/chazu/prism/container"
	"github.com/chazu/prism/manifest"
)

// Exit codes. A halted program exits with its own HALT code instead.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitFault = 3
)

// errUsage is returned by commands after printing their usage.
var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(env *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"run", "execute a program", cmdRun},
		{"asm", "assemble .pasm source", cmdAsm},
		{"compress", "pack a program into a .clc container", cmdCompress},
		{"decompress", "unpack a .clc container", cmdDecompress},
		{"inspect", "show a container header", cmdInspect},
		{"disasm", "list every pixel of a program", cmdDisasm},
		{"debug", "step through a program interactively", cmdDebug},
		{"bench", "measure every compression method", cmdBench},
		{"store", "manage the program library (put, get, list, runs, rm)", cmdStore},
	}
}

// env carries what every command needs: configuration and the standard
// streams.
type env struct {
	ctx    context.Context
	cfg    *manifest.Manifest
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run())
}

func run() int {
	global := flag.NewFlagSet("prism", flag.ContinueOnError)
	verbose := global.Int("v", -1, "Log verbosity (0-4); overrides [log] verbosity")
	logFile := global.String("log", "", "Log file; overrides [log] file")
	global.Usage = func() { usage(global.Output()) }
	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	args := global.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		return exitUsage
	}

	cfg, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitError
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := &env{ctx: ctx, cfg: cfg, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(e, args[1:])
		return e.exitCode(err)
	}
	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
	usage(os.Stderr)
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: prism [-v N] [-log FILE] <command> [options] [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nPrograms are read from .png, .pasm or .clc files, or from the library as lib:NAME.\n")
	fmt.Fprintf(w, "Configuration comes from the nearest prism.toml, .env and PRISM_* variables.\n")
}

// loadManifest finds prism.toml from the working directory upwards and falls
// back to defaults plus environment.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}
	return manifest.FromEnv()
}

func configureLogging(cfg *manifest.Manifest) {
	if cfg.Log.File == "" {
		commonlog.Configure(cfg.Log.Verbosity, nil)
		return
	}
	path := cfg.Log.File
	commonlog.Configure(cfg.Log.Verbosity, &path)
}

// exitCode reports err and maps it to a process exit code.
func (e *env) exitCode(err error) int {
	var halt haltError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.As(err, &halt):
		return halt.exit()
	}
	var fault faultError
	if errors.As(err, &fault) {
		fmt.Fprintf(e.stderr, "%s %v\n", e.highlight("fault:"), fault.Fault)
		return exitFault
	}
	fmt.Fprintf(e.stderr, "%s %v\n", e.highlight("Error:"), err)
	return exitError
}

// highlight colours s red when stderr is a terminal.
func (e *env) highlight(s string) string {
	if f, ok := e.stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "\x1b[31m" + s + "\x1b[0m"
	}
	return s
}

// flagSet returns a flag set that prints its usage to stderr and reports
// parse failures as errUsage.
func (e *env) flagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: prism %s [options] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string, nargs int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if nargs >= 0 && fs.NArg() != nargs {
		fs.Usage()
		return errUsage
	}
	return nil
}

// ---------------------------------------------------------------------------
// Program loading
// ---------------------------------------------------------------------------

const libraryPrefix = "lib:"

// engine returns a compression engine configured from the manifest.
func (e *env) engine(extra ...compress.Option) *compress.Engine {
	return compress.New(append(e.cfg.EngineOptions(), extra...)...)
}

// loadProgram reads a program from a file, choosing the decoder by
// extension, or from the library for lib:NAME references.
func (e *env) loadProgram(ref string) (*codec.Program, error) {
	if name, ok := strings.CutPrefix(ref, libraryPrefix); ok {
		return e.loadFromLibrary(name)
	}

	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pasm", ".asm":
		return asm.AssembleFile(ref, e.asmOptions())
	case ".clc":
		c, err := container.ReadFile(ref)
		if err != nil {
			return nil, err
		}
		return container.Unpack(e.engine(), c)
	case ".png":
		f, err := os.Open(ref)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		p, err := codec.LoadPNG(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%s: unknown program format (want .png, .pasm or .clc)", ref)
}

func (e *env) asmOptions() asm.Options {
	return asm.Options{Width: e.cfg.Asm.Width, Include: e.cfg.IncludePaths()}
}

// writeProgram writes p to path in the format its extension names.
func (e *env) writeProgram(path string, p *codec.Program, method compress.Method, integrity bool) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".clc":
		var opts []container.Option
		if integrity {
			opts = append(opts, container.WithIntegrity())
		}
		c, err := container.Pack(e.ctx, e.engine(), p, method, opts...)
		if err != nil {
			return 0, err
		}
		if err := container.WriteFile(path, c); err != nil {
			return 0, err
		}
		return c.Size(), nil
	case ".png":
		f, err := os.Create(path)
		if err != nil {
			return 0, err
		}
		if err := codec.WritePNG(f, p); err != nil {
			f.Close()
			return 0, err
		}
		info, err := f.Stat()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return 0, err
		}
		return int(info.Size()), nil
	case ".pasm":
		src := asm.Source(p, e.cfg.Palette())
		return len(src), os.WriteFile(path, []byte(src), 0o644)
	}
	return 0, fmt.Errorf("%s: unknown output format (want .clc, .png or .pasm)", path)
}
