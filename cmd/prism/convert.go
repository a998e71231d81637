package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/prism/asm"
	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
	"github.com/chazu/prism/container"
)

// outputPath replaces in's extension with ext when no -o was given.
func outputPath(out, in, ext string) string {
	if out != "" {
		return out
	}
	in = strings.TrimPrefix(in, libraryPrefix)
	return strings.TrimSuffix(in, filepath.Ext(in)) + ext
}

func (e *env) methodFlag(value string) (compress.Method, error) {
	if value == "" {
		return e.cfg.Method(), nil
	}
	return compress.ParseMethod(value)
}

// cmdAsm assembles a .pasm file into a .clc container, a PNG image or
// normalised source, chosen by the output extension.
func cmdAsm(e *env, args []string) error {
	fs := e.flagSet("asm", "<source.pasm>")
	out := fs.String("o", "", "Output file (.clc, .png or .pasm); default <source>.clc")
	width := fs.Int("width", 0, "Grid width when the source has no .width; overrides [asm] width")
	method := fs.String("method", "", "Compression method for .clc output")
	integrity := fs.Bool("integrity", false, "Append a SHA-256 footer to .clc output")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	opts := e.asmOptions()
	if *width > 0 {
		opts.Width = *width
	}
	p, err := asm.AssembleFile(fs.Arg(0), opts)
	if err != nil {
		return err
	}
	m, err := e.methodFlag(*method)
	if err != nil {
		return err
	}
	path := outputPath(*out, fs.Arg(0), ".clc")
	n, err := e.writeProgram(path, p, m, *integrity || e.cfg.Compress.Integrity)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %dx%d, %s\n", path, p.Width, p.Height, humanize.Bytes(uint64(n)))
	return nil
}

// cmdCompress packs any program into a .clc container.
func cmdCompress(e *env, args []string) error {
	fs := e.flagSet("compress", "<program>")
	out := fs.String("o", "", "Output container; default <program>.clc")
	method := fs.String("method", "", "auto, palette, rle, hybrid or raw; overrides [compress] method")
	level := fs.Int("level", -1, "Compression level 0-9; overrides [compress] level")
	integrity := fs.Bool("integrity", false, "Append a SHA-256 footer")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	p, err := e.loadProgram(fs.Arg(0))
	if err != nil {
		return err
	}
	m, err := e.methodFlag(*method)
	if err != nil {
		return err
	}
	var extra []compress.Option
	if *level >= 0 {
		extra = append(extra, compress.WithLevel(*level))
	}
	var opts []container.Option
	if *integrity || e.cfg.Compress.Integrity {
		opts = append(opts, container.WithIntegrity())
	}

	c, err := container.Pack(e.ctx, e.engine(extra...), p, m, opts...)
	if err != nil {
		return err
	}
	path := outputPath(*out, fs.Arg(0), ".clc")
	if err := container.WriteFile(path, c); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %s, %s -> %s (%.1f%%)\n", path, c.Header.Method,
		humanize.Bytes(uint64(c.Header.OriginalSize)), humanize.Bytes(uint64(c.Size())), 100*c.Ratio())
	return nil
}

// cmdDecompress unpacks a container to a PNG image or .pasm source.
func cmdDecompress(e *env, args []string) error {
	fs := e.flagSet("decompress", "<container.clc>")
	out := fs.String("o", "", "Output file (.png or .pasm); default <container>.png")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	p, err := e.loadProgram(fs.Arg(0))
	if err != nil {
		return err
	}
	path := outputPath(*out, fs.Arg(0), ".png")
	if strings.EqualFold(filepath.Ext(path), ".clc") {
		return fmt.Errorf("%s: decompress writes .png or .pasm", path)
	}
	n, err := e.writeProgram(path, p, compress.Auto, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %dx%d, %s\n", path, p.Width, p.Height, humanize.Bytes(uint64(n)))
	return nil
}

// cmdInspect prints a container's header after validating it.
func cmdInspect(e *env, args []string) error {
	fs := e.flagSet("inspect", "<container.clc>")
	verify := fs.Bool("verify", false, "Also decompress and check the payload")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	c, err := container.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	h := c.Header
	w := e.stdout
	fmt.Fprintf(w, "version:    %d\n", h.Version)
	fmt.Fprintf(w, "size:       %dx%d\n", h.Width, h.Height)
	fmt.Fprintf(w, "method:     %s (level %d)\n", h.Method, h.Level)
	fmt.Fprintf(w, "flags:      %s\n", h.Flags)
	fmt.Fprintf(w, "original:   %s\n", humanize.Bytes(uint64(h.OriginalSize)))
	fmt.Fprintf(w, "payload:    %s\n", humanize.Bytes(uint64(h.CompressedSize)))
	fmt.Fprintf(w, "container:  %s (%.1f%%)\n", humanize.Bytes(uint64(c.Size())), 100*c.Ratio())
	fmt.Fprintf(w, "checksum:   %08x\n", h.Checksum)
	if len(c.Dictionary) > 0 {
		fmt.Fprintf(w, "dictionary: %d entries\n", len(c.Dictionary))
	}
	if c.Integrity != nil {
		fmt.Fprintf(w, "sha256:     %x\n", c.Integrity[:])
	}
	if *verify {
		if _, err := container.Unpack(e.engine(), c); err != nil {
			return err
		}
		fmt.Fprintln(w, "verified:   ok")
	}
	return nil
}

// cmdDisasm lists every pixel of a program.
func cmdDisasm(e *env, args []string) error {
	fs := e.flagSet("disasm", "<program>")
	source := fs.Bool("source", false, "Print reassemblable .pasm instead of a listing")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	p, err := e.loadProgram(fs.Arg(0))
	if err != nil {
		return err
	}
	if *source {
		_, err := fmt.Fprint(e.stdout, asm.Source(p, e.cfg.Palette()))
		return err
	}
	return codec.Disassemble(e.stdout, p, e.cfg.Palette())
}
