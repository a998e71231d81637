package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/container"
	"github.com/chazu/prism/store"
	"github.com/chazu/prism/vm"
)

func (e *env) openStore() (*store.Store, error) {
	return store.Open(e.cfg.StoreDir())
}

func (e *env) loadFromLibrary(name string) (*codec.Program, error) {
	s, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	c, _, err := s.Get(e.ctx, name)
	if err != nil {
		return nil, err
	}
	return container.Unpack(e.engine(), c)
}

func (e *env) recordRun(name string, res *vm.Result) error {
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.RecordRun(e.ctx, name, res)
	return err
}

// cmdStore dispatches the library subcommands.
func cmdStore(e *env, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(e.stderr, "Usage: prism store put|get|list|runs|rm [args]")
		return errUsage
	}
	switch args[0] {
	case "put":
		return storePut(e, args[1:])
	case "get":
		return storeGet(e, args[1:])
	case "list", "ls":
		return storeList(e, args[1:])
	case "runs":
		return storeRuns(e, args[1:])
	case "rm":
		return storeRemove(e, args[1:])
	}
	fmt.Fprintf(e.stderr, "Unknown store command %q\n", args[0])
	return errUsage
}

func storePut(e *env, args []string) error {
	fs := e.flagSet("store put", "<name> <program>")
	method := fs.String("method", "", "Compression method; overrides [compress] method")
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	p, err := e.loadProgram(fs.Arg(1))
	if err != nil {
		return err
	}
	m, err := e.methodFlag(*method)
	if err != nil {
		return err
	}
	var opts []container.Option
	if e.cfg.Compress.Integrity {
		opts = append(opts, container.WithIntegrity())
	}
	c, err := container.Pack(e.ctx, e.engine(), p, m, opts...)
	if err != nil {
		return err
	}

	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	info, err := s.Put(e.ctx, fs.Arg(0), c)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s (%s, %s)\n", info.Name, info.ID, info.Method, humanize.Bytes(uint64(info.StoredSize)))
	return nil
}

func storeGet(e *env, args []string) error {
	fs := e.flagSet("store get", "<name> <output>")
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	c, info, err := s.Get(e.ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	out := fs.Arg(1)
	if strings.HasSuffix(strings.ToLower(out), ".clc") {
		// copy the stored container as is
		if err := container.WriteFile(out, c); err != nil {
			return err
		}
	} else {
		p, err := container.Unpack(e.engine(), c)
		if err != nil {
			return err
		}
		if _, err := e.writeProgram(out, p, c.Header.Method, false); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.stdout, "%s -> %s\n", info.Name, out)
	return nil
}

// table writes left-aligned columns sized to their widest cell.
func table(w io.Writer, rows [][]string) {
	widths := make([]int, 0)
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			if i == len(row)-1 {
				sb.WriteString(cell)
			} else {
				sb.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		fmt.Fprintln(w, sb.String())
	}
}

func storeList(e *env, args []string) error {
	fs := e.flagSet("store list", "")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	infos, err := s.List(e.ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(e.stdout, "no programs")
		return nil
	}
	rows := [][]string{{"NAME", "SIZE", "METHOD", "STORED", "ADDED"}}
	for _, info := range infos {
		rows = append(rows, []string{
			info.Name,
			fmt.Sprintf("%dx%d", info.Width, info.Height),
			info.Method,
			humanize.Bytes(uint64(info.StoredSize)),
			humanize.Time(info.Created),
		})
	}
	table(e.stdout, rows)
	return nil
}

func storeRuns(e *env, args []string) error {
	fs := e.flagSet("store runs", "<name>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	runs, err := s.Runs(e.ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(e.stdout, "no runs")
		return nil
	}
	rows := [][]string{{"STATUS", "STEPS", "EXIT", "OUTPUT", "HOT"}}
	for _, r := range runs {
		status := r.Status
		if r.Fault != nil {
			status += " (" + r.Fault.Reason.String() + ")"
		}
		rows = append(rows, []string{
			status,
			humanize.Comma(int64(r.Steps)),
			fmt.Sprint(r.ExitCode),
			strings.Join(r.Output, " "),
			strings.Join(r.Hot, ","),
		})
	}
	table(e.stdout, rows)
	return nil
}

func storeRemove(e *env, args []string) error {
	fs := e.flagSet("store rm", "<name>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Delete(e.ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "removed %s\n", fs.Arg(0))
	return nil
}
