package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/prism/host"
	"github.com/chazu/prism/vm"
)

// haltError carries a nonzero HALT exit code out of a command.
type haltError int64

func (h haltError) Error() string {
	return "halted with exit code " + strconv.FormatInt(int64(h), 10)
}

// exit returns the process exit code for h, folded into 1..255.
func (h haltError) exit() int {
	if h < 1 || h > 255 {
		return 255
	}
	return int(h)
}

// faultError carries a VM fault out of a command.
type faultError struct {
	Fault *vm.Fault
}

func (f faultError) Error() string {
	return f.Fault.Error()
}

// parseSize parses WxH.
func parseSize(s string) (w, h int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		w, err = strconv.Atoi(ws)
		if err == nil {
			h, err = strconv.Atoi(hs)
		}
	}
	if !ok || err != nil || w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("bad size %q (want WxH)", s)
	}
	return w, h, nil
}

// cmdRun executes a program and prints its output, one PRINT per line.
func cmdRun(e *env, args []string) error {
	fs := e.flagSet("run", "<program>")
	tiles := fs.String("tiles", "16x16", "Host tilemap size")
	steps := fs.Int("max-steps", 0, "Step budget; overrides [vm] max-steps")
	stats := fs.Bool("stats", false, "Print steps, threads and the hottest opcodes to stderr")
	snapshot := fs.String("snapshot", "", "Write the final VM state as CBOR to this file")
	resume := fs.String("resume", "", "Continue from a VM snapshot written by -snapshot")
	hostOut := fs.String("host-snapshot", "", "Write the final host state as CBOR to this file")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	ref := fs.Arg(0)

	p, err := e.loadProgram(ref)
	if err != nil {
		return err
	}
	tw, th, err := parseSize(*tiles)
	if err != nil {
		return err
	}
	bridge := host.New(tw, th)

	cfg := e.cfg.VMConfig()
	if *steps > 0 {
		cfg.MaxSteps = *steps
	}

	var machine *vm.VM
	if *resume != "" {
		data, err := os.ReadFile(*resume)
		if err != nil {
			return err
		}
		snap, err := vm.UnmarshalSnapshot(data)
		if err != nil {
			return err
		}
		machine, err = vm.Resume(p, bridge, cfg, snap)
		if err != nil {
			return err
		}
	} else {
		machine, err = vm.New(p, bridge, cfg)
		if err != nil {
			return err
		}
	}

	res := machine.Run(e.ctx)
	e.printOutput(res)

	if *stats {
		e.printStats(res)
	}
	if *snapshot != "" {
		data, err := vm.MarshalSnapshot(machine.Snapshot())
		if err != nil {
			return err
		}
		if err := os.WriteFile(*snapshot, data, 0o644); err != nil {
			return err
		}
	}
	if *hostOut != "" {
		data, err := host.MarshalSnapshot(bridge.Snapshot())
		if err != nil {
			return err
		}
		if err := os.WriteFile(*hostOut, data, 0o644); err != nil {
			return err
		}
	}
	if name, ok := strings.CutPrefix(ref, libraryPrefix); ok {
		if err := e.recordRun(name, res); err != nil {
			return err
		}
	}
	return resultError(res)
}

// resultError maps a finished run to the command's error.
func resultError(res *vm.Result) error {
	if res.Fault != nil {
		return faultError{Fault: res.Fault}
	}
	if res.ExitCode != 0 {
		return haltError(res.ExitCode)
	}
	return nil
}

func (e *env) printOutput(res *vm.Result) {
	for _, line := range res.Output {
		fmt.Fprintln(e.stdout, line)
	}
	for _, t := range res.Threads {
		for _, line := range t.Output {
			fmt.Fprintln(e.stdout, line)
		}
	}
}

func (e *env) printStats(res *vm.Result) {
	how := res.Status.String()
	if res.ImplicitHalt {
		how += " (end of grid)"
	}
	fmt.Fprintf(e.stderr, "status: %s\n", how)
	fmt.Fprintf(e.stderr, "steps: %s\n", humanize.Comma(int64(res.Steps)))
	if len(res.Threads) > 0 {
		fmt.Fprintf(e.stderr, "threads: %d\n", len(res.Threads))
		for _, t := range res.Threads {
			fmt.Fprintf(e.stderr, "  #%d from %v: %s\n", t.ID, t.Start, t.Status)
		}
	}
	for _, row := range res.Profile.Hot(5) {
		fmt.Fprintf(e.stderr, "  %-12s %s\n", row.Op, humanize.Comma(int64(row.Count)))
	}
}
