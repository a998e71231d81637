package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/chazu/prism/asm"
	"github.com/chazu/prism/host"
	"github.com/chazu/prism/manifest"
	"github.com/chazu/prism/vm"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"prism": run,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestEnv() (*env, *bytes.Buffer) {
	var out bytes.Buffer
	return &env{
		ctx:    context.Background(),
		cfg:    manifest.Default(),
		stdin:  strings.NewReader(""),
		stdout: &out,
		stderr: &out,
	}, &out
}

func newSession(t *testing.T, src string) (*debugSession, *bytes.Buffer) {
	t.Helper()
	p, err := asm.Assemble("test.pasm", []byte(src), asm.Options{})
	if err != nil {
		t.Fatal(err)
	}
	machine, err := vm.New(p, host.New(4, 4), vm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	e, out := newTestEnv()
	return &debugSession{env: e, dbg: vm.NewDebugger(machine)}, out
}

// ---------------------------------------------------------------------------
// Unit tests
// ---------------------------------------------------------------------------

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"16x16", 16, 16, true},
		{"3X2", 3, 2, true},
		{"0x0", 0, 0, true},
		{"16", 0, 0, false},
		{"ax2", 0, 0, false},
		{"-1x2", 0, 0, false},
	}
	for _, tt := range tests {
		w, h, err := parseSize(tt.in)
		if (err == nil) != tt.ok || w != tt.w || h != tt.h {
			t.Errorf("parseSize(%q) = %d, %d, %v", tt.in, w, h, err)
		}
	}
}

func TestHaltExitCode(t *testing.T) {
	tests := []struct {
		code int64
		want int
	}{
		{7, 7},
		{255, 255},
		{256, 255},
		{-1, 255},
	}
	for _, tt := range tests {
		if got := haltError(tt.code).exit(); got != tt.want {
			t.Errorf("haltError(%d).exit() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	if got := outputPath("", "dir/prog.pasm", ".clc"); got != "dir/prog.clc" {
		t.Errorf("outputPath = %q", got)
	}
	if got := outputPath("", "lib:hello", ".png"); got != "hello.png" {
		t.Errorf("outputPath(lib:) = %q", got)
	}
	if got := outputPath("x.clc", "prog.pasm", ".png"); got != "x.clc" {
		t.Errorf("explicit -o ignored: %q", got)
	}
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	table(&buf, [][]string{
		{"NAME", "SIZE"},
		{"héllo", "4x1"},
		{"a", "16x16"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"NAME   SIZE",
		"héllo  4x1",
		"a      16x16",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestDebugSessionStepping(t *testing.T) {
	s, out := newSession(t, "LOAD 2\nLOAD 3\nMUL\nPRINT\nHALT")

	if err := s.exec("break 2,0"); err != nil {
		t.Fatal(err)
	}
	if err := s.exec("continue"); err != nil {
		t.Fatal(err)
	}
	if pc := s.dbg.PC(); pc.X != 2 || pc.Y != 0 {
		t.Fatalf("stopped at %v, want (2,0)", pc)
	}
	if stack := s.dbg.Stack(); len(stack) != 2 {
		t.Fatalf("stack = %v, want two values", stack)
	}

	out.Reset()
	if err := s.exec("step"); err != nil {
		t.Fatal(err)
	}
	// an empty line repeats the step
	if err := s.exec(""); err != nil {
		t.Fatal(err)
	}
	if err := s.exec("out"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "6\n") {
		t.Errorf("output missing 6:\n%s", out)
	}

	if err := s.exec("c"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "halted after 5 steps") {
		t.Errorf("halt not reported:\n%s", out)
	}
	if err := s.exec("q"); err != errQuit {
		t.Errorf("quit = %v, want errQuit", err)
	}
}

func TestDebugSessionErrors(t *testing.T) {
	s, _ := newSession(t, "HALT")
	for _, cmd := range []string{"break 9,9", "break x", "step 0", "frob"} {
		if err := s.exec(cmd); err == nil {
			t.Errorf("%q accepted", cmd)
		}
	}
}

func TestDebugSessionFault(t *testing.T) {
	s, out := newSession(t, "LOAD 1\nLOAD 0\nDIV\nHALT")
	if err := s.exec("step 5"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "fault: division by zero") {
		t.Errorf("fault not reported:\n%s", out)
	}
	if !s.dbg.VM().Done() {
		t.Error("VM still running after fault")
	}
}
