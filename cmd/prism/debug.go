package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/host"
	"github.com/chazu/prism/vm"
)

// lineReader yields REPL input lines; io.EOF ends the session.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type scannerReader struct {
	sc *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scannerReader) Close() error { return nil }

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (r *readlineReader) Close() error { return r.rl.Close() }

// newLineReader uses readline on a terminal and a plain scanner otherwise,
// so scripted sessions can pipe commands in.
func (e *env) newLineReader() (lineReader, error) {
	if f, ok := e.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "(prism) ",
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return nil, err
		}
		return &readlineReader{rl: rl}, nil
	}
	return &scannerReader{sc: bufio.NewScanner(e.stdin)}, nil
}

// cmdDebug runs the interactive debugger.
func cmdDebug(e *env, args []string) error {
	fs := e.flagSet("debug", "<program>")
	tiles := fs.String("tiles", "16x16", "Host tilemap size")
	var breaks []string
	fs.Func("b", "Breakpoint at x,y (repeatable)", func(s string) error {
		breaks = append(breaks, s)
		return nil
	})
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	p, err := e.loadProgram(fs.Arg(0))
	if err != nil {
		return err
	}
	tw, th, err := parseSize(*tiles)
	if err != nil {
		return err
	}
	machine, err := vm.New(p, host.New(tw, th), e.cfg.VMConfig())
	if err != nil {
		return err
	}

	sess := &debugSession{env: e, dbg: vm.NewDebugger(machine)}
	for _, b := range breaks {
		if err := sess.exec("break " + b); err != nil {
			return err
		}
	}

	in, err := e.newLineReader()
	if err != nil {
		return err
	}
	defer in.Close()

	fmt.Fprintf(e.stdout, "%dx%d program; type help for commands\n", p.Width, p.Height)
	sess.where()
	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		err = sess.exec(line)
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintf(e.stdout, "error: %v\n", err)
		}
	}
	return nil
}

var errQuit = errors.New("quit")

// debugSession interprets debugger commands against one VM.
type debugSession struct {
	env  *env
	dbg  *vm.Debugger
	last string
}

const debugHelp = `Commands:
  s, step [N]          execute N instructions (default 1)
  c, continue          run to the next breakpoint or the end
  b, break X,Y         set a breakpoint
  clear X,Y            remove a breakpoint
  breaks               list breakpoints
  w, where             show the next instruction
  r, regs              show registers
  stack                show the operand stack
  threads              list spawned threads
  out                  show output so far
  q, quit              leave the debugger
An empty line repeats the previous command.`

func parsePoint(s string) (codec.Point, error) {
	xs, ys, ok := strings.Cut(strings.ReplaceAll(s, " ", ""), ",")
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if !ok || errX != nil || errY != nil {
		return codec.Point{}, fmt.Errorf("bad position %q (want X,Y)", s)
	}
	return codec.Point{X: x, Y: y}, nil
}

func (s *debugSession) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		line = s.last
	}
	if line == "" {
		return nil
	}
	s.last = line
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	w := s.env.stdout

	switch cmd {
	case "s", "step":
		n := 1
		if arg != "" {
			var err error
			if n, err = strconv.Atoi(arg); err != nil || n < 1 {
				return fmt.Errorf("bad step count %q", arg)
			}
		}
		reason := vm.StopStep
		for i := 0; i < n && reason == vm.StopStep; i++ {
			reason = s.dbg.Step(s.env.ctx)
		}
		s.report(reason)
	case "c", "continue":
		s.report(s.dbg.Continue(s.env.ctx))
	case "b", "break":
		pt, err := parsePoint(arg)
		if err != nil {
			return err
		}
		if err := s.dbg.SetBreakpoint(pt); err != nil {
			return err
		}
		fmt.Fprintf(w, "breakpoint at %v\n", pt)
	case "clear":
		pt, err := parsePoint(arg)
		if err != nil {
			return err
		}
		s.dbg.ClearBreakpoint(pt)
	case "breaks":
		for _, pt := range s.dbg.Breakpoints() {
			fmt.Fprintln(w, pt)
		}
	case "w", "where":
		s.where()
	case "r", "regs":
		for i, v := range s.dbg.Registers() {
			fmt.Fprintf(w, "r%-2d %s\n", i, v)
		}
	case "stack":
		stack := s.dbg.Stack()
		if len(stack) == 0 {
			fmt.Fprintln(w, "empty")
		}
		for i := len(stack) - 1; i >= 0; i-- {
			fmt.Fprintf(w, "%3d  %s\n", i, stack[i])
		}
		if n := s.dbg.Frames(); n > 0 {
			fmt.Fprintf(w, "frames: %d\n", n)
		}
	case "threads":
		for _, t := range s.dbg.Threads() {
			state := "running"
			if t.Done {
				state = "done"
			}
			if t.Joined {
				state += ", joined"
			}
			fmt.Fprintf(w, "#%d from %v: %s\n", t.ID, t.Start, state)
		}
	case "out":
		for _, line := range s.dbg.VM().Output() {
			fmt.Fprintln(w, line)
		}
	case "h", "help", "?":
		fmt.Fprintln(w, debugHelp)
	case "q", "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *debugSession) report(reason vm.StopReason) {
	w := s.env.stdout
	switch reason {
	case vm.StopHalted:
		st := s.dbg.VM().State()
		fmt.Fprintf(w, "halted after %d steps, exit code %d\n", st.Steps, st.ExitCode)
	case vm.StopFaulted:
		fmt.Fprintf(w, "fault: %v\n", s.dbg.VM().State().Fault)
	case vm.StopBreakpoint:
		fmt.Fprintf(w, "breakpoint\n")
		s.where()
	default:
		s.where()
	}
}

func (s *debugSession) where() {
	if s.dbg.VM().Done() {
		fmt.Fprintf(s.env.stdout, "%s\n", s.dbg.VM().State().Status)
		return
	}
	fmt.Fprintf(s.env.stdout, "%v  %s\n", s.dbg.PC(), s.dbg.Current())
}
