// Package asm assembles PRISM programs from .pasm text.
//
// One statement per line:
//
//	# comment (also ; to end of line)
//	.width 8               grid width; the last row is padded with HALT
//	.include "lib.pasm"    searched relative to the file, then Options.Include
//	.macro NAME a b        macro with parameters $a and $b; %% in the body
//	  LOAD $a              becomes a number unique to each expansion
//	.end
//	.hsv 20 50 50          raw pixel
//	loop:                  label for the next pixel
//	LOAD 5                 literal operand
//	STORE r2               register operand
//	LOAD [12]              memory operand
//	IF @loop               jump target, by label or as @x,y
//
// Macro expansion runs on an explicit worklist; a macro that reaches itself
// again is reported as a cycle instead of being expanded.
package asm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/prism/codec"
)

var log = commonlog.GetLogger("prism.asm")

// DefaultWidth is used when neither .width nor Options.Width is given.
const DefaultWidth = 16

// MaxExpansion bounds the number of statements macro expansion may
// produce.
const MaxExpansion = 1 << 16

// Options configures assembly.
type Options struct {
	Width   int      // default grid width; .width overrides it
	Include []string // extra .include search directories
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Position is a source location.
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Error is one assembly error.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

// ErrorList collects every error of one assembly.
type ErrorList []*Error

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Assemble assembles src; name is used in error positions and to resolve
// relative includes.
func Assemble(name string, src []byte, opts Options) (*codec.Program, error) {
	a := newAssembler(opts)
	a.run(name, string(src))
	if len(a.errs) > 0 {
		return nil, a.errs
	}
	return a.program()
}

// AssembleFile reads and assembles the file at path.
func AssembleFile(path string, opts Options) (*codec.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Assemble(path, src, opts)
}

// ---------------------------------------------------------------------------
// Assembler state
// ---------------------------------------------------------------------------

// item is one source line waiting on the worklist.
type item struct {
	text  string
	pos   Position
	chain []string // macros being expanded around this line, outermost first
}

type macro struct {
	name   string
	params []string
	body   []item
	pos    Position
}

// cell is one assembled pixel; label is set for targets still to resolve.
type cell struct {
	inst  codec.Instruction
	raw   *codec.HSVPixel
	label string
	pos   Position
}

type assembler struct {
	opts      Options
	width     int
	macros    map[string]*macro
	labels    map[string]int
	cells     []cell
	errs      ErrorList
	included  map[string]bool
	expansion int
	produced  int
}

func newAssembler(opts Options) *assembler {
	w := opts.Width
	if w <= 0 {
		w = DefaultWidth
	}
	return &assembler{
		opts:     opts,
		width:    w,
		macros:   make(map[string]*macro),
		labels:   make(map[string]int),
		included: make(map[string]bool),
	}
}

func (a *assembler) errorf(pos Position, format string, args ...any) {
	a.errs = append(a.errs, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func splitLines(name, src string, chain []string) []item {
	lines := strings.Split(src, "\n")
	items := make([]item, len(lines))
	for i, l := range lines {
		items[i] = item{text: l, pos: Position{File: name, Line: i + 1}, chain: chain}
	}
	return items
}

// stripComment drops # and ; comments and surrounding space.
func stripComment(s string) string {
	if i := strings.IndexAny(s, "#;"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// run processes the worklist: the front line is taken off, and macro uses
// and includes push their lines back onto the front.
func (a *assembler) run(name, src string) {
	if abs, err := filepath.Abs(name); err == nil {
		a.included[abs] = true
	}
	work := splitLines(name, src, nil)

	for len(work) > 0 {
		it := work[0]
		work = work[1:]

		line := stripComment(it.text)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".macro") {
			body, rest, ok := takeMacroBody(work)
			if !ok {
				a.errorf(it.pos, ".macro without .end")
			}
			a.defineMacro(it, line, body)
			work = rest
			continue
		}
		if strings.HasPrefix(line, ".") {
			work = a.directive(it, line, work)
			continue
		}

		// labels, possibly followed by a statement
		for {
			i := strings.IndexByte(line, ':')
			if i < 0 || strings.ContainsAny(line[:i], " \t@[") {
				break
			}
			a.defineLabel(it.pos, line[:i])
			line = strings.TrimSpace(line[i+1:])
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if m, ok := a.macros[strings.ToUpper(fields[0])]; ok {
			work = a.expand(it, m, fields[1:], work)
			continue
		}
		a.statement(it.pos, fields[0], strings.TrimSpace(line[len(fields[0]):]))
	}
}

// takeMacroBody splits the lines up to the matching .end off work. The .end
// line itself is dropped.
func takeMacroBody(work []item) (body, rest []item, ok bool) {
	for i, it := range work {
		if stripComment(it.text) == ".end" {
			return work[:i:i], work[i+1:], true
		}
	}
	return work, nil, false
}

func (a *assembler) defineMacro(it item, line string, body []item) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		a.errorf(it.pos, ".macro needs a name")
		return
	}
	name := strings.ToUpper(fields[1])
	if _, ok := codec.ParseOpcode(name); ok {
		a.errorf(it.pos, "macro %s shadows an opcode", fields[1])
		return
	}
	if prev, ok := a.macros[name]; ok {
		a.errorf(it.pos, "macro %s already defined at %v", fields[1], prev.pos)
		return
	}
	for _, b := range body {
		if strings.HasPrefix(stripComment(b.text), ".macro") {
			a.errorf(b.pos, "nested .macro in %s", fields[1])
			return
		}
	}
	a.macros[name] = &macro{name: name, params: fields[2:], body: body, pos: it.pos}
}

// expand pushes m's body, with arguments substituted, onto the front of
// work.
func (a *assembler) expand(it item, m *macro, args []string, work []item) []item {
	for _, c := range it.chain {
		if c == m.name {
			a.errorf(it.pos, "macro cycle: %s -> %s", strings.Join(it.chain, " -> "), m.name)
			return work
		}
	}
	if len(args) != len(m.params) {
		a.errorf(it.pos, "macro %s takes %d arguments, got %d", m.name, len(m.params), len(args))
		return work
	}
	a.produced += len(m.body)
	if a.produced > MaxExpansion {
		a.errorf(it.pos, "macro expansion exceeds %d lines", MaxExpansion)
		return nil
	}
	a.expansion++

	// longer parameter names first so $ab is not read as $a
	order := make([]int, len(m.params))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return len(m.params[order[i]]) > len(m.params[order[j]])
	})
	pairs := []string{"%%", fmt.Sprintf("_%d", a.expansion)}
	for _, i := range order {
		pairs = append(pairs, "$"+m.params[i], args[i])
	}
	r := strings.NewReplacer(pairs...)

	chain := append(append([]string(nil), it.chain...), m.name)
	body := make([]item, len(m.body), len(m.body)+len(work))
	for i, b := range m.body {
		body[i] = item{text: r.Replace(b.text), pos: b.pos, chain: chain}
	}
	return append(body, work...)
}

func (a *assembler) directive(it item, line string, work []item) []item {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".width":
		var w int
		if len(fields) != 2 || !parseInt(fields[1], &w) || w <= 0 {
			a.errorf(it.pos, ".width needs a positive width")
			break
		}
		a.width = w
	case ".hsv":
		var h, s, v int
		if len(fields) != 4 || !parseInt(fields[1], &h) || !parseInt(fields[2], &s) || !parseInt(fields[3], &v) {
			a.errorf(it.pos, ".hsv needs hue, saturation and value")
			break
		}
		if h < 0 || h > codec.MaxHue || s < 0 || s > codec.MaxSat || v < 0 || v > codec.MaxVal {
			a.errorf(it.pos, ".hsv %d %d %d out of range", h, s, v)
			break
		}
		px := codec.HSV(h, s, v)
		a.cells = append(a.cells, cell{raw: &px, pos: it.pos})
	case ".include":
		return a.include(it, strings.TrimSpace(strings.TrimPrefix(line, ".include")), work)
	case ".end":
		a.errorf(it.pos, ".end without .macro")
	default:
		a.errorf(it.pos, "unknown directive %s", fields[0])
	}
	return work
}

func (a *assembler) include(it item, arg string, work []item) []item {
	name := strings.Trim(arg, `"`)
	if name == "" {
		a.errorf(it.pos, ".include needs a file name")
		return work
	}
	dirs := append([]string{filepath.Dir(it.pos.File)}, a.opts.Include...)
	for _, dir := range dirs {
		path := name
		if !filepath.IsAbs(name) {
			path = filepath.Join(dir, name)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		abs, _ := filepath.Abs(path)
		if a.included[abs] {
			// already assembled once; its macros and labels are defined
			log.Debugf("skipping repeated include %s", path)
			return work
		}
		a.included[abs] = true
		return append(splitLines(path, string(src), it.chain), work...)
	}
	a.errorf(it.pos, "cannot find include %q", name)
	return work
}

func (a *assembler) defineLabel(pos Position, name string) {
	if !validLabel(name) {
		a.errorf(pos, "invalid label %q", name)
		return
	}
	if _, ok := a.labels[name]; ok {
		a.errorf(pos, "duplicate label %s", name)
		return
	}
	a.labels[name] = len(a.cells)
}

func validLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
