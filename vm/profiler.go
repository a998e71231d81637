package vm

import (
	"sort"

	"github.com/chazu/prism/codec"
)

// Profile counts executed instructions per opcode. It is indexed by
// codec.Opcode and travels with the Result.
type Profile [codec.Count]int

// OpcodeCount is one row of a profile report.
type OpcodeCount struct {
	Op    codec.Opcode
	Count int
}

// Total returns the number of instructions counted.
func (p Profile) Total() int {
	n := 0
	for _, c := range p {
		n += c
	}
	return n
}

// Hot returns the n most executed opcodes, most frequent first. Opcodes
// never executed are left out; n <= 0 returns all of them.
func (p Profile) Hot(n int) []OpcodeCount {
	var rows []OpcodeCount
	for op, c := range p {
		if c > 0 {
			rows = append(rows, OpcodeCount{Op: codec.Opcode(op), Count: c})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count > rows[j].Count
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Merge adds o's counts to p.
func (p Profile) Merge(o Profile) Profile {
	for i := range p {
		p[i] += o[i]
	}
	return p
}
