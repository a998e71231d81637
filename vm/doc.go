// Package vm executes PRISM programs.
//
// This package contains:
//   - The tagged int/float Value and the bounded ExecutionState
//   - An opcode-indexed dispatch table over decoded instructions
//   - THREAD_SPAWN/THREAD_JOIN on goroutine-backed child VMs
//   - CBOR snapshots, a breakpoint debugger and a per-opcode profile
//
// A VM reads its program from a decoded pixel grid in raster order. Control
// flow instructions jump to absolute (x,y) positions; a jump outside the grid
// faults instead of moving the PC. Every fault is terminal and local to the
// VM instance that raised it.
package vm
