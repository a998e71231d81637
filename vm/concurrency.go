package vm

import (
	"context"
	"sync/atomic"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Threads: THREAD_SPAWN / THREAD_JOIN
// ---------------------------------------------------------------------------

// thread is a child VM running on its own goroutine. The parent only reads
// result after done is closed.
type thread struct {
	id     int64
	start  codec.Point
	done   chan struct{}
	state  atomic.Int32 // Status while running, then the final status
	result *Result
	joined bool
}

func (t *thread) markDone(r *Result) {
	t.result = r
	t.state.Store(int32(r.Status))
	close(t.done)
}

func (t *thread) wait() *Result {
	<-t.done
	return t.result
}

func (t *thread) isDone() bool {
	return Status(t.state.Load()) != Running
}

// spawn starts a child VM at start and returns its thread id. Ids are
// sequential per parent, starting at 1.
func (v *VM) spawn(ctx context.Context, start codec.Point) (int64, error) {
	if !v.prog.Contains(start) {
		return 0, trapf(OutOfBoundsJump, "spawn target %v outside %dx%d grid", start, v.prog.Width, v.prog.Height)
	}
	if v.spawned.Add(1) > int64(v.cfg.MaxThreads) {
		return 0, trapf(ResourceExhausted, "thread limit of %d", v.cfg.MaxThreads)
	}
	v.nextThread++
	t := &thread{id: v.nextThread, start: start, done: make(chan struct{})}
	v.threads[t.id] = t

	child := v.fork(start)
	log.Debugf("spawn thread %d at %v (depth %d)", t.id, start, child.depth)
	go func() {
		t.markDone(child.Run(ctx))
	}()
	return t.id, nil
}

// join waits for thread id, merges its output after the parent's, and
// returns 0 for a halted thread or 1 for a faulted one.
func (v *VM) join(ctx context.Context, id int64) (int64, error) {
	t, ok := v.threads[id]
	if !ok {
		return 0, trapf(InvalidOperand, "no thread %d", id)
	}
	if t.joined {
		return 0, trapf(InvalidOperand, "thread %d already joined", id)
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return 0, trapf(Cancelled, "join of thread %d: %v", id, ctx.Err())
	}
	t.joined = true
	r := t.result
	v.output = append(v.output, r.Output...)
	log.Debugf("joined thread %d: %s after %d steps", id, r.Status, r.Steps)
	if r.Status == Faulted {
		return 1, nil
	}
	return 0, nil
}
