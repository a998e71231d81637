package store

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
	"github.com/chazu/prism/container"
	"github.com/chazu/prism/vm"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(t *testing.T, n int64) (*codec.Program, *container.Container) {
	t.Helper()
	p, err := codec.Assemble(4, []codec.Instruction{
		codec.Lit(codec.OpLoad, n),
		codec.Op(codec.OpPrint),
		codec.Op(codec.OpHalt),
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := container.Pack(context.Background(), compress.New(), p, compress.Auto, container.WithIntegrity())
	if err != nil {
		t.Fatal(err)
	}
	return p, c
}

func TestPutGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p, c := sample(t, 7)

	info, err := s.Put(ctx, "seven", c)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Width != 4 || info.Height != 1 || info.Method != c.Header.Method.String() {
		t.Errorf("info = %+v", info)
	}

	for _, ref := range []string{"seven", info.ID} {
		got, gotInfo, err := s.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get(%q): %v", ref, err)
		}
		if gotInfo.ID != info.ID || gotInfo.Checksum != c.Header.Checksum {
			t.Errorf("Get(%q) info = %+v", ref, gotInfo)
		}
		prog, err := container.Unpack(compress.New(), got)
		if err != nil {
			t.Fatal(err)
		}
		if !prog.Equal(p) {
			t.Errorf("Get(%q): program differs", ref)
		}
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	if _, _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, c1 := sample(t, 1)
	p2, c2 := sample(t, 2)

	first, err := s.Put(ctx, "prog", c1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Put(ctx, "prog", c2)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("replacement kept the old id")
	}
	if _, err := s.Info(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old id still resolves: %v", err)
	}
	got, _, err := s.Get(ctx, "prog")
	if err != nil {
		t.Fatal(err)
	}
	prog, err := container.Unpack(compress.New(), got)
	if err != nil {
		t.Fatal(err)
	}
	if !prog.Equal(p2) {
		t.Error("Get returned the replaced program")
	}
}

func TestListDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for i, name := range []string{"b", "a", "c"} {
		_, c := sample(t, int64(i))
		if _, err := s.Put(ctx, name, c); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Name != "a" || list[1].Name != "b" || list[2].Name != "c" {
		t.Fatalf("List = %+v", list)
	}

	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 2 {
		t.Errorf("List after delete = %+v", list)
	}
}

func TestPutRejectsEmptyName(t *testing.T) {
	s := openStore(t)
	_, c := sample(t, 0)
	if _, err := s.Put(context.Background(), "", c); err == nil {
		t.Error("Put accepted an empty name")
	}
}

func TestRecordRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p, c := sample(t, 42)
	if _, err := s.Put(ctx, "answer", c); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		m, err := vm.New(p, nil, vm.Config{})
		if err != nil {
			t.Fatal(err)
		}
		res := m.Run(ctx)
		rec, err := s.RecordRun(ctx, "answer", res)
		if err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
		if rec.Status != "halted" || len(rec.Output) != 1 || rec.Output[0] != "42" {
			t.Errorf("record = %+v", rec)
		}
	}

	runs, err := s.Runs(ctx, "answer")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("%d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Steps != 3 || r.Fault != nil || len(r.Hot) == 0 {
			t.Errorf("run = %+v", r)
		}
	}

	if _, err := s.RecordRun(ctx, "missing", &vm.Result{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordRun(missing): %v", err)
	}
}

func TestRunRecordKeepsFault(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p, err := codec.Assemble(2, []codec.Instruction{
		codec.Lit(codec.OpLoad, 1),
		codec.Lit(codec.OpDiv, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := container.Pack(ctx, compress.New(), p, compress.MethodRaw)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "div", c); err != nil {
		t.Fatal(err)
	}
	m, err := vm.New(p, nil, vm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordRun(ctx, "div", m.Run(ctx)); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, "div")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Fault == nil || runs[0].Fault.Reason != vm.DivisionByZero {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Status != "faulted" {
		t.Errorf("status = %q", runs[0].Status)
	}
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, c := sample(t, 3)
	if _, err := s.Put(ctx, "kept", c); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, _, err := s.Get(ctx, "kept"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
