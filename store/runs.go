package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chazu/prism/vm"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Run records
// ---------------------------------------------------------------------------

// RunRecord is the stored outcome of one VM run.
type RunRecord struct {
	ID        string    `cbor:"id"`
	ProgramID string    `cbor:"program"`
	Status    string    `cbor:"status"`
	Steps     int       `cbor:"steps"`
	ExitCode  int64     `cbor:"exit"`
	Fault     *vm.Fault `cbor:"fault,omitempty"`
	Output    []string  `cbor:"output"`
	Threads   int       `cbor:"threads"`
	Hot       []string  `cbor:"hot,omitempty"` // most executed opcodes
	Created   time.Time `cbor:"created"`
}

// runPrefix selects every run blob of a program.
func runPrefix(programID string) *util.Range {
	return util.BytesPrefix([]byte(prefixRun + programID + ":"))
}

func runKey(programID, runID string) []byte {
	return []byte(prefixRun + programID + ":" + runID)
}

// RecordRun stores the result of running the program named or identified
// by ref.
func (s *Store) RecordRun(ctx context.Context, ref string, res *vm.Result) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	rec := &RunRecord{
		ID:        uuid.NewString(),
		ProgramID: info.ID,
		Status:    res.Status.String(),
		Steps:     res.Steps,
		ExitCode:  res.ExitCode,
		Fault:     res.Fault,
		Output:    res.Output,
		Threads:   len(res.Threads),
		Created:   time.Now().UTC(),
	}
	for _, h := range res.Profile.Hot(3) {
		rec.Hot = append(rec.Hot, h.Op.String())
	}

	data, err := cborEncMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding run record: %w", err)
	}
	if err := s.blobs.Put(runKey(info.ID, rec.ID), data, nil); err != nil {
		return nil, fmt.Errorf("saving run record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, program_id, status, steps, exit_code, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.ProgramID, rec.Status, rec.Steps, rec.ExitCode, rec.Created.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	return rec, nil
}

// Runs returns the runs of a program, oldest first.
func (s *Store) Runs(ctx context.Context, ref string) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM runs WHERE program_id = ? ORDER BY created_at, id", info.ID)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RunRecord, 0, len(ids))
	for _, id := range ids {
		data, err := s.blobs.Get(runKey(info.ID, id), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: run record %s", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("loading run record: %w", err)
		}
		var rec RunRecord
		if err := cbor.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding run record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
