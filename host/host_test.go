package host

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestTileReadWrite(t *testing.T) {
	m := New(4, 3)
	if err := m.SetTile(2, 1, TileBanana); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	got, err := m.Tile(2, 1)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if got != TileBanana {
		t.Errorf("Tile(2,1) = %v, want banana", got)
	}
	if rows := m.Tiles(); rows[1][2] != TileBanana || len(rows) != 3 || len(rows[0]) != 4 {
		t.Errorf("Tiles() = %v", rows)
	}
}

func TestTileOutOfBounds(t *testing.T) {
	m := New(2, 2)
	for _, c := range [][2]int64{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if _, err := m.Tile(c[0], c[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("Tile(%d,%d) error = %v, want ErrOutOfBounds", c[0], c[1], err)
		}
		if err := m.SetTile(c[0], c[1], TileWall); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("SetTile(%d,%d) error = %v, want ErrOutOfBounds", c[0], c[1], err)
		}
	}
}

func TestAgentPatchLeavesUnsetFields(t *testing.T) {
	m := New(1, 1)
	x, score := int64(5), int64(100)
	m.SetAgentState(AgentPatch{X: &x, Score: &score})
	happy := EmotionHappy
	m.SetAgentState(AgentPatch{Emotion: &happy})

	a := m.AgentState()
	if a.X != 5 || a.Metrics.Score != 100 || a.Emotion != EmotionHappy || a.Y != 0 {
		t.Errorf("agent = %+v", a)
	}
}

func TestFieldAndPatchField(t *testing.T) {
	for f := int64(FieldX); f <= FieldSteps; f++ {
		p, err := PatchField(f, 7)
		if err != nil {
			t.Fatalf("PatchField(%d): %v", f, err)
		}
		got, err := p.Apply(AgentState{}).Field(f)
		if err != nil || got != 7 {
			t.Errorf("field %d = %d, %v; want 7", f, got, err)
		}
	}
	if _, err := PatchField(99, 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("PatchField(99) error = %v", err)
	}
	if _, err := (AgentState{}).Field(-1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Field(-1) error = %v", err)
	}
}

func TestCognitionAppendOnly(t *testing.T) {
	m := New(1, 1)
	m.AppendCognition("look")
	trace := m.Cognition()
	trace[0] = "mutated"
	m.AppendCognition("jump")
	if got := m.Cognition(); !slices.Equal(got, []string{"look", "jump"}) {
		t.Errorf("Cognition() = %v", got)
	}
}

func TestConcurrentRegionAccess(t *testing.T) {
	m := New(8, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.SetTile(int64(i), int64(j%8), TileKind(j%6))
				m.AppendCognition("t")
				v := int64(j)
				m.SetAgentState(AgentPatch{Steps: &v})
			}
		}(i)
	}
	wg.Wait()
	if n := len(m.Cognition()); n != 400 {
		t.Errorf("cognition length = %d, want 400", n)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := New(3, 2)
	_ = m.SetTile(1, 1, TileGoal)
	e := EmotionCurious
	m.SetAgentState(AgentPatch{Emotion: &e})
	m.AppendCognition("explore")

	data, err := MarshalSnapshot(m.Snapshot())
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	r, err := Restore(s)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if k, _ := r.Tile(1, 1); k != TileGoal {
		t.Errorf("restored tile = %v, want goal", k)
	}
	if r.AgentState().Emotion != EmotionCurious {
		t.Errorf("restored emotion = %v", r.AgentState().Emotion)
	}
	if !slices.Equal(r.Cognition(), []string{"explore"}) {
		t.Errorf("restored cognition = %v", r.Cognition())
	}
}

func TestRestoreRejectsBadSnapshot(t *testing.T) {
	if _, err := Restore(&Snapshot{Width: 2, Height: 2, Tiles: make([]TileKind, 3)}); err == nil {
		t.Error("Restore accepted mismatched tile count")
	}
}
