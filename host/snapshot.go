package host

import (
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("host: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is a point-in-time copy of every region.
type Snapshot struct {
	Width     int        `cbor:"w"`
	Height    int        `cbor:"h"`
	Tiles     []TileKind `cbor:"tiles"`
	Agent     AgentState `cbor:"agent"`
	Cognition []string   `cbor:"cognition"`
}

// Snapshot copies the regions. Each region is copied under its own lock, so
// the snapshot is consistent per region, not across regions.
func (m *SharedMemory) Snapshot() Snapshot {
	m.tileMu.RLock()
	tiles := slices.Clone(m.tiles)
	m.tileMu.RUnlock()
	return Snapshot{
		Width:     m.width,
		Height:    m.height,
		Tiles:     tiles,
		Agent:     m.AgentState(),
		Cognition: m.Cognition(),
	}
}

// Restore builds shared memory from a snapshot.
func Restore(s *Snapshot) (*SharedMemory, error) {
	if len(s.Tiles) != s.Width*s.Height {
		return nil, fmt.Errorf("host: snapshot has %d tiles for a %dx%d map", len(s.Tiles), s.Width, s.Height)
	}
	m := New(s.Width, s.Height)
	copy(m.tiles, s.Tiles)
	m.agent = s.Agent
	m.cognition = slices.Clone(s.Cognition)
	return m, nil
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("host: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
