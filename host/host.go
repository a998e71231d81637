// Package host implements the shared memory regions a running program reads
// and writes through its I/O instructions: a tilemap, the agent state and an
// append-only cognition trace.
package host

import (
	"errors"
	"fmt"
	"slices"

	sync "github.com/sasha-s/go-deadlock"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("prism.host")

// ErrOutOfBounds is returned for tile coordinates outside the tilemap.
var ErrOutOfBounds = errors.New("tile coordinate out of bounds")

// ErrUnknownField is returned for agent-state field numbers with no meaning.
var ErrUnknownField = errors.New("unknown agent state field")

// ---------------------------------------------------------------------------
// Region types
// ---------------------------------------------------------------------------

// TileKind is the content of one tilemap cell.
type TileKind uint8

const (
	TileEmpty TileKind = iota
	TilePlatform
	TileWall
	TileSpike
	TileBanana
	TileGoal
)

var tileNames = [...]string{"empty", "platform", "wall", "spike", "banana", "goal"}

func (k TileKind) String() string {
	if int(k) < len(tileNames) {
		return tileNames[k]
	}
	return fmt.Sprintf("tile(%d)", k)
}

// Emotion is the agent's coarse emotional state.
type Emotion uint8

const (
	EmotionNeutral Emotion = iota
	EmotionCurious
	EmotionHappy
	EmotionFrustrated
	EmotionAfraid
)

var emotionNames = [...]string{"neutral", "curious", "happy", "frustrated", "afraid"}

func (e Emotion) String() string {
	if int(e) < len(emotionNames) {
		return emotionNames[e]
	}
	return fmt.Sprintf("emotion(%d)", e)
}

// Metrics are the agent's running counters.
type Metrics struct {
	Energy int64 `cbor:"energy"`
	Score  int64 `cbor:"score"`
	Steps  int64 `cbor:"steps"`
}

// AgentState is the agent record exposed to programs.
type AgentState struct {
	X       int64   `cbor:"x"`
	Y       int64   `cbor:"y"`
	Emotion Emotion `cbor:"emotion"`
	Metrics Metrics `cbor:"metrics"`
}

// Field numbers used by INPUT and WRITE_FILE to address agent state.
const (
	FieldX = iota
	FieldY
	FieldEmotion
	FieldEnergy
	FieldScore
	FieldSteps
)

// Field reads one agent-state field by number.
func (a AgentState) Field(f int64) (int64, error) {
	switch f {
	case FieldX:
		return a.X, nil
	case FieldY:
		return a.Y, nil
	case FieldEmotion:
		return int64(a.Emotion), nil
	case FieldEnergy:
		return a.Metrics.Energy, nil
	case FieldScore:
		return a.Metrics.Score, nil
	case FieldSteps:
		return a.Metrics.Steps, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownField, f)
}

// AgentPatch is a partial agent-state update. Nil fields are left unchanged.
type AgentPatch struct {
	X       *int64
	Y       *int64
	Emotion *Emotion
	Energy  *int64
	Score   *int64
	Steps   *int64
}

// PatchField builds a single-field patch from a field number.
func PatchField(f, v int64) (AgentPatch, error) {
	var p AgentPatch
	switch f {
	case FieldX:
		p.X = &v
	case FieldY:
		p.Y = &v
	case FieldEmotion:
		e := Emotion(v)
		p.Emotion = &e
	case FieldEnergy:
		p.Energy = &v
	case FieldScore:
		p.Score = &v
	case FieldSteps:
		p.Steps = &v
	default:
		return p, fmt.Errorf("%w: %d", ErrUnknownField, f)
	}
	return p, nil
}

// Apply returns a with every non-nil patch field applied.
func (p AgentPatch) Apply(a AgentState) AgentState {
	if p.X != nil {
		a.X = *p.X
	}
	if p.Y != nil {
		a.Y = *p.Y
	}
	if p.Emotion != nil {
		a.Emotion = *p.Emotion
	}
	if p.Energy != nil {
		a.Metrics.Energy = *p.Energy
	}
	if p.Score != nil {
		a.Metrics.Score = *p.Score
	}
	if p.Steps != nil {
		a.Metrics.Steps = *p.Steps
	}
	return a
}

// ---------------------------------------------------------------------------
// Bridge: the contract seen by the VM
// ---------------------------------------------------------------------------

// Bridge is the narrow synchronous interface the VM's I/O instructions call.
// Implementations serialize access per region.
type Bridge interface {
	Tile(x, y int64) (TileKind, error)
	SetTile(x, y int64, kind TileKind) error
	AgentState() AgentState
	SetAgentState(patch AgentPatch)
	AppendCognition(token string)
}

// ---------------------------------------------------------------------------
// SharedMemory: the host-owned regions
// ---------------------------------------------------------------------------

// SharedMemory owns the three regions. Each region has its own lock, so a
// tile write never waits on a cognition append.
type SharedMemory struct {
	tileMu sync.RWMutex
	width  int
	height int
	tiles  []TileKind

	agentMu sync.RWMutex
	agent   AgentState

	cogMu     sync.RWMutex
	cognition []string
}

// New creates a width x height tilemap of empty tiles and a zero agent.
func New(width, height int) *SharedMemory {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &SharedMemory{
		width:  width,
		height: height,
		tiles:  make([]TileKind, width*height),
	}
}

// Size returns the tilemap dimensions.
func (m *SharedMemory) Size() (width, height int) {
	return m.width, m.height
}

func (m *SharedMemory) index(x, y int64) (int, error) {
	if x < 0 || y < 0 || x >= int64(m.width) || y >= int64(m.height) {
		return 0, fmt.Errorf("%w: (%d,%d) on %dx%d map", ErrOutOfBounds, x, y, m.width, m.height)
	}
	return int(y)*m.width + int(x), nil
}

// Tile returns the tile at (x,y).
func (m *SharedMemory) Tile(x, y int64) (TileKind, error) {
	m.tileMu.RLock()
	defer m.tileMu.RUnlock()
	i, err := m.index(x, y)
	if err != nil {
		return 0, err
	}
	return m.tiles[i], nil
}

// SetTile writes the tile at (x,y).
func (m *SharedMemory) SetTile(x, y int64, kind TileKind) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()
	i, err := m.index(x, y)
	if err != nil {
		return err
	}
	m.tiles[i] = kind
	return nil
}

// Tiles returns a copy of the tilemap as rows.
func (m *SharedMemory) Tiles() [][]TileKind {
	m.tileMu.RLock()
	defer m.tileMu.RUnlock()
	rows := make([][]TileKind, m.height)
	for y := range rows {
		rows[y] = slices.Clone(m.tiles[y*m.width : (y+1)*m.width])
	}
	return rows
}

// AgentState returns a copy of the agent record.
func (m *SharedMemory) AgentState() AgentState {
	m.agentMu.RLock()
	defer m.agentMu.RUnlock()
	return m.agent
}

// SetAgentState applies a partial update.
func (m *SharedMemory) SetAgentState(patch AgentPatch) {
	m.agentMu.Lock()
	m.agent = patch.Apply(m.agent)
	m.agentMu.Unlock()
}

// AppendCognition appends a decision token to the trace.
func (m *SharedMemory) AppendCognition(token string) {
	m.cogMu.Lock()
	m.cognition = append(m.cognition, token)
	n := len(m.cognition)
	m.cogMu.Unlock()
	log.Debugf("cognition[%d] = %q", n-1, token)
}

// Cognition returns a copy of the cognition trace.
func (m *SharedMemory) Cognition() []string {
	m.cogMu.RLock()
	defer m.cogMu.RUnlock()
	return slices.Clone(m.cognition)
}

var _ Bridge = (*SharedMemory)(nil)
