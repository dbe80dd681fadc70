package session

import (
	"errors"
	"sync"
	"time"
)

// AggregatorState is the lifecycle state of a chunk aggregator.
type AggregatorState int

const (
	// StateIdle means no chunks are buffered and no utterance is in progress.
	StateIdle AggregatorState = iota

	// StateAccumulating means at least one chunk is buffered for the current
	// utterance.
	StateAccumulating

	// StateFlushing means a flush is being assembled. The aggregator is only
	// in this state inside Add; it is never observed across calls.
	StateFlushing
)

// String returns the state name for logs.
func (s AggregatorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	}
	return "unknown"
}

// ErrChunkTooSmall is returned by Add when a chunk is below the configured
// minimum size. The chunk is dropped as codec noise and the buffer is left
// untouched; the caller should notify the client and carry on.
var ErrChunkTooSmall = errors.New("session: chunk below minimum size")

// Chunk is one fragment of streamed audio belonging to an in-progress
// utterance.
type Chunk struct {
	// Data is the raw audio bytes.
	Data []byte

	// Timestamp is the client-declared capture time.
	Timestamp time.Time

	// Last marks the final chunk of the utterance.
	Last bool
}

// Flush is the aggregate handed to the pipeline when enough audio has
// accumulated.
type Flush struct {
	// Audio is all buffered fragments concatenated in arrival order.
	Audio []byte

	// Final reports whether this flush ends the utterance.
	Final bool
}

// Aggregator buffers streamed audio chunks for one session and decides when
// a turn is ready to transcribe.
//
// A flush triggers when the buffered chunk count reaches the threshold or
// when a chunk carries the last-chunk marker. On a non-final flush the most
// recent fragment stays buffered so the next window overlaps the previous
// one, which keeps the decoder continuous across window boundaries. A final
// flush clears the buffer and returns the aggregator to idle.
//
// Aggregator is safe for concurrent use. Chunk arrival for one session is
// serialized by the owning connection handler, but a session reset may drop
// the buffer from another goroutine at any time.
type Aggregator struct {
	threshold int
	minBytes  int

	mu      sync.Mutex
	state   AggregatorState
	pending [][]byte
}

// NewAggregator creates an Aggregator that flushes every threshold chunks
// and rejects chunks smaller than minBytes.
func NewAggregator(threshold, minBytes int) *Aggregator {
	return &Aggregator{
		threshold: threshold,
		minBytes:  minBytes,
		state:     StateIdle,
	}
}

// Add buffers one chunk. It returns a non-nil Flush when the chunk completes
// a window (threshold reached or last-chunk marker), and nil when the
// aggregator is still accumulating.
//
// Chunks smaller than the minimum size return ErrChunkTooSmall and leave the
// buffer and state unchanged.
func (a *Aggregator) Add(c Chunk) (*Flush, error) {
	if len(c.Data) < a.minBytes {
		return nil, ErrChunkTooSmall
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, c.Data)
	a.state = StateAccumulating

	if !c.Last && len(a.pending) < a.threshold {
		return nil, nil
	}

	a.state = StateFlushing
	total := 0
	for _, frag := range a.pending {
		total += len(frag)
	}
	audio := make([]byte, 0, total)
	for _, frag := range a.pending {
		audio = append(audio, frag...)
	}

	if c.Last {
		a.pending = nil
		a.state = StateIdle
	} else {
		// Keep the newest fragment for decoding overlap with the next window.
		retained := a.pending[len(a.pending)-1]
		a.pending = [][]byte{retained}
		a.state = StateAccumulating
	}

	return &Flush{Audio: audio, Final: c.Last}, nil
}

// State returns the current lifecycle state.
func (a *Aggregator) State() AggregatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PendingChunks returns the number of buffered fragments.
func (a *Aggregator) PendingChunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Reset drops all buffered fragments and returns the aggregator to idle.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = nil
	a.state = StateIdle
}
