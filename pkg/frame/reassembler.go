package frame

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStaleAfter is the default reassembly staleness window. A buffer
// that has not completed within this window is evicted without delivering
// partial data.
const DefaultStaleAfter = 10 * time.Second

// Reassembler collects fragments until a frame is complete. Buffers are
// keyed by frame number; a misbehaving peer can therefore hold at most one
// buffer per frame number, and stale buffers are bounded in time by
// EvictStale. Safe for concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	buffers map[uint16]*reassemblyBuffer
}

type reassemblyBuffer struct {
	command CommandCode
	total   uint8
	parts   [][]byte
	have    int
	created time.Time
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{buffers: make(map[uint16]*reassemblyBuffer)}
}

// Add feeds one fragment in. It returns a completed frame once all indices
// 0..total-1 of a frame number are present, in any arrival order. Duplicate
// fragments are ignored. A fragment whose total or command disagrees with
// earlier fragments of the same frame number discards the buffer and returns
// ErrFragmentBounds; the frame restarts from the offending fragment.
func (r *Reassembler) Add(f Fragment) (*Frame, error) {
	if !f.Fragmented {
		return &Frame{FrameNumber: f.FrameNumber, Command: f.Command, Ciphertext: f.Ciphertext}, nil
	}
	if f.Total == 0 || f.Index >= f.Total {
		return nil, fmt.Errorf("%w: index %d of %d", ErrFragmentBounds, f.Index, f.Total)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[f.FrameNumber]
	if ok && (buf.total != f.Total || buf.command != f.Command) {
		delete(r.buffers, f.FrameNumber)
		ok = false
	}
	if !ok {
		buf = &reassemblyBuffer{
			command: f.Command,
			total:   f.Total,
			parts:   make([][]byte, f.Total),
			created: time.Now(),
		}
		r.buffers[f.FrameNumber] = buf
	}

	if buf.parts[f.Index] != nil {
		// Duplicate delivery, e.g. a retransmitted fragment.
		return nil, nil
	}
	buf.parts[f.Index] = f.Ciphertext
	buf.have++

	if buf.have < int(buf.total) {
		return nil, nil
	}

	delete(r.buffers, f.FrameNumber)
	var size int
	for _, p := range buf.parts {
		size += len(p)
	}
	ciphertext := make([]byte, 0, size)
	for _, p := range buf.parts {
		ciphertext = append(ciphertext, p...)
	}
	return &Frame{FrameNumber: f.FrameNumber, Command: buf.command, Ciphertext: ciphertext}, nil
}

// EvictStale drops every incomplete buffer older than maxAge and returns how
// many were evicted. Call it periodically; evicted frames surface to nobody,
// matching the rule that partial data is never delivered.
func (r *Reassembler) EvictStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for num, buf := range r.buffers {
		if buf.created.Before(cutoff) || buf.created.Equal(cutoff) {
			delete(r.buffers, num)
			n++
		}
	}
	return n
}

// Pending returns the number of incomplete reassembly buffers.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// Reset discards all reassembly state, e.g. on disconnect.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers = make(map[uint16]*reassemblyBuffer)
}
