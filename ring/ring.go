// Package ring keeps the bookkeeping of GPU command buffers: a fixed pool
// of rings recorded one after the other, deferred flushing, and the
// completion timestamps that tell when a buffer may be touched again.
package ring

import (
	"github.com/juju/errors"
)

const (
	// Size is the number of rings in a pool.
	Size = 8

	// ContextBuffers is the number of context-restore buffers a pool holds.
	ContextBuffers = 3
)

// State of a ring.
type State int

const (
	Idle State = iota
	Recording
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

type (
	// Submitter hands command streams to the GPU.
	Submitter interface {
		// Submit queues the commands recorded in ring slot and returns the
		// timestamp the GPU reaches once they have executed.
		Submit(slot int, cmds []uint32) (uint32, error)

		// WaitTimestamp blocks until the GPU has reached ts.
		WaitTimestamp(ts uint32) error
	}

	// Reader is implemented by submitters that can tell the last retired
	// timestamp without blocking.
	Reader interface {
		ReadTimestamp() (uint32, error)
	}

	// Fenced is anything the GPU may read or write: it carries the
	// timestamp of the last submission that referenced it.
	Fenced interface {
		Fence() *Fence
	}

	// Fence records the last submission a buffer took part in.
	Fence struct {
		timestamp uint32
		submitted bool
	}

	Ring struct {
		slot  int
		state State
		cmds  []uint32
		refs  []*Fence
		fence Fence
	}

	Pool struct {
		sub Submitter

		rings    [Size]*Ring
		idx      int
		ring     *Ring
		contexts [ContextBuffers]Fenced

		fire      bool
		started   bool
		timestamp uint32
		completed uint32
	}
)

func (f *Fence) Fence() *Fence { return f }

// Timestamp returns the timestamp of the last submission and whether there
// was one at all.
func (f *Fence) Timestamp() (uint32, bool) { return f.timestamp, f.submitted }

func (r *Ring) Slot() int       { return r.slot }
func (r *Ring) State() State    { return r.state }
func (r *Ring) Len() int        { return len(r.cmds) }
func (r *Ring) Words() []uint32 { return r.cmds }
func (r *Ring) Fence() *Fence   { return &r.fence }

// Emit appends raw command words.
func (r *Ring) Emit(words ...uint32) {
	r.cmds = append(r.cmds, words...)
}

// Reference marks b as used by the commands being recorded.
func (r *Ring) Reference(b Fenced) {
	r.refs = append(r.refs, b.Fence())
}

func (r *Ring) reset() {
	r.cmds = r.cmds[:0]
	r.refs = r.refs[:0]
	r.state = Idle
}

func NewPool(sub Submitter) *Pool {
	p := &Pool{sub: sub}
	for i := range p.rings {
		p.rings[i] = &Ring{slot: i}
	}
	return p
}

// Index returns the slot of the ring Begin selects next.
func (p *Pool) Index() int { return p.idx }

// Timestamp returns the timestamp of the last successful submission.
func (p *Pool) Timestamp() uint32 { return p.timestamp }

// Completed returns the highest timestamp the GPU is known to have reached.
func (p *Pool) Completed() uint32 { return p.completed }

func (p *Pool) Pending() bool { return p.fire }

// Current returns the ring being recorded, nil outside of Begin/Flush.
func (p *Pool) Current() *Ring { return p.ring }

func (p *Pool) Ring(slot int) *Ring { return p.rings[slot] }

func (p *Pool) SetContextBuffer(i int, b Fenced) {
	p.contexts[i] = b
}

func (p *Pool) ContextBuffer(i int) Fenced { return p.contexts[i] }

// Begin returns the ring to record commands into. A ring still in flight
// from an earlier lap of the pool is waited for first.
func (p *Pool) Begin() (*Ring, error) {
	if p.ring != nil {
		return p.ring, nil
	}
	r := p.rings[p.idx]
	if r.state == Submitted {
		if err := p.WaitForBuffer(r); err != nil {
			return nil, errors.Annotatef(err, "waiting for ring %d", r.slot)
		}
		r.reset()
	}
	r.state = Recording
	p.ring = r
	return r, nil
}

// MarkDirty notes that the current ring holds commands to be flushed at the
// next Flush. It does no I/O. Without a ring opened by Begin there is
// nothing to flush and the call is ignored.
func (p *Pool) MarkDirty() {
	if p.ring != nil {
		p.fire = true
	}
}

// Flush submits the current ring when it has pending commands and moves on
// to the next ring. On failure the recorded commands are dropped and the
// same ring is reused.
func (p *Pool) Flush() error {
	if !p.fire {
		return nil
	}
	r := p.ring
	p.fire = false
	if r == nil || len(r.cmds) == 0 {
		return nil
	}

	ts, err := p.sub.Submit(r.slot, r.cmds)
	if err != nil {
		r.reset()
		p.ring = nil
		return errors.Annotatef(err, "submitting ring %d", r.slot)
	}
	if p.started && before(ts, p.timestamp) {
		r.reset()
		p.ring = nil
		return errors.Errorf("submission timestamp went backwards: %d after %d", ts, p.timestamp)
	}

	if !p.started {
		// Whatever the GPU ran before our first submission is not ours.
		p.completed = ts - 1
		p.started = true
	}
	p.timestamp = ts
	r.fence = Fence{timestamp: ts, submitted: true}
	for _, f := range r.refs {
		*f = r.fence
	}
	r.state = Submitted
	p.ring = nil
	p.idx = (p.idx + 1) % Size
	return nil
}

// Retired reports whether the GPU is known to be done with b. It never
// blocks. When the submitter is a Reader the GPU is asked for its retired
// timestamp.
func (p *Pool) Retired(b Fenced) bool {
	f := b.Fence()
	if !f.submitted || !before(p.completed, f.timestamp) {
		return true
	}
	if rd, ok := p.sub.(Reader); ok {
		if ts, err := rd.ReadTimestamp(); err == nil {
			p.retire(ts)
		}
	}
	return !before(p.completed, f.timestamp)
}

func (p *Pool) retire(ts uint32) {
	if before(p.completed, ts) {
		p.completed = ts
	}
}

// before compares 32 bit timestamps, which wrap around.
func before(a, b uint32) bool {
	return int32(a-b) < 0
}

// WaitForBuffer blocks until the GPU has finished every submission that
// referenced b. There is no timeout.
func (p *Pool) WaitForBuffer(b Fenced) error {
	if p.Retired(b) {
		return nil
	}
	ts := b.Fence().timestamp
	if err := p.sub.WaitTimestamp(ts); err != nil {
		return errors.Annotatef(err, "waiting for timestamp %d", ts)
	}
	p.retire(ts)
	return nil
}

// Finish flushes pending commands and waits until the GPU is idle.
func (p *Pool) Finish() error {
	if err := p.Flush(); err != nil {
		return err
	}
	if !before(p.completed, p.timestamp) {
		return nil
	}
	if err := p.sub.WaitTimestamp(p.timestamp); err != nil {
		return errors.Annotatef(err, "waiting for timestamp %d", p.timestamp)
	}
	p.completed = p.timestamp
	return nil
}
