package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
)

// fakeGPU completes submissions only when told to, possibly out of order.
type fakeGPU struct {
	mu        sync.Mutex
	cond      *sync.Cond
	next      uint32
	completed uint32
	submits   [][]uint32
	slots     []int
	failNext  bool
	waits     []uint32
}

func newFakeGPU() *fakeGPU {
	g := &fakeGPU{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *fakeGPU) Submit(slot int, cmds []uint32) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext {
		g.failNext = false
		return 0, errors.New("ISSUEIBCMDS: device lost")
	}
	g.next++
	g.submits = append(g.submits, append([]uint32(nil), cmds...))
	g.slots = append(g.slots, slot)
	return g.next, nil
}

func (g *fakeGPU) WaitTimestamp(ts uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waits = append(g.waits, ts)
	for g.completed < ts {
		g.cond.Wait()
	}
	return nil
}

// signal reports ts as reached. Signals may arrive in any order; the
// highest one wins.
func (g *fakeGPU) signal(ts uint32) {
	g.mu.Lock()
	if ts > g.completed {
		g.completed = ts
	}
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *fakeGPU) retireAll() {
	g.mu.Lock()
	ts := g.next
	g.mu.Unlock()
	g.signal(ts)
}

func record(t *testing.T, p *Pool, words ...uint32) *Ring {
	t.Helper()
	r, err := p.Begin()
	if err != nil {
		t.Fatal(err)
	}
	r.Emit(words...)
	p.MarkDirty()
	return r
}

func TestFlushAdvancesIndex(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	for n := 1; n <= 3*Size+5; n++ {
		g.retireAll()
		record(t, p, uint32(n))
		if err := p.Flush(); err != nil {
			t.Fatal(err)
		}
		if p.Index() != n%Size {
			t.Fatalf("after %d flushes expected index %d but got %d", n, n%Size, p.Index())
		}
		if p.Timestamp() != uint32(n) {
			t.Fatalf("expected timestamp %d but got %d", n, p.Timestamp())
		}
	}
	for i, slot := range g.slots {
		if slot != i%Size {
			t.Errorf("submission %d went to slot %d", i, slot)
		}
	}
}

func TestFlushWithoutDirtyIsNoop(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	r, err := p.Begin()
	if err != nil {
		t.Fatal(err)
	}
	r.Emit(1, 2, 3)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(g.submits) != 0 || p.Index() != 0 {
		t.Errorf("flush without pending commands must not submit")
	}
	if r.State() != Recording {
		t.Errorf("expected ring to keep recording but it is %s", r.State())
	}

	p.MarkDirty()
	if !p.Pending() {
		t.Errorf("MarkDirty must set the pending flag")
	}
	if len(g.submits) != 0 {
		t.Errorf("MarkDirty must not submit")
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if p.Pending() {
		t.Errorf("Flush must clear the pending flag")
	}
	if len(g.submits) != 1 || len(g.submits[0]) != 3 {
		t.Fatalf("expected one submission of 3 words, got %v", g.submits)
	}
	if r.State() != Submitted {
		t.Errorf("expected submitted ring but it is %s", r.State())
	}
}

func TestBeginCoalesces(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	a := record(t, p, 1)
	b := record(t, p, 2)
	if a != b {
		t.Fatalf("Begin before Flush must return the ring being recorded")
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(g.submits) != 1 || len(g.submits[0]) != 2 {
		t.Errorf("expected a single coalesced submission, got %v", g.submits)
	}
}

func TestSubmitFailureDropsFrame(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	record(t, p, 1)
	g.failNext = true
	if err := p.Flush(); err == nil {
		t.Fatal("expected submission error")
	}
	if p.Index() != 0 || p.Pending() || p.Current() != nil {
		t.Errorf("failed flush must leave the pool on the same ring")
	}
	if p.Ring(0).State() != Idle || p.Ring(0).Len() != 0 {
		t.Errorf("failed flush must drop the recorded commands")
	}

	record(t, p, 2)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if p.Index() != 1 || p.Timestamp() != 1 {
		t.Errorf("next frame must be unaffected: index %d timestamp %d", p.Index(), p.Timestamp())
	}
}

func TestWaitForBufferBlocks(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	var buf Fence
	if !p.Retired(&buf) {
		t.Fatal("a never submitted buffer is retired")
	}

	record(t, p, 1)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	r := record(t, p, 2)
	r.Reference(&buf)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	record(t, p, 3)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if ts, ok := buf.Timestamp(); !ok || ts != 2 {
		t.Fatalf("expected buffer fenced at 2 but got %d (%v)", ts, ok)
	}
	if p.Retired(&buf) {
		t.Fatal("buffer must not be retired before the GPU signals")
	}

	done := make(chan error)
	go func() { done <- p.WaitForBuffer(&buf) }()

	// Out of order: the GPU reports 1 first, which is not enough.
	g.signal(1)
	select {
	case <-done:
		t.Fatal("wait returned before timestamp 2 was reached")
	case <-time.After(50 * time.Millisecond):
	}

	g.signal(3)
	g.signal(2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after the timestamp was reached")
	}
	if !p.Retired(&buf) {
		t.Errorf("buffer must be retired once waited for")
	}
	if p.Completed() < 2 {
		t.Errorf("expected completed timestamp >= 2 but got %d", p.Completed())
	}
}

func TestBeginWaitsForRingReuse(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	for i := 0; i < Size; i++ {
		record(t, p, uint32(i))
		if err := p.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if p.Index() != 0 {
		t.Fatalf("expected wrap-around to slot 0 but got %d", p.Index())
	}

	began := make(chan *Ring)
	go func() {
		r, err := p.Begin()
		if err != nil {
			t.Error(err)
		}
		began <- r
	}()

	select {
	case <-began:
		t.Fatal("ring 0 reused while still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.signal(1)
	select {
	case r := <-began:
		if r.Slot() != 0 || r.Len() != 0 || r.State() != Recording {
			t.Errorf("unexpected reused ring: slot %d len %d state %s", r.Slot(), r.Len(), r.State())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Begin did not return after ring 0 retired")
	}
}

func TestContextBuffers(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	var ctx [ContextBuffers]Fence
	for i := range ctx {
		p.SetContextBuffer(i, &ctx[i])
	}
	r := record(t, p, 1)
	for i := 0; i < ContextBuffers; i++ {
		r.Reference(p.ContextBuffer(i))
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	for i := range ctx {
		if p.Retired(p.ContextBuffer(i)) {
			t.Errorf("context buffer %d retired before completion", i)
		}
	}
	g.retireAll()
	if err := p.Finish(); err != nil {
		t.Fatal(err)
	}
	for i := range ctx {
		if !p.Retired(p.ContextBuffer(i)) {
			t.Errorf("context buffer %d not retired after Finish", i)
		}
	}
}

func TestTimestampRegression(t *testing.T) {
	p := NewPool(&stuckGPU{ts: []uint32{5, 3}})
	record(t, p, 1)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	record(t, p, 2)
	if err := p.Flush(); err == nil {
		t.Fatal("expected error for a timestamp going backwards")
	}
	if p.Timestamp() != 5 || p.Index() != 1 {
		t.Errorf("timestamp must stay non-decreasing: %d at index %d", p.Timestamp(), p.Index())
	}
}

type stuckGPU struct {
	ts []uint32
}

func (s *stuckGPU) Submit(int, []uint32) (uint32, error) {
	ts := s.ts[0]
	s.ts = s.ts[1:]
	return ts, nil
}

func (s *stuckGPU) WaitTimestamp(uint32) error { return nil }

func TestPackets(t *testing.T) {
	for _, tc := range []struct {
		name          string
		got, expected uint32
	}{
		{"nop", Type3(OpNop, 1), 0xc0001000},
		{"wait", Type3(OpWaitForIdle, 1), 0xc0002600},
		{"type0", Type0(0x2000, 2), 0x00012000},
	} {
		if tc.got != tc.expected {
			t.Errorf("%s: expected %#08x but got %#08x", tc.name, tc.expected, tc.got)
		}
	}

	r := &Ring{}
	r.EmitReg(0x2000, 7, 8)
	r.EmitNop(2)
	expected := []uint32{0x00012000, 7, 8, 0xc0011000, 0, 0}
	if len(r.Words()) != len(expected) {
		t.Fatalf("expected %v but got %v", expected, r.Words())
	}
	for i := range expected {
		if r.Words()[i] != expected[i] {
			t.Errorf("word %d: expected %#x but got %#x", i, expected[i], r.Words()[i])
		}
	}
}

func TestTimestampWrap(t *testing.T) {
	g := &stuckGPU{ts: []uint32{0xfffffffe, 0xffffffff, 0, 1}}
	p := NewPool(g)

	var old, wrapped Fence
	for i := 0; i < 4; i++ {
		r := record(t, p, uint32(i))
		switch i {
		case 1:
			r.Reference(&old)
		case 2:
			r.Reference(&wrapped)
		}
		if err := p.Flush(); err != nil {
			t.Fatalf("flush %d: %s", i, err)
		}
	}
	if p.Index() != 4 || p.Timestamp() != 1 {
		t.Fatalf("expected index 4 at timestamp 1 but got %d at %d", p.Index(), p.Timestamp())
	}
	if p.Retired(&old) || p.Retired(&wrapped) {
		t.Fatal("buffers must be busy before the GPU signals")
	}

	if err := p.WaitForBuffer(&old); err != nil {
		t.Fatal(err)
	}
	if !p.Retired(&old) || p.Retired(&wrapped) {
		t.Errorf("only the buffer before the wrap is retired, completed %#x", p.Completed())
	}
	if err := p.Finish(); err != nil {
		t.Fatal(err)
	}
	if !p.Retired(&wrapped) || p.Completed() != 1 {
		t.Errorf("expected everything retired at 1 but completed is %#x", p.Completed())
	}
}

// readerGPU reports its retired timestamp without blocking.
type readerGPU struct {
	stuckGPU
	retired uint32
	reads   int
}

func (g *readerGPU) ReadTimestamp() (uint32, error) {
	g.reads++
	return g.retired, nil
}

func TestRetiredReadsTimestamp(t *testing.T) {
	g := &readerGPU{stuckGPU: stuckGPU{ts: []uint32{10, 11}}, retired: 9}
	p := NewPool(g)

	var buf Fence
	r := record(t, p, 1)
	r.Reference(&buf)
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if p.Retired(&buf) {
		t.Fatal("buffer retired before the GPU reached its timestamp")
	}
	g.retired = 10
	if !p.Retired(&buf) {
		t.Fatal("buffer must be retired once the GPU reports its timestamp")
	}
	if p.Completed() != 10 || g.reads != 2 {
		t.Errorf("expected completed 10 after 2 reads, got %d after %d", p.Completed(), g.reads)
	}
	if !p.Retired(&buf) || g.reads != 2 {
		t.Errorf("a known retired buffer must not query the GPU")
	}

	g.retired = 5
	p.Retired(&Fence{timestamp: 11, submitted: true})
	if p.Completed() != 10 {
		t.Errorf("completed timestamp must not go backwards, got %d", p.Completed())
	}
}

func TestMarkDirtyWithoutBegin(t *testing.T) {
	g := newFakeGPU()
	p := NewPool(g)

	p.MarkDirty()
	if p.Pending() {
		t.Fatal("nothing is pending without a ring being recorded")
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(g.submits) != 0 || p.Index() != 0 {
		t.Errorf("expected no submission, got %d at index %d", len(g.submits), p.Index())
	}
}

func TestEmptyPackets(t *testing.T) {
	r := &Ring{}
	r.EmitReg(0x2000)
	if r.Len() != 0 {
		t.Fatalf("a register write without values must emit nothing, got %v", r.Words())
	}
	r.EmitPacket(OpWaitForIdle)
	r.EmitNop(0)
	expected := []uint32{0xc0002600, 0, 0xc0001000, 0}
	if len(r.Words()) != len(expected) {
		t.Fatalf("expected %v but got %v", expected, r.Words())
	}
	for i := range expected {
		if r.Words()[i] != expected[i] {
			t.Errorf("word %d: expected %#x but got %#x", i, expected[i], r.Words()[i])
		}
	}

	for _, count := range []int{0, -1, maxPayload + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected a panic for a payload of %d words", count)
				}
			}()
			Type3(OpNop, count)
		}()
	}
}
