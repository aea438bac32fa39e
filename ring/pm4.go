package ring

import "fmt"

// PM4 opcodes used by the driver.
const (
	OpNop         = 0x10
	OpWaitForIdle = 0x26
)

// Largest payload a packet header can describe.
const maxPayload = 0x4000

// Type0 is the header of a write of count consecutive registers starting
// at reg. count must be in [1, 0x4000].
func Type0(reg uint16, count int) uint32 {
	checkCount(count)
	return uint32(count-1)<<16 | uint32(reg)&0x7fff
}

// Type3 is the header of an opcode packet carrying count payload words.
// count must be in [1, 0x4000].
func Type3(op uint8, count int) uint32 {
	checkCount(count)
	return 3<<30 | uint32(count-1)<<16 | uint32(op)<<8
}

func checkCount(count int) {
	if count < 1 || count > maxPayload {
		panic(fmt.Sprintf("pm4: packet payload of %d words", count))
	}
}

// EmitReg writes vals to consecutive registers starting at reg. Nothing is
// emitted without values.
func (r *Ring) EmitReg(reg uint16, vals ...uint32) {
	if len(vals) == 0 {
		return
	}
	r.Emit(Type0(reg, len(vals)))
	r.Emit(vals...)
}

// EmitPacket emits opcode op with its payload. A packet carries at least
// one word, so an empty payload is sent as a single zero.
func (r *Ring) EmitPacket(op uint8, payload ...uint32) {
	if len(payload) == 0 {
		payload = []uint32{0}
	}
	r.Emit(Type3(op, len(payload)))
	r.Emit(payload...)
}

// EmitNop pads the ring with a NOP packet of n payload words, at least one.
func (r *Ring) EmitNop(n int) {
	if n < 1 {
		n = 1
	}
	r.EmitPacket(OpNop, make([]uint32, n)...)
}
