// Package mode derives display timings for fixed panels from the values
// the framebuffer driver reports.
package mode

import (
	"fmt"
	"math"
	"math/bits"
)

// Type flags of a mode.
const (
	Builtin   = 1 << 0
	Preferred = 1 << 3
)

const (
	// DefaultRefresh is used when no valid refresh target is configured.
	DefaultRefresh = 60

	MinRefresh = 1
	MaxRefresh = 119
)

type (
	// Timings are the raw panel values, as found in fb_var_screeninfo.
	// Left/upper margins follow the sync pulse, right/lower margins follow
	// the visible area.
	Timings struct {
		Width, Height uint32

		LeftMargin, RightMargin  uint32
		UpperMargin, LowerMargin uint32
		HSyncLen, VSyncLen       uint32
	}

	// Mode is a complete timing mode. Clock is in kHz.
	Mode struct {
		Name  string
		Clock int64
		Type  uint32

		HDisplay, HSyncStart, HSyncEnd, HTotal int64
		VDisplay, VSyncStart, VSyncEnd, VTotal int64

		next, prev *Mode
	}
)

// ValidRefresh reports whether hz is an acceptable refresh target.
func ValidRefresh(hz int) bool {
	return hz >= MinRefresh && hz <= MaxRefresh
}

// Refresh returns hz when it is valid and DefaultRefresh otherwise.
func Refresh(hz int) int {
	if !ValidRefresh(hz) {
		return DefaultRefresh
	}
	return hz
}

// Derive builds the only mode a fixed panel offers. Zero margins and sync
// lengths are legitimate and are used as reported.
func Derive(t Timings, refresh int) *Mode {
	refresh = Refresh(refresh)

	m := &Mode{
		Name: fmt.Sprintf("%dx%d", t.Width, t.Height),
		Type: Builtin | Preferred,

		HDisplay: int64(t.Width),
		VDisplay: int64(t.Height),
	}

	m.HSyncStart = m.HDisplay + int64(t.RightMargin)
	m.HSyncEnd = m.HSyncStart + int64(t.HSyncLen)
	m.HTotal = m.HSyncEnd + int64(t.LeftMargin)

	m.VSyncStart = m.VDisplay + int64(t.LowerMargin)
	m.VSyncEnd = m.VSyncStart + int64(t.VSyncLen)
	m.VTotal = m.VSyncEnd + int64(t.UpperMargin)

	m.Clock = clock(refresh, m.HTotal, m.VTotal)

	m.next = m
	m.prev = m
	return m
}

// clock returns refresh*htotal*vtotal/1000 in kHz. The product is taken in
// 128 bits; a result beyond int64 saturates.
func clock(refresh int, htotal, vtotal int64) int64 {
	hi, lo := bits.Mul64(uint64(refresh)*uint64(htotal), uint64(vtotal))
	if hi >= 1000 {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, 1000)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// Next returns the following mode of the list. A derived mode is a list of
// its own.
func (m *Mode) Next() *Mode { return m.next }

func (m *Mode) Prev() *Mode { return m.prev }

func (m *Mode) IsPreferred() bool { return m.Type&Preferred != 0 }

func (m *Mode) IsBuiltin() bool { return m.Type&Builtin != 0 }

// VRefresh returns the vertical refresh in Hz implied by the clock.
func (m *Mode) VRefresh() float64 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	return float64(m.Clock) * 1000 / float64(m.HTotal*m.VTotal)
}

func (m *Mode) String() string {
	return fmt.Sprintf("%q %d.%03d MHz %d %d %d %d %d %d %d %d",
		m.Name, m.Clock/1000, m.Clock%1000,
		m.HDisplay, m.HSyncStart, m.HSyncEnd, m.HTotal,
		m.VDisplay, m.VSyncStart, m.VSyncEnd, m.VTotal)
}
