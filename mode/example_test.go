package mode_test

import (
	"fmt"

	"github.com/NeowayLabs/msm/mode"
)

func ExampleDerive() {
	m := mode.Derive(mode.Timings{
		Width: 480, Height: 800,
		LeftMargin: 10, RightMargin: 20, HSyncLen: 5,
		UpperMargin: 3, LowerMargin: 4, VSyncLen: 2,
	}, 60)
	fmt.Println(m)
	fmt.Printf("%.2f Hz\n", m.VRefresh())
	// Output:
	// "480x800" 24.998 MHz 480 500 505 515 800 804 806 809
	// 60.00 Hz
}
