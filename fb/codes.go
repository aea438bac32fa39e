package fb

import (
	"unsafe"

	"github.com/NeowayLabs/msm/ioctl"
)

// Legacy fbdev requests predate the _IOC encoding.
const (
	IOGetVScreeninfo uintptr = 0x4600
	IOPutVScreeninfo uintptr = 0x4601
	IOGetFScreeninfo uintptr = 0x4602
	IOPanDisplay     uintptr = 0x4606
	IOBlank          uintptr = 0x4611
)

const (
	BlankUnblank   = 0
	BlankNormal    = 1
	BlankPowerdown = 4

	ActivateNow   = 0
	ActivateForce = 128
)

// MSMFB_IOCTL_MAGIC
const msmfbMagic = 'm'

var (
	// MSMFB_RESUME_SW_REFRESHER _IOW(MSMFB_IOCTL_MAGIC, 129, unsigned int)
	IOResumeSWRefresher = uintptr(ioctl.IOW(msmfbMagic, 129, unsafe.Sizeof(uint32(0))))

	// MSMFB_CURSOR _IOW(MSMFB_IOCTL_MAGIC, 130, struct fb_cursor)
	IOCursor = uintptr(ioctl.IOW(msmfbMagic, 130, unsafe.Sizeof(sysCursor{})))
)
