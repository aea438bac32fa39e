// Package gpu talks to the Adreno GPU: buffer objects allocated through
// the DRM device and command submission through the KGSL device node.
package gpu

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/msm/ioctl"
)

// DefaultPipePath is the 3D core of the first Adreno GPU.
const DefaultPipePath = "/dev/kgsl-3d0"

const (
	kgslIOCType = 0x09

	// Size of the indirect buffer backing each ring slot.
	ibSize = 64 * 1024

	// KGSL_MEMFLAGS_GPUREADONLY
	memGPUReadOnly = 0x01000000

	// WAITTIMESTAMP takes a timeout in milliseconds; a wait that times out
	// is simply reissued.
	waitSliceMS = 1000
)

type (
	sysIBDesc struct {
		gpuaddr    uintptr
		hostptr    uintptr
		sizedwords uint32
		ctrl       uint32
	}

	sysIssueIBCmds struct {
		drawctxtID uint32
		ibdescAddr uintptr
		numibs     uint32
		timestamp  uint32
		flags      uint32
	}

	sysWaitTimestamp struct {
		timestamp uint32
		timeout   uint32
	}

	sysReadTimestamp struct {
		typ       uint32
		timestamp uint32
	}

	sysDrawctxtCreate struct {
		flags      uint32
		drawctxtID uint32
	}

	sysDrawctxtDestroy struct {
		drawctxtID uint32
	}

	sysGpumemAlloc struct {
		gpuaddr uintptr
		size    uintptr
		flags   uint32
	}

	sysSharedmemFree struct {
		gpuaddr uintptr
	}

	// gpumem is GPU memory allocated on the KGSL device and mapped into the
	// process.
	gpumem struct {
		gpuaddr uintptr
		data    gommap.MMap
	}

	// Pipe submits command streams to one KGSL device. It satisfies
	// ring.Submitter.
	Pipe struct {
		file  *os.File
		path  string
		ctxID uint32
		ibs   map[int]*gpumem

		// The kernel follows ibdescAddr, so the descriptor must not live
		// on a goroutine stack.
		desc  sysIBDesc
		issue sysIssueIBCmds
	}
)

// Timestamp types of READTIMESTAMP.
const (
	TimestampConsumed = 1
	TimestampRetired  = 2
)

var (
	IOCTLWaitTimestamp   = ioctl.IOW(kgslIOCType, 0x06, unsafe.Sizeof(sysWaitTimestamp{}))
	IOCTLIssueIBCmds     = ioctl.IOWR(kgslIOCType, 0x10, unsafe.Sizeof(sysIssueIBCmds{}))
	IOCTLReadTimestamp   = ioctl.IOWR(kgslIOCType, 0x11, unsafe.Sizeof(sysReadTimestamp{}))
	IOCTLDrawctxtCreate  = ioctl.IOWR(kgslIOCType, 0x13, unsafe.Sizeof(sysDrawctxtCreate{}))
	IOCTLDrawctxtDestroy = ioctl.IOW(kgslIOCType, 0x14, unsafe.Sizeof(sysDrawctxtDestroy{}))
	IOCTLSharedmemFree   = ioctl.IOW(kgslIOCType, 0x21, unsafe.Sizeof(sysSharedmemFree{}))
	IOCTLGpumemAlloc     = ioctl.IOWR(kgslIOCType, 0x2f, unsafe.Sizeof(sysGpumemAlloc{}))
)

// OpenPipe opens the KGSL device at path and creates a draw context on it.
func OpenPipe(path string) (*Pipe, error) {
	if path == "" {
		path = DefaultPipePath
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", path)
	}
	p := &Pipe{file: file, path: path, ibs: make(map[int]*gpumem)}

	req := &sysDrawctxtCreate{}
	if err := p.ioctl(IOCTLDrawctxtCreate, unsafe.Pointer(req)); err != nil {
		file.Close()
		return nil, errors.Annotate(err, "IOCTL_KGSL_DRAWCTXT_CREATE")
	}
	p.ctxID = req.drawctxtID
	return p, nil
}

func (p *Pipe) ioctl(code uint32, arg unsafe.Pointer) error {
	return ioctl.Do(p.file.Fd(), uintptr(code), uintptr(arg))
}

func (p *Pipe) Path() string { return p.path }

func (p *Pipe) alloc(size int) (*gpumem, error) {
	req := &sysGpumemAlloc{size: uintptr(size), flags: memGPUReadOnly}
	if err := p.ioctl(IOCTLGpumemAlloc, unsafe.Pointer(req)); err != nil {
		return nil, errors.Annotate(err, "IOCTL_KGSL_GPUMEM_ALLOC")
	}
	// KGSL maps an allocation at the offset equal to its GPU address.
	data, err := gommap.MapAt(0, p.file.Fd(), int64(req.gpuaddr), int64(size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		p.free(req.gpuaddr)
		return nil, errors.Annotate(err, "mmap gpumem")
	}
	return &gpumem{gpuaddr: req.gpuaddr, data: data}, nil
}

func (p *Pipe) free(gpuaddr uintptr) error {
	return p.ioctl(IOCTLSharedmemFree, unsafe.Pointer(&sysSharedmemFree{gpuaddr}))
}

// Submit copies cmds into the indirect buffer of slot and queues it. The
// caller guarantees the previous submission of slot has retired.
func (p *Pipe) Submit(slot int, cmds []uint32) (uint32, error) {
	if len(cmds)*4 > ibSize {
		return 0, errors.NotValidf("command stream of %d words", len(cmds))
	}
	ib, ok := p.ibs[slot]
	if !ok {
		var err error
		ib, err = p.alloc(ibSize)
		if err != nil {
			return 0, err
		}
		p.ibs[slot] = ib
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&ib.data[0])), len(ib.data)/4)
	copy(words, cmds)

	req := p.issueRequest(ib, len(cmds))
	err := p.ioctl(IOCTLIssueIBCmds, unsafe.Pointer(req))
	runtime.KeepAlive(p)
	if err != nil {
		return 0, errors.Annotate(err, "IOCTL_KGSL_RINGBUFFER_ISSUEIBCMDS")
	}
	return req.timestamp, nil
}

// issueRequest fills the descriptor and request held by p for words
// commands in ib.
func (p *Pipe) issueRequest(ib *gpumem, words int) *sysIssueIBCmds {
	p.desc = sysIBDesc{
		gpuaddr:    ib.gpuaddr,
		hostptr:    uintptr(unsafe.Pointer(&ib.data[0])),
		sizedwords: uint32(words),
	}
	p.issue = sysIssueIBCmds{
		drawctxtID: p.ctxID,
		ibdescAddr: uintptr(unsafe.Pointer(&p.desc)),
		numibs:     1,
	}
	return &p.issue
}

// WaitTimestamp blocks until the GPU retires ts. It does not give up: a
// hung GPU blocks the caller forever.
func (p *Pipe) WaitTimestamp(ts uint32) error {
	for {
		req := &sysWaitTimestamp{timestamp: ts, timeout: waitSliceMS}
		err := p.ioctl(IOCTLWaitTimestamp, unsafe.Pointer(req))
		switch err {
		case nil:
			return nil
		case unix.ETIMEDOUT, unix.EINTR, unix.EAGAIN:
			continue
		}
		return errors.Annotatef(err, "IOCTL_KGSL_DEVICE_WAITTIMESTAMP(%d)", ts)
	}
}

// ReadTimestamp returns the last timestamp the GPU retired. It makes Pipe
// a ring.Reader.
func (p *Pipe) ReadTimestamp() (uint32, error) {
	req := &sysReadTimestamp{typ: TimestampRetired}
	if err := p.ioctl(IOCTLReadTimestamp, unsafe.Pointer(req)); err != nil {
		return 0, errors.Annotate(err, "IOCTL_KGSL_CMDSTREAM_READTIMESTAMP")
	}
	return req.timestamp, nil
}

func (p *Pipe) Close() error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil && err != nil {
			firstErr = err
		}
	}
	for slot, ib := range p.ibs {
		keep(errors.Annotate(ib.data.UnsafeUnmap(), "munmap gpumem"))
		keep(errors.Annotate(p.free(ib.gpuaddr), "IOCTL_KGSL_SHAREDMEM_FREE"))
		delete(p.ibs, slot)
	}
	keep(errors.Annotate(p.ioctl(IOCTLDrawctxtDestroy,
		unsafe.Pointer(&sysDrawctxtDestroy{p.ctxID})), "IOCTL_KGSL_DRAWCTXT_DESTROY"))
	keep(errors.Trace(p.file.Close()))
	return firstErr
}
