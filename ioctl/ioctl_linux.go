package ioctl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// To decode a hex IOCTL code:
//
// Most architectures use this generic format, but check
// include/ARCH/ioctl.h for specifics, e.g. powerpc
// uses 3 bits to encode read/write and 13 bits for size.
//
//  bits    meaning
//  31-30	00 - no parameters: uses _IO macro
// 	10 - read: _IOR
// 	01 - write: _IOW
// 	11 - read/write: _IOWR
//
//  29-16	size of arguments
//
//  15-8	ascii character supposedly
// 	unique to each driver
//
//  7-0	function #
//
// So for example 0x82187201 is a read with arg length of 0x218,
// character 'r' function 1. Grepping the source reveals this is:
//
// #define VFAT_IOCTL_READDIR_BOTH         _IOR('r', 1, struct dirent [2])
// source: https://www.kernel.org/doc/Documentation/ioctl/ioctl-decoding.txt

const (
	None  = uint8(0x0)
	Write = uint8(0x1)
	Read  = uint8(0x2)

	maxSize = 1<<14 - 1
)

func NewCode(typ uint8, sz uint16, uniq, fn uint8) uint32 {
	var code uint32
	if typ > Write|Read {
		panic(fmt.Errorf("invalid ioctl code value: %d", typ))
	}

	if sz > maxSize {
		panic(fmt.Errorf("invalid ioctl size value: %d", sz))
	}

	code = code | (uint32(typ) << 30)
	code = code | (uint32(sz) << 16) // sz has 14bits
	code = code | (uint32(uniq) << 8)
	code = code | uint32(fn)
	return code
}

// IO is the _IO macro: a request without argument.
func IO(uniq, fn uint8) uint32 { return NewCode(None, 0, uniq, fn) }

// IOR is the _IOR macro: the kernel writes sz bytes back.
func IOR(uniq, fn uint8, sz uintptr) uint32 { return NewCode(Read, uint16(sz), uniq, fn) }

// IOW is the _IOW macro: the kernel reads sz bytes.
func IOW(uniq, fn uint8, sz uintptr) uint32 { return NewCode(Write, uint16(sz), uniq, fn) }

// IOWR is the _IOWR macro.
func IOWR(uniq, fn uint8, sz uintptr) uint32 { return NewCode(Read|Write, uint16(sz), uniq, fn) }

// Do issues the request cmd on fd. The returned error is a unix.Errno so
// callers can compare against unix.EINVAL and friends.
func Do(fd, cmd, ptr uintptr) error {
	_, _, errcode := unix.Syscall(unix.SYS_IOCTL, fd, cmd, ptr)
	if errcode != 0 {
		return errcode
	}
	return nil
}
