package persistence

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrUnalignedAccess is returned when a slice handed to the raw codec is
// not aligned for its element type.
var ErrUnalignedAccess = errors.New("unaligned memory access detected")

// nativeLittleEndian reports whether raw float32/uint32 memory already has
// the on-disk byte order. When false, the codec encodes element by element.
var nativeLittleEndian = isLittleEndian()

func isLittleEndian() bool {
	var test uint16 = 0x0001
	return *(*byte)(unsafe.Pointer(&test)) == 1
}

func validateAlignment[T float32 | uint32](s []T) error {
	if len(s) == 0 {
		return nil
	}
	ptr := uintptr(unsafe.Pointer(&s[0]))
	if ptr%4 != 0 {
		return fmt.Errorf("%w: slice at address 0x%x", ErrUnalignedAccess, ptr)
	}
	return nil
}

// bytesOf returns the raw bytes backing s. The caller must have checked
// nativeLittleEndian and alignment.
func bytesOf[T float32 | uint32](s []T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4) //nolint:gosec // 4-byte elements, alignment checked
}
