package simd

import (
	"os"
	"strings"
)

// ISA represents a SIMD instruction set architecture.
type ISA uint8

const (
	// Generic represents the portable Go kernels (no assembly).
	Generic ISA = iota
	// AVX2 represents x86-64 AVX2 (256-bit SIMD with FMA).
	AVX2
)

// String returns the string representation of an ISA.
func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case AVX2:
		return "avx2"
	default:
		return "unknown"
	}
}

// ParseISA parses a string into an ISA value.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return Generic, true
	case "avx2":
		return AVX2, true
	default:
		return Generic, false
	}
}

// Package-level state, initialized once at package init.
var (
	// activeISA is the selected SIMD implementation.
	activeISA ISA

	// hasOverride is true if VELOXDB_SIMD was set to a valid value.
	hasOverride bool

	// hasAVX2 is set by the amd64 init.
	hasAVX2 bool
)

// initCapabilities is called from platform-specific init functions
// after CPU features are detected.
func initCapabilities() {
	activeISA = selectBestISA()

	if override := os.Getenv("VELOXDB_SIMD"); override != "" {
		if isa, ok := ParseISA(override); ok && isISAAvailable(isa) {
			hasOverride = true
			activeISA = isa
		}
	}

	bindKernels(activeISA)
}

// isISAAvailable checks if an ISA is supported on this CPU.
func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case AVX2:
		return hasAVX2
	default:
		return false
	}
}

func selectBestISA() ISA {
	if hasAVX2 {
		return AVX2
	}
	return Generic
}

// ActiveISA returns the ISA backing the vectorized kernels.
func ActiveISA() ISA {
	return activeISA
}

// IsOverridden returns true if VELOXDB_SIMD was set.
func IsOverridden() bool {
	return hasOverride
}

// HasAVX2 returns true if x86-64 AVX2+FMA is available.
func HasAVX2() bool {
	return hasAVX2
}
