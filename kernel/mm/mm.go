// Package mm defines the basic types and constants used by the kernel's
// memory management subsystems: physical frame numbers, memory sizes and
// frame ranges.
package mm

import "math"

const (
	// PageShift is equal to log2(PageSize). This constant is used when we
	// need to convert a physical address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// RoundDown rounds the size down to a multiple of boundary; boundary must
// be a power of two.
func (s Size) RoundDown(boundary uintptr) Size {
	return s & ^Size(boundary-1)
}

// Pages returns the number of whole pages spanned by the size.
func (s Size) Pages() uint64 {
	return uint64(s) >> PageShift
}

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by page allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address where this Frame begins.
func (f Frame) Address() uintptr {
	return uintptr(f) << PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down to the frame
// that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// FrameRange describes a contiguous, inclusive range of physical frames.
type FrameRange struct {
	Start, End Frame
}

// Contains returns true if the range contains the given frame.
func (r FrameRange) Contains(f Frame) bool {
	return f >= r.Start && f <= r.End
}

// Count returns the number of frames in the range.
func (r FrameRange) Count() uint64 {
	return uint64(r.End-r.Start) + 1
}

// RangeForBytes returns the FrameRange spanned by size bytes starting at the
// given physical address. The start address is rounded down and the end
// address rounded up to page boundaries.
func RangeForBytes(physAddr uintptr, size Size) FrameRange {
	return FrameRange{
		Start: FrameFromAddress(physAddr),
		End:   FrameFromAddress(physAddr + uintptr(size) - 1),
	}
}
