package pmm

import (
	"sync/atomic"

	"nodeos/kernel/mm"
)

const (
	// nilIndex terminates an arena-indexed list.
	nilIndex = int32(-1)

	// notOnList marks a descriptor whose frame is currently allocated (or
	// permanently reserved) and therefore not part of the free list.
	notOnList = int32(-2)
)

// PageInfo is the metadata descriptor for a single physical page frame. One
// descriptor exists per frame; descriptors never move and are linked to each
// other through arena indices rather than pointers so a stale link can never
// dangle outside the descriptor arena.
type PageInfo struct {
	// refCount is the number of live owners of the frame. A descriptor
	// with a zero refCount is eligible to return to the free list.
	refCount int32

	// shared is non-zero while the page is mapped by more than one owner.
	shared uint32

	// home is the remote reference this page materializes, or zero when
	// the page does not cache another node's memory.
	home RemoteRef

	// freeNext links the descriptor into the free list. It is only
	// meaningful while the frame is free; allocated frames carry the
	// notOnList marker which doubles as the double-free detector.
	freeNext int32

	// homeNext and homeList implement the per-bucket chains of pages that
	// cache copies originating from the same remote address. homeList is
	// the head stored on the descriptor acting as the bucket; homeNext
	// threads the members.
	homeNext int32
	homeList int32

	// frame is the descriptor's own frame number.
	frame mm.Frame
}

// Frame returns the physical frame number this descriptor describes.
func (pi *PageInfo) Frame() mm.Frame {
	return pi.frame
}

// RefCount returns the number of live owners of the frame.
func (pi *PageInfo) RefCount() int32 {
	return atomic.LoadInt32(&pi.refCount)
}

// IncRef registers an additional owner for the frame.
func (pi *PageInfo) IncRef() {
	atomic.AddInt32(&pi.refCount, 1)
}

// Home returns the remote reference attached to this page, or zero if the
// page is not a cached copy of remote memory.
func (pi *PageInfo) Home() RemoteRef {
	return pi.home
}

// Shared returns true while the page is mapped by more than one owner.
func (pi *PageInfo) Shared() bool {
	return atomic.LoadUint32(&pi.shared) != 0
}

// SetShared flags the page as being concurrently mapped by multiple owners.
func (pi *PageInfo) SetShared(shared bool) {
	if shared {
		atomic.StoreUint32(&pi.shared, 1)
		return
	}
	atomic.StoreUint32(&pi.shared, 0)
}
