// Package pmm implements the physical page metadata store: a fixed arena of
// per-frame descriptors threaded into a free list for allocation and into
// per-bucket home chains that locate the local copies of remote pages.
//
// The store is constructed exactly once during boot by the bootstrap
// processor; every other processor only operates on the constructed instance.
// Allocation and remote-reference tracking use two separate spinlocks since
// the two concerns never need to be atomic with respect to each other.
package pmm

import (
	"sync/atomic"

	"nodeos/kernel"
	"nodeos/kernel/mm"
	"nodeos/kernel/sync"
)

// DefaultMaxNodes is the cluster size assumed when Config does not specify
// one.
const DefaultMaxNodes = 16

var (
	// ErrNoMemory is returned by AllocPage when the free list is empty.
	// Callers are expected to recover (defer, reclaim or report upwards);
	// the allocator itself never retries.
	ErrNoMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	errBadConfig = &kernel.Error{Module: "pmm", Message: "invalid page store configuration"}

	// The errors below indicate protocol violations by a calling layer.
	// They are raised via panic: continuing after any of them risks
	// silently corrupting page sharing state.
	errFreeWithRefs = &kernel.Error{Module: "pmm", Message: "freeing a page with live references"}
	errFreeTracked  = &kernel.Error{Module: "pmm", Message: "freeing a page still tracked by a remote reference"}
	errFreeReserved = &kernel.Error{Module: "pmm", Message: "freeing a reserved page"}
	errDoubleFree   = &kernel.Error{Module: "pmm", Message: "page is already on the free list"}
	errBadNode      = &kernel.Error{Module: "pmm", Message: "remote reference names an invalid node"}
	errBadBucket    = &kernel.Error{Module: "pmm", Message: "remote reference maps outside the local frame range"}
	errTrackPinned  = &kernel.Error{Module: "pmm", Message: "tracking a reserved or pinned page"}
	errDupTrack     = &kernel.Error{Module: "pmm", Message: "remote reference is already tracked"}
	errHomeCorrupt  = &kernel.Error{Module: "pmm", Message: "home bucket chain is corrupted"}
)

// Config describes the physical memory layout the page store manages.
type Config struct {
	// TotalPages is the number of frames covered by the descriptor arena,
	// including unusable I/O holes (which must appear in Reserved so they
	// never join the free list).
	TotalPages uint64

	// Reserved lists the frame ranges that are pinned at boot and never
	// participate in allocation: the kernel image, the descriptor arena's
	// own backing memory and any I/O holes. Frames 0 and 1 are always
	// reserved and need not be listed.
	Reserved []mm.FrameRange

	// MaxNodes is the number of nodes in the cluster; remote references
	// naming a node outside [1, MaxNodes] are rejected as protocol
	// violations. Defaults to DefaultMaxNodes.
	MaxNodes uint8

	// BucketFor selects the home bucket for a remote reference. Defaults
	// to IdentityBuckets.
	BucketFor BucketFn

	// Backed allocates a byte arena for the page contents so that callers
	// (and the startup self-check) can access frame memory through
	// PageBytes. Unbacked stores only manage metadata.
	Backed bool
}

// Store owns the page descriptor arena, the free list threaded through it and
// the home bucket chains used to locate cached copies of remote pages.
type Store struct {
	pages []PageInfo
	mem   []byte

	totalPages    uint64
	reservedCount uint64
	reserved      []mm.FrameRange

	maxNodes  uint8
	bucketFor BucketFn

	// freeLock guards freeHead, freeCount and every freeNext link.
	freeLock  sync.Spinlock
	freeHead  int32
	freeCount uint64

	// homeLock guards home, homeNext and homeList on all descriptors.
	homeLock sync.Spinlock
}

// NewStore builds the descriptor arena for cfg and threads every frame that
// is not reserved onto the free list in ascending physical address order.
// It must be called exactly once, on the bootstrap processor, before any
// other processor touches the memory subsystem.
func NewStore(cfg Config) (*Store, *kernel.Error) {
	if cfg.TotalPages < 4 || cfg.TotalPages > uint64(^uint32(0)>>1) {
		return nil, errBadConfig
	}

	for _, r := range cfg.Reserved {
		if r.Start > r.End || uint64(r.End) >= cfg.TotalPages {
			return nil, errBadConfig
		}
	}

	s := &Store{
		pages:      make([]PageInfo, cfg.TotalPages),
		totalPages: cfg.TotalPages,
		reserved:   cfg.Reserved,
		maxNodes:   cfg.MaxNodes,
		bucketFor:  cfg.BucketFor,
		freeHead:   nilIndex,
	}

	if s.maxNodes == 0 {
		s.maxNodes = DefaultMaxNodes
	}
	if s.bucketFor == nil {
		s.bucketFor = IdentityBuckets
	}
	if cfg.Backed {
		s.mem = make([]byte, uintptr(cfg.TotalPages)*mm.PageSize)
	}

	// Thread the free list through the non-reserved descriptors keeping
	// ascending frame order.
	tail := &s.freeHead
	for i := range s.pages {
		pi := &s.pages[i]
		pi.frame = mm.Frame(i)
		pi.freeNext = notOnList
		pi.homeNext = nilIndex
		pi.homeList = nilIndex

		if s.isReserved(pi.frame) {
			continue
		}

		*tail = int32(i)
		tail = &pi.freeNext
		s.freeCount++
	}
	*tail = nilIndex

	s.reservedCount = s.totalPages - s.freeCount
	return s, nil
}

// isReserved returns true for frames whose lifecycle is pinned at boot.
// Frames 0 and 1 are unconditionally reserved.
func (s *Store) isReserved(f mm.Frame) bool {
	if f <= 1 {
		return true
	}
	for _, r := range s.reserved {
		if r.Contains(f) {
			return true
		}
	}
	return false
}

// AllocPage removes and returns the head of the free list. The page contents
// are not zeroed and the reference count is not incremented; both are the
// caller's responsibility. The only postcondition is that the returned frame
// is no longer on the free list.
func (s *Store) AllocPage() (*PageInfo, *kernel.Error) {
	s.freeLock.Acquire()
	head := s.freeHead
	if head == nilIndex {
		s.freeLock.Release()
		return nil, ErrNoMemory
	}

	pi := &s.pages[head]
	s.freeHead = pi.freeNext
	pi.freeNext = notOnList
	pi.home = 0
	atomic.StoreUint32(&pi.shared, 0)
	s.freeCount--
	s.freeLock.Release()

	return pi, nil
}

// FreePage pushes the descriptor back onto the head of the free list. The
// page must have no live owners and no remote reference attached; violating
// either precondition indicates a bug in the calling layer and panics.
func (s *Store) FreePage(pi *PageInfo) {
	if pi.RefCount() != 0 {
		panic(errFreeWithRefs)
	}
	if pi.home != 0 {
		panic(errFreeTracked)
	}
	if s.isReserved(pi.frame) {
		panic(errFreeReserved)
	}

	s.freeLock.Acquire()
	if pi.freeNext != notOnList {
		s.freeLock.Release()
		panic(errDoubleFree)
	}
	pi.freeNext = s.freeHead
	s.freeHead = int32(pi.frame)
	s.freeCount++
	s.freeLock.Release()
}

// DecRef drops one owner of the frame. When the last owner goes away the
// page is untracked (if it caches remote memory) and returned to the free
// list.
func (s *Store) DecRef(pi *PageInfo) {
	refs := atomic.AddInt32(&pi.refCount, -1)
	switch {
	case refs < 0:
		panic(errFreeWithRefs)
	case refs == 0:
		if pi.home != 0 {
			s.Untrack(pi)
		}
		s.FreePage(pi)
	}
}

// Reserved returns true if the given frame is pinned at boot and excluded
// from allocation.
func (s *Store) Reserved(f mm.Frame) bool {
	return s.isReserved(f)
}

// Page returns the descriptor for the given frame number.
func (s *Store) Page(f mm.Frame) *PageInfo {
	return &s.pages[f]
}

// PageBytes returns the contents of the given frame for a backed store and
// nil for a metadata-only store.
func (s *Store) PageBytes(f mm.Frame) []byte {
	if s.mem == nil {
		return nil
	}
	start := f.Address()
	return s.mem[start : start+mm.PageSize]
}

// TotalPages returns the number of frames covered by the descriptor arena.
func (s *Store) TotalPages() uint64 {
	return s.totalPages
}

// FreePages returns the number of frames currently on the free list.
func (s *Store) FreePages() uint64 {
	s.freeLock.Acquire()
	n := s.freeCount
	s.freeLock.Release()
	return n
}

// ReservedPages returns the number of frames pinned at boot.
func (s *Store) ReservedPages() uint64 {
	return s.reservedCount
}
