package pmm

import (
	"nodeos/kernel"
	"nodeos/kernel/kfmt"
	"nodeos/kernel/mm"
)

const (
	// freeSentinel is written over the first bytes of every free page so
	// that accidental use of freed memory becomes detectable.
	freeSentinel = 0x97

	// sentinelBytes is the number of bytes of each free page that get
	// overwritten with the sentinel pattern.
	sentinelBytes = 128
)

var errSelfCheckFailed = &kernel.Error{Module: "pmm", Message: "page store self-check failed"}

// SelfCheck verifies that the free list and the allocator behave as specified
// right after initialization. It is a startup correctness gate: the kernel
// must not proceed past boot if the allocator cannot prove these properties.
// The free list is restored to its pre-check state before returning.
func (s *Store) SelfCheck() *kernel.Error {
	// Walk the free list, poisoning the contents of every free page on a
	// backed store. A page that is wrongly on the free list will
	// eventually make trouble visible instead of corrupting data
	// silently.
	var walked uint64
	for idx := s.freeHead; idx != nilIndex; idx = s.pages[idx].freeNext {
		if s.mem != nil {
			contents := s.PageBytes(mm.Frame(idx))
			for i := 0; i < sentinelBytes; i++ {
				contents[i] = freeSentinel
			}
		}
		walked++
	}
	kfmt.Printf("[pmm] self-check: %d free pages\n", walked)

	// The walk, the free counter and the reservation bookkeeping must all
	// agree.
	if walked != s.freeCount || walked >= s.totalPages || s.freeCount+s.reservedCount != s.totalPages {
		return errSelfCheckFailed
	}

	// Three allocations must yield three distinct valid frames.
	pp0, err0 := s.AllocPage()
	pp1, err1 := s.AllocPage()
	pp2, err2 := s.AllocPage()
	if err0 != nil || err1 != nil || err2 != nil {
		return errSelfCheckFailed
	}
	if pp0 == pp1 || pp1 == pp2 || pp0 == pp2 {
		return errSelfCheckFailed
	}
	if uint64(pp0.frame) >= s.totalPages || uint64(pp1.frame) >= s.totalPages || uint64(pp2.frame) >= s.totalPages {
		return errSelfCheckFailed
	}

	// Temporarily steal the rest of the free pages; allocation must now
	// report exhaustion.
	s.freeLock.Acquire()
	savedHead, savedCount := s.freeHead, s.freeCount
	s.freeHead, s.freeCount = nilIndex, 0
	s.freeLock.Release()

	if _, err := s.AllocPage(); err != ErrNoMemory {
		return errSelfCheckFailed
	}

	// Freeing must make exactly the freed frames allocatable again.
	s.FreePage(pp0)
	s.FreePage(pp1)
	s.FreePage(pp2)
	pp0, err0 = s.AllocPage()
	pp1, err1 = s.AllocPage()
	pp2, err2 = s.AllocPage()
	if err0 != nil || err1 != nil || err2 != nil {
		return errSelfCheckFailed
	}
	if pp0 == pp1 || pp1 == pp2 || pp0 == pp2 {
		return errSelfCheckFailed
	}
	if _, err := s.AllocPage(); err != ErrNoMemory {
		return errSelfCheckFailed
	}

	// Give the free list back and return the three stolen pages.
	s.freeLock.Acquire()
	s.freeHead, s.freeCount = savedHead, savedCount
	s.freeLock.Release()
	s.FreePage(pp0)
	s.FreePage(pp1)
	s.FreePage(pp2)

	kfmt.Printf("[pmm] self-check passed\n")
	return nil
}
