package pmm

import "nodeos/kernel/mm"

// checkRef validates the node and bucket of a remote reference. Both checks
// guard against protocol bugs in the network layer and are therefore fatal.
func (s *Store) checkRef(rr RemoteRef) mm.Frame {
	if node := rr.Node(); node == 0 || node > s.maxNodes {
		panic(errBadNode)
	}

	bucket := s.bucketFor(rr)
	if bucket <= 1 || uint64(bucket) >= s.totalPages {
		panic(errBadBucket)
	}
	return bucket
}

// Track records that pi materializes the remote page named by rr, so a later
// Lookup with the same reference finds this local copy instead of fetching a
// duplicate. The page is inserted at the head of the home bucket chain for
// rr.
//
// Tracking a reserved/pinned page or a reference that is already tracked
// indicates a protocol bug and panics; an existing entry is never silently
// overwritten.
func (s *Store) Track(rr RemoteRef, pi *PageInfo) {
	bucket := s.checkRef(rr)

	if s.isReserved(pi.frame) {
		panic(errTrackPinned)
	}

	s.homeLock.Acquire()

	// Scan the bucket to make sure the reference is not already there.
	hpi := &s.pages[bucket]
	for idx := hpi.homeList; idx != nilIndex; idx = s.pages[idx].homeNext {
		spi := &s.pages[idx]
		if s.bucketFor(spi.home) != bucket {
			s.homeLock.Release()
			panic(errHomeCorrupt)
		}
		if spi.home == rr {
			s.homeLock.Release()
			panic(errDupTrack)
		}
	}

	pi.home = rr
	pi.homeNext = hpi.homeList
	hpi.homeList = int32(pi.frame)

	s.homeLock.Release()
}

// Lookup returns the local page that caches the remote page named by rr. On
// a hit the descriptor's reference count is incremented before the lock is
// released so the page cannot be freed out from under the caller. A miss is
// an ordinary result reported through the boolean.
func (s *Store) Lookup(rr RemoteRef) (*PageInfo, bool) {
	bucket := s.checkRef(rr)

	s.homeLock.Acquire()
	for idx := s.pages[bucket].homeList; idx != nilIndex; idx = s.pages[idx].homeNext {
		pi := &s.pages[idx]
		if pi.home == rr {
			pi.IncRef()
			s.homeLock.Release()
			return pi, true
		}
	}
	s.homeLock.Release()

	return nil, false
}

// Untrack detaches pi from its home bucket chain, making its remote
// reference available for tracking again. Untracking a page that is not
// tracked has no effect; a tracked page missing from its bucket means the
// chain is corrupted and panics.
func (s *Store) Untrack(pi *PageInfo) {
	if pi.home == 0 {
		return
	}
	bucket := s.checkRef(pi.home)

	s.homeLock.Acquire()
	indirect := &s.pages[bucket].homeList
	for *indirect != nilIndex {
		if *indirect == int32(pi.frame) {
			*indirect = pi.homeNext
			pi.homeNext = nilIndex
			pi.home = 0
			s.homeLock.Release()
			return
		}
		indirect = &s.pages[*indirect].homeNext
	}
	s.homeLock.Release()

	panic(errHomeCorrupt)
}
