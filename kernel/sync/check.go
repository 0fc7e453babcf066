package sync

// Check exercises the spinlock implementation and returns false if any of its
// invariants do not hold. It is run once during boot before any subsystem
// starts relying on mutual exclusion; a failure here means the kernel must
// not proceed.
func Check() bool {
	const numLocks = 10
	const numRuns = 5

	var locks [numLocks]Spinlock

	for run := 0; run < numRuns; run++ {
		for i := range locks {
			locks[i].Acquire()
		}

		for i := range locks {
			if !locks[i].Holding() {
				return false
			}
		}

		// A held lock must not be acquirable a second time.
		for i := range locks {
			if locks[i].TryToAcquire() {
				return false
			}
		}

		for i := range locks {
			locks[i].Release()
		}

		for i := range locks {
			if locks[i].Holding() {
				return false
			}
		}

		// A released lock must be immediately re-acquirable.
		for i := range locks {
			if !locks[i].TryToAcquire() {
				return false
			}
			locks[i].Release()
		}
	}

	return true
}
