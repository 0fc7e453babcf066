package pmm

import "nodeos/kernel/mm"

// RemoteRef names the canonical owner of a page that lives on another node in
// the cluster. It packs the owning node ID into the low (sub-page) bits of
// the page-aligned physical address the page occupies on that node. The zero
// value means "not a remote reference": node 0 is never a valid node ID.
type RemoteRef uint64

// NewRemoteRef builds a remote reference for the given node ID and remote
// physical address. The address is rounded down to a page boundary.
func NewRemoteRef(node uint8, physAddr uintptr) RemoteRef {
	return RemoteRef(physAddr & ^(mm.PageSize - 1)) | RemoteRef(node)
}

// Node returns the ID of the node that owns the canonical copy of the page.
func (r RemoteRef) Node() uint8 {
	return uint8(r & 0xff)
}

// Addr returns the page-aligned physical address of the page on its owning
// node.
func (r RemoteRef) Addr() uintptr {
	return uintptr(r) & ^(mm.PageSize - 1)
}

// BucketFn selects the local home bucket frame for a remote reference.
type BucketFn func(RemoteRef) mm.Frame

// IdentityBuckets maps a remote reference to the local frame with the same
// frame number as the remote address. This only works when every node in the
// cluster is configured with the same amount of physical memory; clusters
// with heterogeneous memory sizes must install a hashing BucketFn instead.
func IdentityBuckets(r RemoteRef) mm.Frame {
	return mm.FrameFromAddress(r.Addr())
}
