package pmm

import (
	"testing"

	"nodeos/kernel/mm"
)

func TestRemoteRefPacking(t *testing.T) {
	specs := []struct {
		node    uint8
		addr    uintptr
		expAddr uintptr
	}{
		{1, 0x1000, 0x1000},
		{3, 0x1fff, 0x1000},
		{16, 0xabcd3000, 0xabcd3000},
	}

	for specIndex, spec := range specs {
		rr := NewRemoteRef(spec.node, spec.addr)

		if got := rr.Node(); got != spec.node {
			t.Errorf("[spec %d] expected node %d; got %d", specIndex, spec.node, got)
		}
		if got := rr.Addr(); got != spec.expAddr {
			t.Errorf("[spec %d] expected address %x; got %x", specIndex, spec.expAddr, got)
		}
	}

	var zero RemoteRef
	if zero.Node() != 0 {
		t.Error("expected the zero RemoteRef to name node 0")
	}
}

func TestIdentityBuckets(t *testing.T) {
	rr := NewRemoteRef(2, 17*uintptr(mm.PageSize))
	if got := IdentityBuckets(rr); got != mm.Frame(17) {
		t.Fatalf("expected identity bucket to be frame 17; got %d", got)
	}
}
