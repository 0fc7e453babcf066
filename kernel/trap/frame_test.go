package trap

import (
	"bytes"
	"strings"
	"testing"
)

func TestFrameUser(t *testing.T) {
	specs := []struct {
		cs  uint64
		exp bool
	}{
		{KernelCS, false},
		{UserCS, true},
		{0x18 | 3, true},
	}

	for specIndex, spec := range specs {
		f := Frame{CS: spec.cs}
		if got := f.User(); got != spec.exp {
			t.Errorf("[spec %d] expected User() for CS %x to return %t; got %t", specIndex, spec.cs, spec.exp, got)
		}
	}
}

func TestFrameDump(t *testing.T) {
	f := Frame{
		Regs:   Registers{RAX: 1, R15: 0xf},
		Num:    PageFault,
		Code:   6,
		RIP:    0x10abcd,
		CS:     UserCS,
		RFlags: 0x202,
		RSP:    0x7ffffff0,
		SS:     0x23,
	}

	var buf bytes.Buffer
	f.DumpTo(&buf)
	got := buf.String()

	for _, exp := range []string{
		"RAX = 0000000000000001",
		"R15 = 000000000000000f",
		"trap=               14 page fault",
		"err = 0000000000000006",
		"RIP = 000000000010abcd",
		"RFL = 0000000000000202",
	} {
		if !strings.Contains(got, exp) {
			t.Errorf("expected the frame dump to contain %q; dump:\n%s", exp, got)
		}
	}
}
