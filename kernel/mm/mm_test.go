package mm

import "testing"

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	if InvalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to be false")
	}
}

func TestSizeMethods(t *testing.T) {
	specs := []struct {
		input    Size
		expDown  Size
		expPages uint64
	}{
		{0, 0, 0},
		{640 * Kb, 640 * Kb, 160},
		{639 * Kb, 636 * Kb, 159},
		{1*Gb + 1, 1 * Gb, 262144},
	}

	for specIndex, spec := range specs {
		if got := spec.input.RoundDown(PageSize); got != spec.expDown {
			t.Errorf("[spec %d] expected RoundDown to return %d; got %d", specIndex, spec.expDown, got)
		}
		if got := spec.input.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages to return %d; got %d", specIndex, spec.expPages, got)
		}
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestFrameRange(t *testing.T) {
	r := RangeForBytes(0x1800, 2*Size(PageSize))

	if r.Start != Frame(1) || r.End != Frame(3) {
		t.Fatalf("expected range to span frames [1, 3]; got [%d, %d]", r.Start, r.End)
	}

	if got := r.Count(); got != 3 {
		t.Fatalf("expected range to contain 3 frames; got %d", got)
	}

	for f := r.Start; f <= r.End; f++ {
		if !r.Contains(f) {
			t.Errorf("expected range to contain frame %d", f)
		}
	}

	if r.Contains(0) || r.Contains(4) {
		t.Error("expected range to exclude frames outside [1, 3]")
	}
}
