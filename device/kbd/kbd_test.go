package kbd

import "testing"

// feedScancodes installs a scanFn that replays the given scancode stream.
func feedScancodes(t *testing.T, stream []uint8) {
	t.Helper()
	t.Cleanup(func() { scanFn = func() (uint8, bool) { return 0, false } })

	scanFn = func() (uint8, bool) {
		if len(stream) == 0 {
			return 0, false
		}
		sc := stream[0]
		stream = stream[1:]
		return sc, true
	}
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()

	var dev Device
	if err := dev.DriverInit(nil); err != nil {
		t.Fatalf("unexpected DriverInit error: %v", err)
	}
	return &dev
}

func TestTranslation(t *testing.T) {
	specs := []struct {
		stream []uint8
		exp    string
	}{
		// "go" followed by enter; releases interleaved.
		{[]uint8{0x22, 0x22 | breakBit, 0x18, 0x18 | breakBit, 0x1c}, "go\n"},

		// Shift held for the first key only.
		{[]uint8{scLShift, 0x22, 0x22 | breakBit, scLShift | breakBit, 0x22}, "Gg"},

		// Shifted digits turn into punctuation.
		{[]uint8{scRShift, 0x02, 0x0b, scRShift | breakBit, 0x02}, "!)1"},

		// Key releases and out-of-range scancodes produce nothing.
		{[]uint8{0x22 | breakBit, 0x7f}, ""},
	}

	for specIndex, spec := range specs {
		feedScancodes(t, spec.stream)

		dev := newTestDevice(t)
		dev.ISR()

		var got []byte
		for {
			ch, ok := dev.GetChar()
			if !ok {
				break
			}
			got = append(got, ch)
		}

		if string(got) != spec.exp {
			t.Errorf("[spec %d] expected input %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestBufferOverrun(t *testing.T) {
	stream := make([]uint8, bufSize+5)
	for i := range stream {
		stream[i] = 0x1e // 'a'
	}
	feedScancodes(t, stream)

	dev := newTestDevice(t)
	dev.ISR()

	if got := dev.Missed(); got != 5 {
		t.Fatalf("expected 5 missed characters; got %d", got)
	}

	var buffered int
	for {
		if _, ok := dev.GetChar(); !ok {
			break
		}
		buffered++
	}
	if buffered != bufSize {
		t.Fatalf("expected %d buffered characters; got %d", bufSize, buffered)
	}
}

func TestDriverInterface(t *testing.T) {
	dev := newTestDevice(t)

	if dev.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	major, minor, patch := dev.DriverVersion()
	if major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}
}

func TestProbe(t *testing.T) {
	if drv := probeForKeyboard(); drv == nil {
		t.Fatal("expected the keyboard probe to always find the device")
	}
}
