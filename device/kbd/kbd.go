// Package kbd drives the PC keyboard controller. The keyboard interrupt
// pulls set-1 scancodes out of the controller, translates them to ASCII and
// buffers the result for the console input consumer.
package kbd

import (
	"io"

	"nodeos/device"
	"nodeos/kernel"
)

// bufSize is the size of the translated input buffer. Must be a power of 2.
const bufSize = 64

// Scancode values with meaning beyond their translated character.
const (
	scLShift = 0x2a
	scRShift = 0x36

	// breakBit is set on the scancode generated when a key is released.
	breakBit = 0x80
)

var errBufSizeNotPow2 = &kernel.Error{Module: "kbd", Message: "input buffer size must be a power of 2"}

// scanFn pulls the next scancode out of the keyboard controller, reporting
// false when no scancode is pending. The default implementation reports an
// idle controller; hardware detection installs the port-IO backend and
// tests inject their own scancode streams.
var scanFn = func() (uint8, bool) { return 0, false }

var normalMap = [...]byte{
	0, 0x1b, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0',
	'-', '=', '\b', '\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i',
	'o', 'p', '[', ']', '\n', 0, 'a', 's', 'd', 'f', 'g', 'h',
	'j', 'k', 'l', ';', '\'', '`', 0, '\\', 'z', 'x', 'c', 'v',
	'b', 'n', 'm', ',', '.', '/', 0, '*', 0, ' ',
}

var shiftMap = [...]byte{
	0, 0x1b, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')',
	'_', '+', '\b', '\t', 'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I',
	'O', 'P', '{', '}', '\n', 0, 'A', 'S', 'D', 'F', 'G', 'H',
	'J', 'K', 'L', ':', '"', '~', 0, '|', 'Z', 'X', 'C', 'V',
	'B', 'N', 'M', '<', '>', '?', 0, '*', 0, ' ',
}

// Device is the keyboard driver.
type Device struct {
	buf    [bufSize]byte
	r, w   int
	missed uint32

	shift bool
}

// ISR services a keyboard interrupt: it drains all pending scancodes out of
// the controller, tracking modifier state and buffering the translated
// characters.
func (d *Device) ISR() {
	for {
		sc, ok := scanFn()
		if !ok {
			return
		}

		switch sc &^ breakBit {
		case scLShift, scRShift:
			d.shift = sc&breakBit == 0
			continue
		}

		// Key releases carry no character.
		if sc&breakBit != 0 {
			continue
		}

		d.push(translate(sc, d.shift))
	}
}

func (d *Device) push(ch byte) {
	if ch == 0 {
		return
	}
	if d.w-d.r == bufSize {
		d.missed++
		return
	}
	d.buf[d.w%bufSize] = ch
	d.w++
}

func translate(sc uint8, shift bool) byte {
	if int(sc) >= len(normalMap) {
		return 0
	}
	if shift {
		return shiftMap[sc]
	}
	return normalMap[sc]
}

// GetChar returns the next buffered input character, reporting false when no
// input is pending.
func (d *Device) GetChar() (byte, bool) {
	if d.r == d.w {
		return 0, false
	}
	ch := d.buf[d.r%bufSize]
	d.r++
	return ch, true
}

// Missed returns the number of characters dropped due to a full buffer.
func (d *Device) Missed() uint32 {
	return d.missed
}

// DriverName returns the name of this driver.
func (d *Device) DriverName() string {
	return "kbd"
}

// DriverVersion returns the version of this driver.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	if bufSize&(bufSize-1) != 0 {
		return errBufSizeNotPow2
	}
	d.r, d.w, d.missed = 0, 0, 0
	d.shift = false
	return nil
}

func probeForKeyboard() device.Driver {
	return &Device{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForKeyboard,
	})
}
