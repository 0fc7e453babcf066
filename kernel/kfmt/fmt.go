// Package kfmt implements the kernel's formatted console sink. All diagnostic
// and informational output flows through Printf which serializes concurrent
// writers via a console spinlock; the trap dispatcher is allowed to break that
// lock before reporting a fatal condition so a crash while printing cannot
// wedge the crash report itself.
package kfmt

import (
	"io"

	"nodeos/kernel/sync"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// earlyPrintBuffer captures Printf output generated before a console
	// sink has been registered.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. If nil,
	// output is redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// consLock serializes console output between processors.
	consLock sync.Spinlock
)

// SetOutputSink sets the target for calls to Printf to w and copies any
// output accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the io.Writer that currently receives Printf output.
func GetOutputSink() io.Writer {
	if outputSink == nil {
		return &earlyPrintBuffer
	}
	return outputSink
}

// ReleaseConsoleIfHeld force-releases the console lock if it is held by the
// processor executing the caller. The trap dispatcher invokes this before
// dumping a fatal trap so the report cannot deadlock on a console lock taken
// by the interrupted code.
func ReleaseConsoleIfHeld() {
	if consLock.Holding() {
		consLock.Release()
	}
}

// Printf formats its arguments and writes the result to the active console
// sink while holding the console lock.
//
// The following subset of formatting verbs is supported:
//
// Strings:
//	%s	the uninterpreted bytes of the string or byte slice
//
// Integers:
//	%o	base 8
//	%d	base 10
//	%x	base 16, with lower-case letters for a-f
//
// Booleans:
//	%t	"true" or "false"
//
// Characters:
//	%c	the character represented by the corresponding byte
//
// Width is specified by an optional decimal number immediately preceding the
// verb. String and base-10 values shorter than the width are left-padded with
// spaces; base-16 values are left-padded with zeroes.
func Printf(format string, args ...interface{}) {
	consLock.Acquire()
	Fprintf(GetOutputSink(), format, args...)
	consLock.Release()
}

// Fprintf behaves exactly like Printf but writes the formatted output to the
// supplied io.Writer without touching the console lock.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		i, argIndex int
		fmtLen      = len(format)
	)

	for i < fmtLen {
		ch := format[i]
		if ch != '%' {
			writeByte(w, ch)
			i++
			continue
		}

		// Scan the optional width specifier.
		i++
		padLen := 0
		for ; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		if i >= fmtLen {
			w.Write(errNoVerb)
			return
		}

		verb := format[i]
		i++

		if verb == '%' {
			writeByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			w.Write(errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'o':
			fmtInt(w, arg, 8, padLen)
		case 'd':
			fmtInt(w, arg, 10, padLen)
		case 'x':
			fmtInt(w, arg, 16, padLen)
		case 's':
			fmtString(w, arg, padLen)
		case 't':
			fmtBool(w, arg)
		case 'c':
			fmtChar(w, arg)
		default:
			w.Write(errNoVerb)
		}
	}

	if argIndex < len(args) {
		w.Write(errExtraArg)
	}
}

func writeByte(w io.Writer, b byte) {
	var buf [1]byte
	buf[0] = b
	w.Write(buf[:])
}

func fmtBool(w io.Writer, arg interface{}) {
	v, ok := arg.(bool)
	if !ok {
		w.Write(errWrongArgType)
		return
	}

	if v {
		w.Write(trueValue)
	} else {
		w.Write(falseValue)
	}
}

func fmtChar(w io.Writer, arg interface{}) {
	switch v := arg.(type) {
	case byte:
		writeByte(w, v)
	case rune:
		writeByte(w, byte(v))
	default:
		w.Write(errWrongArgType)
	}
}

func fmtString(w io.Writer, arg interface{}, padLen int) {
	switch v := arg.(type) {
	case string:
		for pad := padLen - len(v); pad > 0; pad-- {
			writeByte(w, ' ')
		}
		for i := 0; i < len(v); i++ {
			writeByte(w, v[i])
		}
	case []byte:
		for pad := padLen - len(v); pad > 0; pad-- {
			writeByte(w, ' ')
		}
		w.Write(v)
	default:
		w.Write(errWrongArgType)
	}
}

func fmtInt(w io.Writer, arg interface{}, base, padLen int) {
	var (
		v        uint64
		negative bool
	)

	switch t := arg.(type) {
	case int:
		negative = t < 0
		v = abs64(int64(t))
	case int8:
		negative = t < 0
		v = abs64(int64(t))
	case int16:
		negative = t < 0
		v = abs64(int64(t))
	case int32:
		negative = t < 0
		v = abs64(int64(t))
	case int64:
		negative = t < 0
		v = abs64(t)
	case uint:
		v = uint64(t)
	case uint8:
		v = uint64(t)
	case uint16:
		v = uint64(t)
	case uint32:
		v = uint64(t)
	case uint64:
		v = t
	case uintptr:
		v = uint64(t)
	default:
		w.Write(errWrongArgType)
		return
	}

	const digits = "0123456789abcdef"

	var (
		buf     [maxBufSize]byte
		index   = maxBufSize
		padChar = byte(' ')
		ub      = uint64(base)
	)

	if base == 16 {
		padChar = '0'
	}

	for {
		index--
		buf[index] = digits[v%ub]
		v /= ub
		if v == 0 {
			break
		}
	}

	if negative {
		index--
		buf[index] = '-'
	}

	for pad := padLen - (maxBufSize - index); pad > 0; pad-- {
		writeByte(w, padChar)
	}

	w.Write(buf[index:])
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
