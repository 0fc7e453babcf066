package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// Write writes len(p) bytes from p to the underlying sink, injecting the
// configured prefix at the beginning of each line. The injected prefix bytes
// are not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, start int

	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		w.Sink.Write(w.Prefix)
	}

	for cur := 0; cur < len(p); cur++ {
		if p[cur] != '\n' {
			continue
		}

		n, err := w.Sink.Write(p[start : cur+1])
		written += n
		if err != nil {
			return written, err
		}

		w.bytesAfterPrefix = 0
		start = cur + 1
		if start != len(p) {
			w.Sink.Write(w.Prefix)
		}
	}

	if start < len(p) {
		n, err := w.Sink.Write(p[start:])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
