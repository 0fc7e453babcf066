package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that captures early
// Printf output. The default size is selected so it can buffer the contents
// of a standard 80*25 text-mode console. It must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer models a fixed-size ring buffer. It captures the output of
// Printf calls made before a console sink has been registered; once a sink
// appears the buffered bytes are drained into it.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ring buffer, overwriting the oldest
// buffered bytes once the buffer wraps around.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) buffered bytes into p. It returns io.EOF when the
// buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	var n int
	for n = 0; n < len(p) && rb.rIndex != rb.wIndex; n++ {
		p[n] = rb.buffer[rb.rIndex]
		rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
	}

	return n, nil
}
