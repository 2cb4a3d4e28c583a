// Package tinycompress emits zlib streams without pulling compress/flate
// into a TinyGo build. Output uses stored DEFLATE blocks only, so the
// result is framing rather than compression: any standard inflate can
// open it, at the cost of eleven bytes of overhead per stream.
package tinycompress

import (
	"hash"
	"hash/adler32"
	"io"
)

// maxStored is the largest payload one stored DEFLATE block can carry.
const maxStored = 0xFFFF

// Writer buffers everything written to it and emits a single zlib
// stream on Close.
type Writer struct {
	out   io.Writer
	buf   []byte
	adler hash.Hash32
}

// NewWriter returns a Writer framing its input as a zlib stream on w.
// The buffer is sized for a dictionary blob up front; growing it later
// allocates, which the firmware caller cannot afford mid-write.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		out:   w,
		buf:   make([]byte, 0, 8192),
		adler: adler32.New(),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	w.adler.Write(p)
	return len(p), nil
}

// Close frames the accumulated input and writes the stream: zlib
// header, stored blocks, Adler-32 trailer. Inputs longer than a single
// stored block split across several.
func (w *Writer) Close() error {
	if _, err := w.out.Write([]byte{0x78, 0x9C}); err != nil {
		return err
	}
	rest := w.buf
	for {
		chunk := rest
		final := byte(1)
		if len(chunk) > maxStored {
			chunk, final = chunk[:maxStored], 0
		}
		n := uint16(len(chunk))
		hdr := []byte{final, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
		if _, err := w.out.Write(hdr); err != nil {
			return err
		}
		if _, err := w.out.Write(chunk); err != nil {
			return err
		}
		rest = rest[len(chunk):]
		if final == 1 {
			break
		}
	}
	sum := w.adler.Sum32()
	tail := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	_, err := w.out.Write(tail)
	return err
}
