package telemetry

// InputBuffer is the read side of a serial connection as the frame
// parser sees it.
type InputBuffer interface {
	// Data returns the buffered bytes without consuming them.
	Data() []byte

	// Available returns the number of buffered bytes.
	Available() int

	// Pop drops n bytes from the front.
	Pop(n int)
}

// OutputBuffer is the write side. Frames are encoded in place, so the
// buffer supports backpatching a byte once the final length is known.
type OutputBuffer interface {
	// Output appends data.
	Output(data []byte)

	// CurPosition returns the current write position.
	CurPosition() int

	// Update overwrites the byte at pos.
	Update(pos int, val byte)

	// DataSince returns everything appended at or after pos.
	DataSince(pos int) []byte
}

// SliceInputBuffer adapts a byte slice to InputBuffer.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is an OutputBuffer over a fixed backing array. It never
// allocates after construction and silently drops anything past one
// frame's worth of bytes; the encoder checks sizes before it writes.
type ScratchOutput struct {
	backing [MessageMax]byte
	data    []byte
}

func NewScratchOutput() *ScratchOutput {
	s := &ScratchOutput{}
	s.data = s.backing[:0]
	return s
}

func (s *ScratchOutput) Output(b []byte) {
	if room := cap(s.data) - len(s.data); len(b) > room {
		b = b[:room]
	}
	s.data = append(s.data, b...)
}

func (s *ScratchOutput) CurPosition() int { return len(s.data) }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.data) {
		s.data[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > len(s.data) {
		return nil
	}
	return s.data[pos:]
}

// Result returns everything written so far.
func (s *ScratchOutput) Result() []byte { return s.data }

// Reset empties the buffer.
func (s *ScratchOutput) Reset() { s.data = s.backing[:0] }

// FifoBuffer is a circular byte queue sitting between a serial reader
// and the frame parser. A buffer of capacity n holds n bytes.
type FifoBuffer struct {
	buf   []byte
	head  int // index of the oldest byte
	count int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns how much that was.
func (f *FifoBuffer) Write(data []byte) int {
	if free := len(f.buf) - f.count; len(data) > free {
		data = data[:free]
	}
	tail := (f.head + f.count) % len(f.buf)
	n := copy(f.buf[tail:], data)
	copy(f.buf, data[n:])
	f.count += len(data)
	return len(data)
}

// Read fills p with up to len(p) buffered bytes and consumes them.
func (f *FifoBuffer) Read(p []byte) int {
	if len(p) > f.count {
		p = p[:f.count]
	}
	n := copy(p, f.buf[f.head:])
	copy(p[n:], f.buf)
	f.head = (f.head + len(p)) % len(f.buf)
	f.count -= len(p)
	return len(p)
}

// Available returns the number of buffered bytes.
func (f *FifoBuffer) Available() int { return f.count }

// Free returns how many more bytes Write will accept.
func (f *FifoBuffer) Free() int { return len(f.buf) - f.count }

// Data returns the buffered bytes as one slice. When the content wraps
// around the end of the ring it is copied out; the parser needs frames
// contiguous.
func (f *FifoBuffer) Data() []byte {
	if f.head+f.count <= len(f.buf) {
		return f.buf[f.head : f.head+f.count]
	}
	out := make([]byte, f.count)
	n := copy(out, f.buf[f.head:])
	copy(out[n:], f.buf)
	return out
}

// Pop drops n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
}

// IsEmpty reports whether the buffer holds no bytes.
func (f *FifoBuffer) IsEmpty() bool { return f.count == 0 }

// Reset empties the buffer.
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
