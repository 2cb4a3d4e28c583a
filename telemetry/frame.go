package telemetry

import (
	"sync"
	"sync/atomic"
)

// Dispatcher routes a decoded message ID to its handler. The payload
// pointer is advanced past whatever the handler consumes.
type Dispatcher func(id uint16, data *[]byte) error

// Link runs the firmware end of the protocol. Receive validates,
// dispatches and acknowledges inbound frames; Send encodes outbound
// ones. Sending is safe from multiple goroutines; Receive belongs to
// the single serial reader.
type Link struct {
	synchronized uint32 // atomic bool
	nextSequence uint32 // atomic uint8; the next sequence expected from the host

	sendMu   sync.Mutex
	output   OutputBuffer
	dispatch Dispatcher

	resetCallback  func() // host restarted its sequence counter
	desyncCallback func() // framing lost, diagnostic hook
	flushCallback  func() // push buffered output to the port now
}

// NewLink binds a link to an output buffer and a dispatch function.
func NewLink(output OutputBuffer, dispatch Dispatcher) *Link {
	return &Link{
		synchronized: 1,
		nextSequence: MessageDest,
		output:       output,
		dispatch:     dispatch,
	}
}

// frameVerdict classifies the bytes at the front of a receive buffer.
type frameVerdict int

const (
	frameIncomplete frameVerdict = iota // wait for more bytes
	frameSyncByte                       // a lone sync byte, consume one
	frameOK                             // a whole valid frame
	frameBad                            // framing violated, drop sync
)

// inspectFrame classifies the start of data. Both ends of the wire run
// the same scan; only the reaction to each verdict differs. For frameOK
// the returned length covers the whole frame including the trailer.
func inspectFrame(data []byte) (frameVerdict, int) {
	if len(data) == 0 {
		return frameIncomplete, 0
	}
	if data[0] == MessageValueSync {
		return frameSyncByte, 0
	}
	if len(data) < MessageLengthMin {
		return frameIncomplete, 0
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return frameBad, 0
	}
	// Every sequence byte on the wire carries the destination bits.
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return frameBad, 0
	}
	if len(data) < n {
		return frameIncomplete, 0
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return frameBad, 0
	}
	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return frameBad, 0
	}
	return frameOK, n
}

// skipToSync drops everything up to and including the next sync byte
// and reports whether one was found.
func skipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// Receive consumes whatever complete frames the input holds. Partial
// frames stay buffered for the next call; anything that fails
// validation drops the link out of sync until the next sync byte.
func (l *Link) Receive(input InputBuffer) {
	data := input.Data()

scan:
	for len(data) > 0 {
		if !l.getSynchronized() {
			rest, found := skipToSync(data)
			data = rest
			if !found {
				break
			}
			// Everything before the sync byte was garbage. The ACK sent
			// here doubles as a NAK telling the host where we stand.
			l.setSynchronized(true)
			l.encodeAckNak()
			continue
		}

		verdict, msgLen := inspectFrame(data)
		switch verdict {
		case frameIncomplete:
			break scan
		case frameSyncByte:
			// Tolerate sync bytes between frames.
			data = data[1:]
			continue
		case frameBad:
			l.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		expected := uint8(atomic.LoadUint32(&l.nextSequence))
		if seq == MessageDest && expected != MessageDest {
			// The host restarted its sequence counter. Follow it.
			atomic.StoreUint32(&l.nextSequence, MessageDest)
			expected = MessageDest
			if l.resetCallback != nil {
				l.resetCallback()
			}
		}

		if seq == expected {
			next := ((seq + 1) & MessageSeqMask) | MessageDest
			atomic.StoreUint32(&l.nextSequence, uint32(next))
			_ = l.parseFrame(frame)
		}
		// Acknowledge regardless. On a sequence mismatch the ACK still
		// carries the sequence we expect, which reads as a NAK.
		l.encodeAckNak()
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame walks the messages packed into one frame and dispatches
// each. A panicking handler must not take the firmware down; the link
// drops sync instead and the host walks it back with a NAK exchange.
func (l *Link) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.desync()
		}
	}()

	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err != nil {
			l.desync()
			return err
		}
		if l.dispatch != nil {
			if err := l.dispatch(uint16(id), &frame); err != nil {
				// Handler errors stop this frame but keep sync.
				return err
			}
		}
	}
	return nil
}

// encodeAckNak emits the five byte acknowledgement carrying the next
// expected sequence. The host's queue stalls until it sees the ACK, so
// it is flushed immediately rather than left for the next Send.
func (l *Link) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&l.nextSequence))
	crc := CRC16([]byte{MessageLengthMin, ns})

	l.sendMu.Lock()
	l.output.Output([]byte{
		MessageLengthMin,
		ns,
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	if l.flushCallback != nil {
		l.flushCallback()
	}
	l.sendMu.Unlock()
}

// EncodeFrame appends one framed payload to the output buffer. The
// length byte is backpatched once the payload size is known.
func (l *Link) EncodeFrame(frameData func(output OutputBuffer)) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	l.encodeFrame(frameData)
}

func (l *Link) encodeFrame(frameData func(output OutputBuffer)) {
	cursor := l.output.CurPosition()

	// Outbound frames reuse the next expected sequence, the same value
	// the ACK carries. Sending does not advance it.
	seq := uint8(atomic.LoadUint32(&l.nextSequence))
	l.output.Output([]byte{0, seq})

	frameData(l.output)

	changed := len(l.output.DataSince(cursor))
	l.output.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(l.output.DataSince(cursor))
	l.output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
}

// Send frames a message ID plus arguments and flushes it to the port.
func (l *Link) Send(id uint16, args func(output OutputBuffer)) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	l.encodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(id))
		if args != nil {
			args(output)
		}
	})
	if l.flushCallback != nil {
		l.flushCallback()
	}
}

// Reset rearms the link after a port reopen.
func (l *Link) Reset() {
	atomic.StoreUint32(&l.synchronized, 1)
	atomic.StoreUint32(&l.nextSequence, MessageDest)
	if l.resetCallback != nil {
		l.resetCallback()
	}
}

// SetResetCallback registers a hook for host restarts.
func (l *Link) SetResetCallback(callback func()) {
	l.resetCallback = callback
}

// SetDesyncCallback registers a hook fired every time framing is lost.
func (l *Link) SetDesyncCallback(callback func()) {
	l.desyncCallback = callback
}

// SetFlushCallback registers the function that pushes buffered output
// to the port.
func (l *Link) SetFlushCallback(callback func()) {
	l.flushCallback = callback
}

func (l *Link) desync() {
	l.setSynchronized(false)
	if l.desyncCallback != nil {
		l.desyncCallback()
	}
}

func (l *Link) getSynchronized() bool {
	return atomic.LoadUint32(&l.synchronized) != 0
}

func (l *Link) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&l.synchronized, 1)
	} else {
		atomic.StoreUint32(&l.synchronized, 0)
	}
}
