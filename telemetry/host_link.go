package telemetry

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// sendAttempts bounds how often a command is resent after a NAK or a
// lost ACK before SendCommand gives up.
const sendAttempts = 3

// Frame is one parsed message as the host sees it.
type Frame struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// ResponseHandler receives response payloads on the read loop. The
// message ID has already been decoded off the payload.
type ResponseHandler func(id uint16, data *[]byte) error

// ErrClosed is returned once Close has been called; callers use it to
// tell a dead link from a quiet one.
var ErrClosed = errors.New("link closed")

var errNak = errors.New("frame rejected by device")

// HostLink drives the host end of the protocol over a serial port:
// commands go out and block until the matching ACK, responses come back
// on a channel and an optional callback. The port's Read must return
// periodically (use a read timeout), otherwise Close blocks forever.
type HostLink struct {
	port io.ReadWriteCloser

	currentSeq   uint32 // atomic uint8; the sequence of the next command
	synchronized uint32 // atomic bool

	input *FifoBuffer

	ackChan      chan *Frame
	responseChan chan *Frame

	responseHandler ResponseHandler

	// cmdMu serializes whole command exchanges; the ACK protocol
	// allows one command in flight.
	cmdMu  sync.Mutex
	readMu sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostLink wraps a port and starts the background reader.
func NewHostLink(port io.ReadWriteCloser) *HostLink {
	t := &HostLink{
		port:         port,
		currentSeq:   MessageDest,
		synchronized: 1,
		input:        NewFifoBuffer(512),
		ackChan:      make(chan *Frame, 1),
		responseChan: make(chan *Frame, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// buildFrame assembles one command frame: header, VLQ message ID plus
// arguments, CRC and sync byte.
func buildFrame(seq uint8, id uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	scratch.Output([]byte{0, seq})
	EncodeVLQUint(scratch, uint32(id))
	if args != nil {
		args(scratch)
	}

	n := scratch.CurPosition() + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, fmt.Errorf("frame too long: %d bytes (max %d)", n, MessageLengthMax)
	}
	scratch.Update(MessagePositionLen, uint8(n))

	crc := CRC16(scratch.Result())
	scratch.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	out := make([]byte, n)
	copy(out, scratch.Result())
	return out, nil
}

// SendCommand sends one command and waits for its ACK.
func (t *HostLink) SendCommand(id uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(id, args, 2*time.Second)
}

// SendCommandWithTimeout sends one command, retrying after NAKs and ACK
// timeouts. A NAK carries the sequence the device expects next; the
// retry adopts it, which resynchronizes both ends.
func (t *HostLink) SendCommandWithTimeout(id uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		sent := uint8(atomic.LoadUint32(&t.currentSeq))

		msg, err := buildFrame(sent, id, args)
		if err != nil {
			return err
		}
		if err := t.writeFrame(msg); err != nil {
			return fmt.Errorf("write command: %w", err)
		}

		lastErr = t.waitForAck(sent, timeout)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrClosed) {
			return lastErr
		}
	}
	return lastErr
}

func (t *HostLink) writeFrame(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(msg))
	}
	return nil
}

// waitForAck blocks until the device acknowledges the frame sent with
// sequence sent. The firmware acknowledges with the sequence it expects
// next, so a matching ACK carries sent+1.
func (t *HostLink) waitForAck(sent uint8, timeout time.Duration) error {
	want := ((sent + 1) & MessageSeqMask) | MessageDest

	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			// The device told us which sequence it expects. Line up
			// with it so the retry goes through.
			atomic.StoreUint32(&t.currentSeq, uint32(ack.Sequence))
			return errNak
		}
		atomic.StoreUint32(&t.currentSeq, uint32(want))
		return nil

	case <-time.After(timeout):
		return fmt.Errorf("no ack within %v", timeout)

	case <-t.stopChan:
		return ErrClosed
	}
}

// ReceiveResponse returns the next response frame, or an error when
// none arrives within the timeout.
func (t *HostLink) ReceiveResponse(timeout time.Duration) (*Frame, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("no response within %v", timeout)

	case <-t.stopChan:
		return nil, ErrClosed
	}
}

// SetResponseHandler registers a callback invoked on the read loop for
// every response frame. Set it before traffic starts.
func (t *HostLink) SetResponseHandler(handler ResponseHandler) {
	t.responseHandler = handler
}

func (t *HostLink) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if n > 0 {
			t.input.Write(buffer[:n])
			t.processFrames()
		}
	}
}

// processFrames runs the same scan the firmware does and dispatches
// whatever passes it.
func (t *HostLink) processFrames() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.input.Data()

scan:
	for len(data) > 0 {
		if !t.getSynchronized() {
			rest, found := skipToSync(data)
			data = rest
			if found {
				t.setSynchronized(true)
			}
			continue
		}

		verdict, msgLen := inspectFrame(data)
		switch verdict {
		case frameIncomplete:
			break scan
		case frameSyncByte:
			data = data[1:]
			continue
		case frameBad:
			t.setSynchronized(false)
			continue
		}

		payload := make([]byte, msgLen-MessageHeaderSize-MessageTrailerSize)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])

		t.dispatchFrame(&Frame{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Payload:  payload,
			CRC: uint16(data[msgLen-MessageTrailerCRC])<<8 |
				uint16(data[msgLen-MessageTrailerCRC+1]),
		})

		data = data[msgLen:]
	}

	consumed := t.input.Available() - len(data)
	if consumed > 0 {
		t.input.Pop(consumed)
	}
}

// dispatchFrame routes by payload: an empty payload is an ACK or NAK,
// anything else is a response.
func (t *HostLink) dispatchFrame(frame *Frame) {
	if len(frame.Payload) == 0 {
		select {
		case t.ackChan <- frame:
		default:
			// Nobody waiting; a stale ACK is worthless.
		}
		return
	}

	if t.responseHandler != nil {
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		if id, err := DecodeVLQUint(&payload); err == nil {
			_ = t.responseHandler(uint16(id), &payload)
		}
	}

	select {
	case t.responseChan <- frame:
	default:
		// Channel full: drop the oldest so the stream stays current.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- frame
	}
}

// Close stops the reader and closes the port.
func (t *HostLink) Close() error {
	close(t.stopChan)
	<-t.doneChan

	if t.port != nil {
		return t.port.Close()
	}
	return nil
}

// Reset rearms the link state after an error or a device restart.
func (t *HostLink) Reset() {
	atomic.StoreUint32(&t.synchronized, 1)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}

	t.readMu.Lock()
	t.input.Reset()
	t.readMu.Unlock()
}

func (t *HostLink) getSynchronized() bool {
	return atomic.LoadUint32(&t.synchronized) != 0
}

func (t *HostLink) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.synchronized, 1)
	} else {
		atomic.StoreUint32(&t.synchronized, 0)
	}
}
