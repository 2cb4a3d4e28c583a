package telemetry

import (
	"testing"
)

// buildCommand frames a payload the way the host does: length and
// sequence up front, CRC and sync byte behind.
func buildCommand(seq uint8, payload []byte) []byte {
	msg := make([]byte, 0, len(payload)+MessageLengthMin)
	msg = append(msg, uint8(len(payload)+MessageLengthMin), seq)
	msg = append(msg, payload...)
	crc := CRC16(msg)
	return append(msg, uint8(crc>>8), uint8(crc&0xFF), MessageValueSync)
}

// encodePayload packs values as VLQ, the message ID first.
func encodePayload(vals ...uint32) []byte {
	out := NewScratchOutput()
	for _, v := range vals {
		EncodeVLQUint(out, v)
	}
	result := make([]byte, len(out.Result()))
	copy(result, out.Result())
	return result
}

func TestReceiveDispatchesFrame(t *testing.T) {
	out := NewScratchOutput()
	var gotID uint16
	var gotArg uint32
	link := NewLink(out, func(id uint16, data *[]byte) error {
		gotID = id
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		gotArg = v
		return nil
	})
	flushes := 0
	link.SetFlushCallback(func() { flushes++ })

	in := NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(4, 1234)))
	link.Receive(in)

	if gotID != 4 {
		t.Errorf("Expected message id 4, got %d", gotID)
	}
	if gotArg != 1234 {
		t.Errorf("Expected argument 1234, got %d", gotArg)
	}
	if in.Available() != 0 {
		t.Errorf("Expected input fully consumed, %d bytes left", in.Available())
	}
	if flushes != 1 {
		t.Errorf("Expected 1 flush for the ack, got %d", flushes)
	}

	ack := out.Result()
	if len(ack) != MessageLengthMin {
		t.Fatalf("Expected a %d byte ack, got %d bytes", MessageLengthMin, len(ack))
	}
	if ack[MessagePositionSeq] != MessageDest+1 {
		t.Errorf("Expected ack sequence 0x%02X, got 0x%02X", MessageDest+1, ack[MessagePositionSeq])
	}
	crc := CRC16(ack[:MessageHeaderSize])
	if ack[2] != uint8(crc>>8) || ack[3] != uint8(crc&0xFF) {
		t.Errorf("Ack CRC mismatch: % X", ack)
	}
	if ack[4] != MessageValueSync {
		t.Errorf("Expected trailing sync byte, got 0x%02X", ack[4])
	}
}

func TestReceiveBadCRCResyncs(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})
	desyncs := 0
	link.SetDesyncCallback(func() { desyncs++ })

	frame := buildCommand(MessageDest, encodePayload(2))
	frame[len(frame)-2] ^= 0xFF // corrupt the low CRC byte

	in := NewSliceInputBuffer(frame)
	link.Receive(in)

	if calls != 0 {
		t.Errorf("Expected no dispatch on a corrupt frame, got %d calls", calls)
	}
	if desyncs != 1 {
		t.Errorf("Expected 1 desync, got %d", desyncs)
	}
	if in.Available() != 0 {
		t.Errorf("Expected corrupt bytes discarded, %d left", in.Available())
	}

	// The scan for the next sync byte lands on the frame's own trailer
	// and the link answers with a NAK-style ack for the old sequence.
	ack := out.Result()
	if len(ack) != MessageLengthMin {
		t.Fatalf("Expected a resync ack, got %d bytes", len(ack))
	}
	if ack[MessagePositionSeq] != MessageDest {
		t.Errorf("Expected ack sequence 0x%02X, got 0x%02X", MessageDest, ack[MessagePositionSeq])
	}
}

func TestReceiveSequenceMismatchNaks(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})

	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest|3, encodePayload(2))))

	if calls != 0 {
		t.Errorf("Expected no dispatch on a sequence mismatch, got %d calls", calls)
	}

	ack := out.Result()
	if len(ack) != MessageLengthMin {
		t.Fatalf("Expected an ack, got %d bytes", len(ack))
	}
	if ack[MessagePositionSeq] != MessageDest {
		t.Errorf("Expected nak to carry 0x%02X, got 0x%02X", MessageDest, ack[MessagePositionSeq])
	}
}

func TestReceiveHostReset(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})
	resets := 0
	link.SetResetCallback(func() { resets++ })

	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(2))))
	out.Reset()

	// The host restarts and begins again at the initial sequence.
	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(2))))

	if calls != 2 {
		t.Errorf("Expected both frames dispatched, got %d calls", calls)
	}
	if resets != 1 {
		t.Errorf("Expected 1 reset, got %d", resets)
	}

	ack := out.Result()
	if len(ack) != MessageLengthMin || ack[MessagePositionSeq] != MessageDest+1 {
		t.Errorf("Expected ack sequence 0x%02X after reset, got % X", MessageDest+1, ack)
	}
}

func TestReceivePartialFrameWaits(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})

	fifo := NewFifoBuffer(64)
	frame := buildCommand(MessageDest, encodePayload(2))

	fifo.Write(frame[:3])
	link.Receive(fifo)
	if calls != 0 {
		t.Fatalf("Expected no dispatch on a partial frame, got %d", calls)
	}
	if fifo.Available() != 3 {
		t.Errorf("Expected partial bytes retained, got %d", fifo.Available())
	}

	fifo.Write(frame[3:])
	link.Receive(fifo)
	if calls != 1 {
		t.Errorf("Expected dispatch once the frame completed, got %d calls", calls)
	}
	if fifo.Available() != 0 {
		t.Errorf("Expected input drained, %d left", fifo.Available())
	}
}

func TestReceiveSkipsIdleSyncBytes(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})

	data := append([]byte{MessageValueSync, MessageValueSync}, buildCommand(MessageDest, encodePayload(2))...)
	link.Receive(NewSliceInputBuffer(data))

	if calls != 1 {
		t.Errorf("Expected 1 dispatch, got %d", calls)
	}
}

func TestSendFrameRoundtrip(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, nil)
	flushes := 0
	link.SetFlushCallback(func() { flushes++ })

	link.Send(9, func(output OutputBuffer) {
		EncodeVLQUint(output, 7)
		EncodeVLQInt(output, -3)
	})

	frame := out.Result()
	if int(frame[MessagePositionLen]) != len(frame) {
		t.Fatalf("Expected length byte %d, got %d", len(frame), frame[MessagePositionLen])
	}
	if frame[MessagePositionSeq] != MessageDest {
		t.Errorf("Expected sequence 0x%02X, got 0x%02X", MessageDest, frame[MessagePositionSeq])
	}

	crc := CRC16(frame[:len(frame)-MessageTrailerSize])
	if frame[len(frame)-3] != uint8(crc>>8) || frame[len(frame)-2] != uint8(crc&0xFF) {
		t.Errorf("Frame CRC mismatch: % X", frame)
	}
	if frame[len(frame)-1] != MessageValueSync {
		t.Errorf("Expected trailing sync byte, got 0x%02X", frame[len(frame)-1])
	}
	if flushes != 1 {
		t.Errorf("Expected 1 flush, got %d", flushes)
	}

	payload := frame[MessageHeaderSize : len(frame)-MessageTrailerSize]
	id, err := DecodeVLQUint(&payload)
	if err != nil || id != 9 {
		t.Fatalf("Expected message id 9, got %d (err %v)", id, err)
	}
	a, _ := DecodeVLQUint(&payload)
	if a != 7 {
		t.Errorf("Expected first argument 7, got %d", a)
	}
	b, _ := DecodeVLQInt(&payload)
	if b != -3 {
		t.Errorf("Expected second argument -3, got %d", b)
	}
	if len(payload) != 0 {
		t.Errorf("Expected payload fully decoded, %d bytes left", len(payload))
	}
}

func TestHandlerPanicDropsSync(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, func(id uint16, data *[]byte) error {
		panic("handler exploded")
	})
	desyncs := 0
	link.SetDesyncCallback(func() { desyncs++ })

	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(2))))

	if desyncs != 1 {
		t.Errorf("Expected a panicking handler to drop sync, got %d desyncs", desyncs)
	}

	// The sequence advanced before dispatch, so the ack still goes out
	// and carries the new expectation.
	ack := out.Result()
	if len(ack) != MessageLengthMin {
		t.Fatalf("Expected an ack, got %d bytes", len(ack))
	}
	if ack[MessagePositionSeq] != MessageDest+1 {
		t.Errorf("Expected ack sequence 0x%02X, got 0x%02X", MessageDest+1, ack[MessagePositionSeq])
	}
}

func TestEncodeFrameDoesNotFlush(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, nil)
	flushes := 0
	link.SetFlushCallback(func() { flushes++ })

	link.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, 3)
	})

	if flushes != 0 {
		t.Errorf("Expected EncodeFrame to leave flushing to the caller, got %d", flushes)
	}
	if len(out.Result()) == 0 {
		t.Error("Expected an encoded frame in the buffer")
	}
}

func TestLinkReset(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, func(id uint16, data *[]byte) error { return nil })
	resets := 0
	link.SetResetCallback(func() { resets++ })

	// Advance the sequence, then lose framing on a bad length byte.
	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(2))))
	link.Receive(NewSliceInputBuffer([]byte{0x01, 0x10, 0x00, 0x00, 0x00}))
	if link.getSynchronized() {
		t.Fatal("Expected the link out of sync after a bad length byte")
	}

	link.Reset()
	if !link.getSynchronized() {
		t.Error("Expected Reset to restore sync")
	}
	if resets != 1 {
		t.Errorf("Expected 1 reset callback, got %d", resets)
	}

	// Back to the initial sequence.
	out.Reset()
	calls := 0
	link.dispatch = func(id uint16, data *[]byte) error {
		calls++
		return nil
	}
	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, encodePayload(2))))
	if calls != 1 {
		t.Errorf("Expected dispatch after reset, got %d calls", calls)
	}
}

// A frame can pack several messages back to back; each handler consumes
// its own arguments.
func TestReceiveMultipleMessagesPerFrame(t *testing.T) {
	out := NewScratchOutput()
	var got []uint16
	link := NewLink(out, func(id uint16, data *[]byte) error {
		got = append(got, id)
		if id == 4 {
			if _, err := DecodeVLQUint(data); err != nil {
				return err
			}
		}
		return nil
	})

	payload := encodePayload(2)
	payload = append(payload, encodePayload(4, 500)...)
	link.Receive(NewSliceInputBuffer(buildCommand(MessageDest, payload)))

	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("Expected messages [2 4], got %v", got)
	}
}
