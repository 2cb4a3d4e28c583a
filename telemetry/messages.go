package telemetry

import (
	"sync/atomic"

	"mopo/core"
)

// Sources are the firmware objects the query handlers read.
type Sources struct {
	Engine *core.RateMeter
	Wheel  *core.RateMeter
	Loop   *core.ControlLoop
}

// Messages binds the message set to a link: handlers for host queries,
// senders for unsolicited reports. It implements core.Reporter, so the
// control loop streams events without knowing the wire format.
type Messages struct {
	link *Link
	dict *Dictionary
	src  Sources

	idIdentifyResponse uint16
	idStatus           uint16
	idCounters         uint16
	idModeChange       uint16
	idGesture          uint16
	idShutdown         uint16

	// Last reported readings, kept so get_status answers immediately
	// instead of waiting for the next loop cycle.
	lastRPM  int32  // atomic
	lastKMH  int32  // atomic
	lastMode uint32 // atomic
}

var _ core.Reporter = (*Messages)(nil)

// NewMessages registers the message vocabulary and wires the query
// handlers. The identify pair must land on IDs 0 and 1; the host
// hardcodes those to bootstrap before it has the dictionary.
func NewMessages(link *Link, reg *Registry, dict *Dictionary, src Sources) *Messages {
	m := &Messages{
		link: link,
		dict: dict,
		src:  src,
	}

	m.idIdentifyResponse = reg.Response("identify_response", "offset=%u data=%*s")
	reg.Register("identify", "offset=%u count=%c", m.handleIdentify)

	reg.Register("get_status", "", m.handleGetStatus)
	m.idStatus = reg.Response("status", "uptime=%u rpm=%i kmh=%i mode=%c")

	reg.Register("get_counters", "", m.handleGetCounters)
	m.idCounters = reg.Response("counters",
		"engine_accepted=%u engine_bounced=%u engine_overflows=%u engine_empty=%u "+
			"wheel_accepted=%u wheel_bounced=%u wheel_overflows=%u wheel_empty=%u "+
			"odometer=%u cycles=%u renders=%u")
	reg.Register("reset_counters", "", m.handleResetCounters)

	m.idModeChange = reg.Response("mode_change", "from=%c to=%c rpm=%i kmh=%i")
	m.idGesture = reg.Response("gesture", "count=%i")
	m.idShutdown = reg.Response("shutdown", "code=%c detail=%u")

	return m
}

// handleIdentify serves one chunk of the dictionary.
func (m *Messages) handleIdentify(data *[]byte) error {
	offset, err := DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := m.dict.GetChunk(offset, uint8(count))
	m.link.Send(m.idIdentifyResponse, func(output OutputBuffer) {
		EncodeVLQUint(output, offset)
		EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (m *Messages) handleGetStatus(data *[]byte) error {
	rpm := atomic.LoadInt32(&m.lastRPM)
	kmh := atomic.LoadInt32(&m.lastKMH)
	mode := core.LimiterMode(atomic.LoadUint32(&m.lastMode))
	m.sendStatus(rpm, kmh, mode)
	return nil
}

func (m *Messages) handleGetCounters(data *[]byte) error {
	eng := m.src.Engine.Stats()
	whl := m.src.Wheel.Stats()
	loop := m.src.Loop.Stats()

	m.link.Send(m.idCounters, func(output OutputBuffer) {
		EncodeVLQUint(output, eng.Accepted)
		EncodeVLQUint(output, eng.Bounced)
		EncodeVLQUint(output, eng.Overflows)
		EncodeVLQUint(output, eng.EmptyPolls)
		EncodeVLQUint(output, whl.Accepted)
		EncodeVLQUint(output, whl.Bounced)
		EncodeVLQUint(output, whl.Overflows)
		EncodeVLQUint(output, whl.EmptyPolls)
		EncodeVLQUint(output, whl.Total)
		EncodeVLQUint(output, loop.Cycles)
		EncodeVLQUint(output, loop.Renders)
	})
	return nil
}

// handleResetCounters zeroes the meter diagnostics, odometer included.
// Loop cycle counts keep running like an uptime.
func (m *Messages) handleResetCounters(data *[]byte) error {
	m.src.Engine.ResetStats()
	m.src.Wheel.ResetStats()
	return nil
}

func (m *Messages) sendStatus(rpm, kmh int32, mode core.LimiterMode) {
	m.link.Send(m.idStatus, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(core.Now()))
		EncodeVLQInt(output, rpm)
		EncodeVLQInt(output, kmh)
		EncodeVLQUint(output, uint32(mode))
	})
}

// Status implements core.Reporter.
func (m *Messages) Status(rpm, kmh int32, mode core.LimiterMode) {
	atomic.StoreInt32(&m.lastRPM, rpm)
	atomic.StoreInt32(&m.lastKMH, kmh)
	atomic.StoreUint32(&m.lastMode, uint32(mode))
	m.sendStatus(rpm, kmh, mode)
}

// Gesture implements core.Reporter.
func (m *Messages) Gesture(count int32) {
	m.link.Send(m.idGesture, func(output OutputBuffer) {
		EncodeVLQInt(output, count)
	})
}

// ModeChange implements core.Reporter.
func (m *Messages) ModeChange(from, to core.LimiterMode, rpm, kmh int32) {
	atomic.StoreUint32(&m.lastMode, uint32(to))
	m.link.Send(m.idModeChange, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(from))
		EncodeVLQUint(output, uint32(to))
		EncodeVLQInt(output, rpm)
		EncodeVLQInt(output, kmh)
	})
}

// Fault implements core.Reporter.
func (m *Messages) Fault(code uint8, detail uint32) {
	m.link.Send(m.idShutdown, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(code))
		EncodeVLQUint(output, detail)
	})
}
