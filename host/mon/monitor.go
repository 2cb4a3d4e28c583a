package mon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mopo/telemetry"
)

// The identify pair is pinned by the protocol: the host cannot know
// any other ID before it has the dictionary.
const (
	idIdentifyResponse uint16 = 0
	idIdentify         uint16 = 1
)

// identifyChunkSize is how much dictionary one identify round fetches.
// A short chunk marks the end.
const identifyChunkSize = 40

const identifyTimeout = 2 * time.Second

// Monitor drives one controller connection: dictionary bootstrap,
// report streaming and scheduled polling.
type Monitor struct {
	link *telemetry.HostLink
	log  *slog.Logger

	info       *DeviceInfo
	respNames  map[uint16]string
	modeNames  []string
	faultNames []string

	idGetStatus     uint16
	idGetCounters   uint16
	idResetCounters uint16

	hasGetStatus     bool
	hasGetCounters   bool
	hasResetCounters bool
}

// New wraps an open link. Identify must run before Run or any poll.
func New(link *telemetry.HostLink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{link: link, log: logger}
}

// Info returns the dictionary decoded by Identify, nil before that.
func (m *Monitor) Info() *DeviceInfo { return m.info }

// Identify fetches the identity dictionary chunk by chunk, decodes it
// and binds the vocabulary the monitor logs with.
func (m *Monitor) Identify() (*DeviceInfo, error) {
	raw, err := m.fetchDictionary()
	if err != nil {
		return nil, err
	}
	info, err := ParseDictionary(raw)
	if err != nil {
		return nil, err
	}
	m.bind(info)
	return info, nil
}

func (m *Monitor) fetchDictionary() ([]byte, error) {
	var raw []byte
	offset := uint32(0)
	for {
		off := offset
		err := m.link.SendCommand(idIdentify, func(out telemetry.OutputBuffer) {
			telemetry.EncodeVLQUint(out, off)
			telemetry.EncodeVLQUint(out, identifyChunkSize)
		})
		if err != nil {
			return nil, fmt.Errorf("identify at offset %d: %w", off, err)
		}
		chunk, err := m.awaitChunk(off)
		if err != nil {
			return nil, err
		}
		raw = append(raw, chunk...)
		if len(chunk) < identifyChunkSize {
			return raw, nil
		}
		offset += uint32(len(chunk))
	}
}

// awaitChunk waits for the identify_response matching the requested
// offset. Unsolicited reports and stale retransmits race the bootstrap
// and are skipped, not errors.
func (m *Monitor) awaitChunk(want uint32) ([]byte, error) {
	deadline := time.Now().Add(identifyTimeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, errors.New("identify response timed out")
		}
		frame, err := m.link.ReceiveResponse(remain)
		if err != nil {
			if errors.Is(err, telemetry.ErrClosed) {
				return nil, err
			}
			return nil, errors.New("identify response timed out")
		}
		data := frame.Payload
		id, err := telemetry.DecodeVLQUint(&data)
		if err != nil || uint16(id) != idIdentifyResponse {
			continue
		}
		offset, err := telemetry.DecodeVLQUint(&data)
		if err != nil {
			continue
		}
		chunk, err := telemetry.DecodeVLQBytes(&data)
		if err != nil {
			continue
		}
		if offset != want {
			continue
		}
		return chunk, nil
	}
}

func (m *Monitor) bind(info *DeviceInfo) {
	m.info = info
	m.respNames = info.ResponseNames()
	m.modeNames = info.EnumNames("mode")
	m.faultNames = info.EnumNames("fault")
	m.idGetStatus, m.hasGetStatus = info.CommandID("get_status")
	m.idGetCounters, m.hasGetCounters = info.CommandID("get_counters")
	m.idResetCounters, m.hasResetCounters = info.CommandID("reset_counters")
}

// PollStatus asks the controller for one status report. The report
// arrives asynchronously like any other.
func (m *Monitor) PollStatus() error {
	if !m.hasGetStatus {
		return errors.New("controller does not expose get_status")
	}
	return m.link.SendCommand(m.idGetStatus, nil)
}

// PollCounters asks for one counters report.
func (m *Monitor) PollCounters() error {
	if !m.hasGetCounters {
		return errors.New("controller does not expose get_counters")
	}
	return m.link.SendCommand(m.idGetCounters, nil)
}

// ResetCounters clears the trip statistics on the controller.
func (m *Monitor) ResetCounters() error {
	if !m.hasResetCounters {
		return errors.New("controller does not expose reset_counters")
	}
	return m.link.SendCommand(m.idResetCounters, nil)
}

// Run streams reports until the context ends or the link closes. The
// poll intervals schedule the periodic queries; zero disables one.
func (m *Monitor) Run(ctx context.Context, statusEvery, countersEvery time.Duration) error {
	if m.info == nil {
		return errors.New("identify the controller before running")
	}

	statusC, stopStatus := pollTicker(statusEvery)
	defer stopStatus()
	countersC, stopCounters := pollTicker(countersEvery)
	defer stopCounters()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-statusC:
			if err := m.PollStatus(); err != nil {
				m.log.Warn("status poll failed", "error", err)
			}
		case <-countersC:
			if err := m.PollCounters(); err != nil {
				m.log.Warn("counters poll failed", "error", err)
			}
		default:
			frame, err := m.link.ReceiveResponse(250 * time.Millisecond)
			if err != nil {
				if errors.Is(err, telemetry.ErrClosed) {
					return err
				}
				continue
			}
			m.logReport(frame)
		}
	}
}

// pollTicker returns a nil channel for a disabled interval; a nil
// channel never fires in the select.
func pollTicker(every time.Duration) (<-chan time.Time, func()) {
	if every <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(every)
	return t.C, t.Stop
}

// logReport decodes one report through the bound vocabulary and logs
// it. Reports the vocabulary does not cover drop to debug level.
func (m *Monitor) logReport(frame *telemetry.Frame) {
	data := frame.Payload
	id, err := telemetry.DecodeVLQUint(&data)
	if err != nil {
		m.log.Warn("unreadable report", "error", err)
		return
	}

	switch m.respNames[uint16(id)] {
	case "status":
		s, err := decodeStatus(&data)
		if err != nil {
			m.log.Warn("bad status report", "error", err)
			return
		}
		m.log.Info("status",
			"uptime_ms", s.UptimeMS,
			"rpm", s.RPM,
			"kmh", s.KMH,
			"mode", enumName(m.modeNames, s.Mode))

	case "counters":
		c, err := decodeCounters(&data)
		if err != nil {
			m.log.Warn("bad counters report", "error", err)
			return
		}
		m.log.Info("counters",
			"engine_accepted", c.Engine.Accepted,
			"engine_bounced", c.Engine.Bounced,
			"engine_overflows", c.Engine.Overflows,
			"engine_empty", c.Engine.Empty,
			"wheel_accepted", c.Wheel.Accepted,
			"wheel_bounced", c.Wheel.Bounced,
			"wheel_overflows", c.Wheel.Overflows,
			"wheel_empty", c.Wheel.Empty,
			"odometer", c.Odometer,
			"cycles", c.Cycles,
			"renders", c.Renders)

	case "mode_change":
		mc, err := decodeModeChange(&data)
		if err != nil {
			m.log.Warn("bad mode_change report", "error", err)
			return
		}
		m.log.Info("mode change",
			"from", enumName(m.modeNames, mc.From),
			"to", enumName(m.modeNames, mc.To),
			"rpm", mc.RPM,
			"kmh", mc.KMH)

	case "gesture":
		count, err := telemetry.DecodeVLQInt(&data)
		if err != nil {
			m.log.Warn("bad gesture report", "error", err)
			return
		}
		m.log.Info("gesture", "count", count)

	case "shutdown":
		sd, err := decodeShutdown(&data)
		if err != nil {
			m.log.Warn("bad shutdown report", "error", err)
			return
		}
		m.log.Error("controller shutdown",
			"fault", enumName(m.faultNames, sd.Code),
			"detail", sd.Detail)

	case "identify_response":
		// Late retransmit from the bootstrap, nothing to do.

	default:
		m.log.Debug("unhandled report", "id", id, "bytes", len(frame.Payload))
	}
}

func enumName(names []string, v uint32) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return strconv.FormatUint(uint64(v), 10)
}
