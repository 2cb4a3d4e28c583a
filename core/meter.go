package core

import "errors"

// RateFunc converts a drained batch of rounds intervals, summing to sumMS
// milliseconds, into a rate. Runs in the polling loop outside the
// interrupt mask.
type RateFunc func(rounds int32, sumMS int64) int32

// MeterConfig sizes a RateMeter.
type MeterConfig struct {
	// Capacity is the number of event slots buffered between polls.
	Capacity int

	// BounceMS disqualifies an edge arriving at or under this many
	// milliseconds after the last stored edge. The boundary is
	// exclusive: an edge must arrive strictly later to count.
	BounceMS int32

	// TrackTotal keeps a running total of every non-bounce edge, even
	// ones dropped on overflow. A dropped edge is still real travel.
	TrackTotal bool
}

// MeterStats is a diagnostic snapshot. These are counters, not faults;
// nothing here ever throttles the pipeline.
type MeterStats struct {
	Accepted   uint32
	Bounced    uint32
	Overflows  uint32
	EmptyPolls uint32
	Total      uint32
}

// RateMeter turns edge interrupts into an average rate. The interrupt
// side (OnEdge) filters bounces and stores timestamps into a fixed ring
// without allocating; the polling side (Average) drains the ring under a
// short interrupt mask and converts the accumulated intervals.
type RateMeter struct {
	events   []Ticks
	write    int
	read     int
	pending  int
	primed   bool
	baseline Ticks

	bounceMS   int32
	convert    RateFunc
	trackTotal bool

	accepted   uint32
	bounced    uint32
	overflows  uint32
	emptyPolls uint32
	total      uint32
}

func newRateMeter(cfg MeterConfig, convert RateFunc) (*RateMeter, error) {
	if cfg.Capacity < 1 {
		return nil, errors.New("meter capacity must be at least 1")
	}
	if cfg.BounceMS < 0 {
		return nil, errors.New("meter bounce threshold must not be negative")
	}
	if convert == nil {
		return nil, errors.New("meter conversion missing")
	}
	return &RateMeter{
		events:     make([]Ticks, cfg.Capacity),
		bounceMS:   cfg.BounceMS,
		convert:    convert,
		trackTotal: cfg.TrackTotal,
	}, nil
}

// NewRotationalMeter builds a meter reporting revolutions per minute from
// one event per revolution.
func NewRotationalMeter(cfg MeterConfig) (*RateMeter, error) {
	return newRateMeter(cfg, rotationalRate)
}

// NewDistanceMeter builds a meter reporting integer km/h from one event
// per distanceMM millimeters of travel. The calibration is mandatory:
// without it every speed and every limiter decision downstream would be
// silently wrong.
func NewDistanceMeter(cfg MeterConfig, distanceMM int32) (*RateMeter, error) {
	if distanceMM <= 0 {
		return nil, errors.New("meter distance per event required")
	}
	return newRateMeter(cfg, linearRate(distanceMM))
}

// rotationalRate is rounds*1000/avg*60 with avg = sumMS/rounds. Folding
// the average back in keeps the division exact: rounds*rounds*60000/sum.
func rotationalRate(rounds int32, sumMS int64) int32 {
	return int32(int64(rounds) * int64(rounds) * 60000 / sumMS)
}

// linearRate is rounds*distanceMM*10/avg/36 with avg = sumMS/rounds,
// folded the same way.
func linearRate(distanceMM int32) RateFunc {
	return func(rounds int32, sumMS int64) int32 {
		n := int64(rounds) * int64(rounds) * int64(distanceMM) * 10
		return int32(n / (sumMS * 36))
	}
}

// OnEdge records an edge timestamped now. Interrupt context: no
// allocation, no blocking. The very first edge only primes the meter; it
// seeds the ring and the drain baseline but leaves nothing pending, so a
// drain sees exactly the intervals between later edges.
func (m *RateMeter) OnEdge(now Ticks) {
	if !m.primed {
		m.primed = true
		m.write = 0
		m.events[0] = now
		m.read = 1 % len(m.events)
		m.baseline = now
		m.accepted++
		if m.trackTotal {
			m.total++
		}
		return
	}

	if TicksDiff(now, m.events[m.write]) <= m.bounceMS {
		m.bounced++
		return
	}
	if m.trackTotal {
		m.total++
	}
	if m.pending >= len(m.events) {
		// Full: drop the newest and keep the bounce reference where
		// it is. Occupancy never exceeds capacity.
		m.overflows++
		return
	}

	m.write = (m.write + 1) % len(m.events)
	m.events[m.write] = now
	m.pending++
	m.accepted++
}

// Average drains every pending event and returns the converted rate, or
// 0 when nothing arrived since the last poll. Polling context; the drain
// itself runs under the interrupt mask, the conversion after it.
func (m *RateMeter) Average() int32 {
	var sum int64

	state := disableInterrupts()
	rounds := int32(m.pending)
	for m.pending > 0 {
		ts := m.events[m.read]
		m.read = (m.read + 1) % len(m.events)
		m.pending--
		sum += int64(TicksDiff(ts, m.baseline))
		m.baseline = ts
	}
	restoreInterrupts(state)

	if rounds == 0 {
		m.emptyPolls++
		return 0
	}
	// sum > 0 whenever rounds > 0: every stored interval beat the
	// bounce threshold, so the divisions below cannot see zero.
	return m.convert(rounds, sum)
}

// ResetStats zeroes the diagnostic counters, the running total
// included. Pending events and the bounce reference stay put.
func (m *RateMeter) ResetStats() {
	state := disableInterrupts()
	m.accepted = 0
	m.bounced = 0
	m.overflows = 0
	m.emptyPolls = 0
	m.total = 0
	restoreInterrupts(state)
}

// Stats snapshots the diagnostic counters.
func (m *RateMeter) Stats() MeterStats {
	state := disableInterrupts()
	s := MeterStats{
		Accepted:   m.accepted,
		Bounced:    m.bounced,
		Overflows:  m.overflows,
		EmptyPolls: m.emptyPolls,
		Total:      m.total,
	}
	restoreInterrupts(state)
	return s
}
