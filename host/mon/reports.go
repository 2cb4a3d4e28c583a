package mon

import "mopo/telemetry"

// Decoded report payloads. Field order tracks the wire formats the
// firmware registers; the message ID has already been consumed.

type statusReport struct {
	UptimeMS uint32
	RPM      int32
	KMH      int32
	Mode     uint32
}

func decodeStatus(data *[]byte) (statusReport, error) {
	var s statusReport
	var err error
	if s.UptimeMS, err = telemetry.DecodeVLQUint(data); err != nil {
		return s, err
	}
	if s.RPM, err = telemetry.DecodeVLQInt(data); err != nil {
		return s, err
	}
	if s.KMH, err = telemetry.DecodeVLQInt(data); err != nil {
		return s, err
	}
	if s.Mode, err = telemetry.DecodeVLQUint(data); err != nil {
		return s, err
	}
	return s, nil
}

type edgeCounters struct {
	Accepted  uint32
	Bounced   uint32
	Overflows uint32
	Empty     uint32
}

type countersReport struct {
	Engine   edgeCounters
	Wheel    edgeCounters
	Odometer uint32
	Cycles   uint32
	Renders  uint32
}

func decodeCounters(data *[]byte) (countersReport, error) {
	var c countersReport
	fields := []*uint32{
		&c.Engine.Accepted, &c.Engine.Bounced, &c.Engine.Overflows, &c.Engine.Empty,
		&c.Wheel.Accepted, &c.Wheel.Bounced, &c.Wheel.Overflows, &c.Wheel.Empty,
		&c.Odometer, &c.Cycles, &c.Renders,
	}
	for _, f := range fields {
		v, err := telemetry.DecodeVLQUint(data)
		if err != nil {
			return c, err
		}
		*f = v
	}
	return c, nil
}

type modeChangeReport struct {
	From uint32
	To   uint32
	RPM  int32
	KMH  int32
}

func decodeModeChange(data *[]byte) (modeChangeReport, error) {
	var mc modeChangeReport
	var err error
	if mc.From, err = telemetry.DecodeVLQUint(data); err != nil {
		return mc, err
	}
	if mc.To, err = telemetry.DecodeVLQUint(data); err != nil {
		return mc, err
	}
	if mc.RPM, err = telemetry.DecodeVLQInt(data); err != nil {
		return mc, err
	}
	if mc.KMH, err = telemetry.DecodeVLQInt(data); err != nil {
		return mc, err
	}
	return mc, nil
}

type shutdownReport struct {
	Code   uint32
	Detail uint32
}

func decodeShutdown(data *[]byte) (shutdownReport, error) {
	var sd shutdownReport
	var err error
	if sd.Code, err = telemetry.DecodeVLQUint(data); err != nil {
		return sd, err
	}
	if sd.Detail, err = telemetry.DecodeVLQUint(data); err != nil {
		return sd, err
	}
	return sd, nil
}
