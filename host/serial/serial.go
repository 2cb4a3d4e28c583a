// Package serial opens the USB console the controller exposes.
package serial

import (
	"io"
	"time"
)

// Port is a byte stream to the controller. Reads must return within a
// bounded time instead of blocking forever; the link reader depends on
// that to notice shutdown.
type Port interface {
	io.ReadWriteCloser
}

const (
	// DefaultBaud is carried through to the OS but the console is USB
	// CDC, which ignores line speed.
	DefaultBaud = 115200

	// DefaultReadTimeout bounds each Read call.
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config selects the device node and read behavior.
type Config struct {
	// Device is the port path, "/dev/ttyACM0" on a stock setup.
	Device string

	// Baud is the requested line speed. Zero picks DefaultBaud.
	Baud int

	// ReadTimeout bounds each Read call. Zero picks the default; a
	// fully blocking port would wedge the link reader on close.
	ReadTimeout time.Duration
}

// DefaultConfig fills the standard settings for a device path.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
