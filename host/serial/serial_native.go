//go:build !wasm

package serial

import (
	"errors"
	"fmt"

	"github.com/tarm/serial"
)

// nativePort wraps a tarm/serial port.
type nativePort struct {
	port *serial.Port
}

// Open opens the device. Zero config values are replaced with the
// defaults before the port is touched.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial config required")
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &nativePort{port: p}, nil
}

func (p *nativePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *nativePort) Write(b []byte) (int, error) { return p.port.Write(b) }

func (p *nativePort) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}
