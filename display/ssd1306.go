//go:build tinygo

package display

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ssd1306"
)

// The stock module: 128x64 pixels on I2C at the usual address.
const (
	Width   = 128
	Height  = 64
	Address = 0x3C
)

// NewSSD1306 configures the OLED on an already configured I2C bus and
// blanks it. The returned device satisfies Device.
func NewSSD1306(bus drivers.I2C) *ssd1306.Device {
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Address: Address,
		Width:   Width,
		Height:  Height,
	})
	dev.ClearDisplay()
	return &dev
}
