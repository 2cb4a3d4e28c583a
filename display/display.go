// Package display renders the rider-facing screens on a small OLED.
// Rendering is pure drawing over a Device; wiring the actual I2C module
// lives in the target code.
package display

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freesans"
)

// Device is the drawing surface: a standard displayer plus the buffer
// clear the ssd1306 driver offers.
type Device interface {
	drivers.Displayer
	ClearBuffer()
}

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// bigGlyphWidth approximates one digit of the large font, used to
// center the gesture count.
const bigGlyphWidth = 31

// Screen draws the three screens the control loop cycles through.
// Render errors bubble up; the loop counts them and keeps going.
type Screen struct {
	dev Device
}

func NewScreen(dev Device) *Screen {
	return &Screen{dev: dev}
}

// ShowRateSpeed draws the cruising screen: engine rate in thousands
// with one decimal up top, road speed below.
func (s *Screen) ShowRateSpeed(rpm, kmh int32) error {
	s.dev.ClearBuffer()
	tinyfont.WriteLine(s.dev, &freesans.Regular12pt7b, 10, 24, tenths(rpm/100)+" rpm", white)
	tinyfont.WriteLine(s.dev, &freesans.Regular12pt7b, 10, 56, itoa(kmh)+" km/h", white)
	return s.dev.Display()
}

// ShowGesture draws a completed click count big in the middle, where it
// stays readable for the gesture pause.
func (s *Screen) ShowGesture(count int32) error {
	s.dev.ClearBuffer()
	x := int16(124/2 - bigGlyphWidth)
	if count < 10 {
		x = (124 - bigGlyphWidth) / 2
	}
	tinyfont.WriteLine(s.dev, &freesans.Bold24pt7b, x, 44, itoa(count), white)
	return s.dev.Display()
}

// ShowFault draws a latched fault code. The screen stays up because the
// loop stops evaluating after a fault.
func (s *Screen) ShowFault(code uint8) error {
	s.dev.ClearBuffer()
	tinyfont.WriteLine(s.dev, &freesans.Regular12pt7b, 10, 38, "FAULT "+itoa(int32(code)), white)
	return s.dev.Display()
}
