package display

import (
	"errors"
	"image/color"
	"testing"
)

type fakeDevice struct {
	clears   int
	displays int
	pixels   int
	minX     int16
	failShow bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{minX: 999}
}

func (d *fakeDevice) Size() (int16, int16) { return 128, 64 }

func (d *fakeDevice) SetPixel(x, y int16, c color.RGBA) {
	d.pixels++
	if x < d.minX {
		d.minX = x
	}
}

func (d *fakeDevice) Display() error {
	d.displays++
	if d.failShow {
		return errors.New("i2c write failed")
	}
	return nil
}

func (d *fakeDevice) ClearBuffer() {
	d.clears++
	d.pixels = 0
	d.minX = 999
}

func TestItoa(t *testing.T) {
	testCases := []struct {
		n    int32
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-3, "-3"},
		{42, "42"},
		{-120, "-120"},
		{12345, "12345"},
	}
	for _, tc := range testCases {
		if got := itoa(tc.n); got != tc.want {
			t.Errorf("itoa(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestTenths(t *testing.T) {
	testCases := []struct {
		n    int32
		want string
	}{
		{0, "0.0"},
		{53, "5.3"},
		{50, "5.0"},
		{123, "12.3"},
		{-7, "-0.7"},
	}
	for _, tc := range testCases {
		if got := tenths(tc.n); got != tc.want {
			t.Errorf("tenths(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestShowRateSpeed(t *testing.T) {
	dev := newFakeDevice()
	s := NewScreen(dev)

	if err := s.ShowRateSpeed(5300, 12); err != nil {
		t.Fatalf("ShowRateSpeed failed: %v", err)
	}
	if dev.clears != 1 {
		t.Errorf("Expected 1 buffer clear, got %d", dev.clears)
	}
	if dev.displays != 1 {
		t.Errorf("Expected 1 display flush, got %d", dev.displays)
	}
	if dev.pixels == 0 {
		t.Error("Expected pixels drawn")
	}
}

func TestShowGestureCentersSingleDigit(t *testing.T) {
	dev := newFakeDevice()
	s := NewScreen(dev)

	if err := s.ShowGesture(3); err != nil {
		t.Fatalf("ShowGesture failed: %v", err)
	}
	single := dev.minX

	if err := s.ShowGesture(12); err != nil {
		t.Fatalf("ShowGesture failed: %v", err)
	}
	double := dev.minX

	// A single digit starts further right than a two digit count.
	if single <= double {
		t.Errorf("Expected single digit at x > two digits, got %d <= %d", single, double)
	}
}

func TestShowFault(t *testing.T) {
	dev := newFakeDevice()
	s := NewScreen(dev)

	if err := s.ShowFault(1); err != nil {
		t.Fatalf("ShowFault failed: %v", err)
	}
	if dev.displays != 1 || dev.pixels == 0 {
		t.Errorf("Expected a rendered fault screen, displays=%d pixels=%d", dev.displays, dev.pixels)
	}
}

func TestRenderErrorPropagates(t *testing.T) {
	dev := newFakeDevice()
	dev.failShow = true
	s := NewScreen(dev)

	if err := s.ShowRateSpeed(0, 0); err == nil {
		t.Error("Expected the display error to reach the caller")
	}
}
