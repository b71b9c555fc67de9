package sensors

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

type fakeSampler struct {
	v   physic.ElectricPotential
	err error
}

func (f *fakeSampler) Read() (analog.Sample, error) {
	return analog.Sample{V: f.v}, f.err
}

func TestADC(t *testing.T) {
	testData := []struct {
		v      physic.ElectricPotential
		invert bool
		want   uint8
	}{
		{v: 0, want: 0},
		{v: physic.Volt, want: 77},
		{v: 3300 * physic.MilliVolt, want: 255},
		{v: 5 * physic.Volt, want: 255},
		{v: -physic.Volt, want: 0},
		{v: 0, invert: true, want: 255},
		{v: 3300 * physic.MilliVolt, invert: true, want: 0},
	}
	for _, test := range testData {
		a := &ADC{pin: &fakeSampler{v: test.v}, Max: 3300 * physic.MilliVolt, Invert: test.invert}
		got, err := a.Light()
		if err != nil {
			t.Errorf("%v (invert=%v): unexpected error: %v", test.v, test.invert, err)
			continue
		}
		if want := test.want; got != want {
			t.Errorf("%v (invert=%v):\n  got: %v\n want: %v", test.v, test.invert, got, want)
		}
	}
}

func TestADCError(t *testing.T) {
	a := &ADC{pin: &fakeSampler{err: errors.New("bus fault")}, Max: physic.Volt}
	if _, err := a.Light(); err == nil {
		t.Error("expected error")
	}
}

func TestFixed(t *testing.T) {
	got, err := Fixed(42).Light()
	if err != nil {
		t.Fatal(err)
	}
	if want := uint8(42); got != want {
		t.Errorf("light:\n  got: %v\n want: %v", got, want)
	}
}

func TestCelsius(t *testing.T) {
	testData := []struct {
		in   physic.Temperature
		want float64
	}{
		{in: physic.ZeroCelsius, want: 0},
		{in: physic.ZeroCelsius + 25*physic.Kelvin, want: 25},
		{in: physic.ZeroCelsius - 10*physic.Kelvin, want: -10},
	}
	for _, test := range testData {
		if got, want := Celsius(test.in), test.want; math.Abs(got-want) > 1e-9 {
			t.Errorf("Celsius(%v):\n  got: %v\n want: %v", test.in, got, want)
		}
	}
}

func TestTSL2591(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			// device id
			{Addr: TSL2591DefaultAddr, W: []byte{0xb2}, R: []byte{0x50, 0x00}},
			// enable
			{Addr: TSL2591DefaultAddr, W: []byte{0xa0, 0x93}},
			// gain
			{Addr: TSL2591DefaultAddr, W: []byte{0xa1}, R: []byte{0x00, 0x00}},
			{Addr: TSL2591DefaultAddr, W: []byte{0xa1, 0x10}},
			// integration time
			{Addr: TSL2591DefaultAddr, W: []byte{0xa1}, R: []byte{0x10, 0x00}},
			{Addr: TSL2591DefaultAddr, W: []byte{0xa1, 0x11}},
			// dim room: chan0 = 0x0230
			{Addr: TSL2591DefaultAddr, W: []byte{0xb4}, R: []byte{0x30, 0x02}},
			{Addr: TSL2591DefaultAddr, W: []byte{0xb6}, R: []byte{0x10, 0x00}},
			// bright room: chan0 = 0x4000
			{Addr: TSL2591DefaultAddr, W: []byte{0xb4}, R: []byte{0x00, 0x40}},
			{Addr: TSL2591DefaultAddr, W: []byte{0xb6}, R: []byte{0x00, 0x10}},
		},
	}
	s, err := NewTSL2591(bus, MediumGain, IntegrationTime200ms)
	if err != nil {
		t.Fatalf("NewTSL2591: %v", err)
	}
	for i, test := range []struct {
		total, ir uint16
		want      uint8
	}{
		{total: 0x0230, ir: 0x0010, want: 255 - 0x23},
		{total: 0x4000, ir: 0x1000, want: 0},
	} {
		got, err := s.Light()
		if err != nil {
			t.Fatalf("reading %d: %v", i, err)
		}
		if got != test.want {
			t.Errorf("reading %d:\n  got: %v\n want: %v", i, got, test.want)
		}
		lux := testutil.ToFloat64(luxMetric)
		if want := s.Lux(test.total, test.ir); lux != want || lux <= 0 {
			t.Errorf("reading %d: lux gauge:\n  got: %v\n want: %v (> 0)", i, lux, want)
		}
	}
	if err := bus.Close(); err != nil {
		t.Errorf("playback: %v", err)
	}
}

func TestTSL2591WrongDevice(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: TSL2591DefaultAddr, W: []byte{0xb2}, R: []byte{0x60, 0x00}},
		},
	}
	if _, err := NewTSL2591(bus, LowGain, IntegrationTime100ms); err == nil {
		t.Error("expected error for wrong device id")
	}
}

func TestLux(t *testing.T) {
	s := &TSL2591{gain: LowGain, it: 100 * time.Millisecond}
	if got := s.Lux(0, 0); got != 0 {
		t.Errorf("lux in the dark:\n  got: %v\n want: 0", got)
	}
	if got := s.Lux(1000, 100); got <= 0 {
		t.Errorf("lux with light: got %v, want > 0", got)
	}
	if got := s.Lux(100, 1000); got != 0 {
		t.Errorf("lux with more infrared than total:\n  got: %v\n want: 0", got)
	}
	// 100ms at low gain is 0.245 counts per lux.
	if got, want := s.Lux(1000, 0), 1000/(100.0/408); math.Abs(got-want) > 1e-9 {
		t.Errorf("lux with no infrared:\n  got: %v\n want: %v", got, want)
	}
}
