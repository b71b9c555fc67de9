// Package pins drives the display and reads the switches through periph.io GPIO pins.
package pins

import (
	"errors"
	"fmt"

	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/segment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var gpioErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gpio_errors",
	Help: "count of failed writes to display GPIO lines; these are otherwise ignored",
})

// Pins is a display.GPIO backed by real pins.  Segments are driven directly (8 lines, a-g then
// the decimal point) and digits are selected with one line each, typically through a transistor
// that makes the select line active-low.  Switches are read with the internal pull-up enabled, so
// a switch that shorts its pin to ground reads low when pressed.
type Pins struct {
	segments          [8]gpio.PinOut
	digits            [display.Digits]gpio.PinOut
	switches          [display.NumSwitches]gpio.PinIn
	segmentsActiveLow bool
	digitsActiveLow   bool

	last    segment.Code
	written bool
}

// Opts selects pins by their gpioreg names.
type Opts struct {
	Segments          []string // a, b, c, d, e, f, g, dp
	Digits            []string // leftmost first
	Switches          []string // S1, S2
	SegmentsActiveLow bool
	DigitsActiveLow   bool
}

// ByName looks up each named pin.
func ByName(names []string) ([]gpio.PinIO, error) {
	result := make([]gpio.PinIO, len(names))
	for i, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no gpio pin named %q", name)
		}
		result[i] = p
	}
	return result, nil
}

// New looks up and configures the pins named in opts.  The display starts blank.
func New(opts Opts) (*Pins, error) {
	if got, want := len(opts.Segments), 8; got != want {
		return nil, fmt.Errorf("need %d segment pins, got %d", want, got)
	}
	if got, want := len(opts.Digits), display.Digits; got != want {
		return nil, fmt.Errorf("need %d digit pins, got %d", want, got)
	}
	if got, want := len(opts.Switches), int(display.NumSwitches); got != want {
		return nil, fmt.Errorf("need %d switch pins, got %d", want, got)
	}
	p := &Pins{segmentsActiveLow: opts.SegmentsActiveLow, digitsActiveLow: opts.DigitsActiveLow}

	segs, err := ByName(opts.Segments)
	if err != nil {
		return nil, fmt.Errorf("segments: %w", err)
	}
	for i, pin := range segs {
		p.segments[i] = pin
		if err := pin.Out(gpio.Level(opts.SegmentsActiveLow)); err != nil {
			return nil, fmt.Errorf("segment %c: configure %s: %w", "abcdefg."[i], pin, err)
		}
	}

	digits, err := ByName(opts.Digits)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	for i, pin := range digits {
		p.digits[i] = pin
		if err := pin.Out(gpio.Level(opts.DigitsActiveLow)); err != nil {
			return nil, fmt.Errorf("digit %d: configure %s: %w", i, pin, err)
		}
	}

	switches, err := ByName(opts.Switches)
	if err != nil {
		return nil, fmt.Errorf("switches: %w", err)
	}
	for i, pin := range switches {
		p.switches[i] = pin
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("switch %v: configure %s: %w", display.Switch(i), pin, err)
		}
	}
	return p, nil
}

// out drives pin and reports whether the write succeeded.
func out(pin gpio.PinOut, on, activeLow bool) bool {
	if err := pin.Out(gpio.Level(on != activeLow)); err != nil {
		gpioErrorsCounter.Inc()
		return false
	}
	return true
}

// SetSegments implements display.Outputs.  Lines that already have the right level are not
// rewritten; after a failed write, every line is rewritten on the next call.
func (p *Pins) SetSegments(code segment.Code) {
	ok := true
	for i, pin := range p.segments {
		bit := segment.Code(1 << i)
		if p.written && p.last&bit == code&bit {
			continue
		}
		if !out(pin, code&bit != 0, p.segmentsActiveLow) {
			ok = false
		}
	}
	p.last = code
	p.written = ok
}

// SelectDigit implements display.Outputs.
func (p *Pins) SelectDigit(d int) {
	out(p.digits[d], true, p.digitsActiveLow)
}

// DeselectAll implements display.Outputs.
func (p *Pins) DeselectAll() {
	for _, pin := range p.digits {
		out(pin, false, p.digitsActiveLow)
	}
}

// ReadSwitch implements display.Inputs.
func (p *Pins) ReadSwitch(s display.Switch) bool {
	return p.switches[s].Read() == gpio.High
}

// Blank turns off every segment and digit, for shutdown.
func (p *Pins) Blank() error {
	var errs []error
	for i, pin := range p.digits {
		if err := pin.Out(gpio.Level(p.digitsActiveLow)); err != nil {
			errs = append(errs, fmt.Errorf("digit %d: %w", i, err))
		}
	}
	for i, pin := range p.segments {
		if err := pin.Out(gpio.Level(p.segmentsActiveLow)); err != nil {
			errs = append(errs, fmt.Errorf("segment %c: %w", "abcdefg."[i], err))
		}
	}
	p.written = false
	return errors.Join(errs...)
}

// Line is a single output line, like the heartbeat relay.
type Line struct {
	pin       gpio.PinOut
	activeLow bool
}

// NewLine looks up and configures the named pin, initially off.
func NewLine(name string, activeLow bool) (*Line, error) {
	pins, err := ByName([]string{name})
	if err != nil {
		return nil, err
	}
	l := &Line{pin: pins[0], activeLow: activeLow}
	if err := l.Set(false); err != nil {
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}
	return l, nil
}

// Set turns the line on or off.
func (l *Line) Set(on bool) error {
	if err := l.pin.Out(gpio.Level(on != l.activeLow)); err != nil {
		return fmt.Errorf("set %s: %w", l.pin, err)
	}
	return nil
}
