// Package display multiplexes a four-digit seven-segment display and debounces its two
// push-buttons.
//
// A Controller owns all of the state shared between the tick handler (Tick, called at a fixed
// short period by package tick) and the main loop (SetDigit, SetLight, PollPress).  Digit slots and
// the light reading are single atomic words, so the main loop never blocks the tick handler to
// write them.  The switch histories and press counters are only touched while holding the
// controller's mutex; Tick holds it for its whole body, which stands in for the tick interrupt
// being unable to preempt itself, and PollPress holds it the way the main loop would disable
// interrupts around its read-then-reset.
//
// The four SetDigit calls that update the display are not a transaction.  A tick that lands
// between them shows some old digits and some new digits for one refresh; that flicker is not
// worth double-buffering for.
package display

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jrockway/segment-clock/control/segment"
)

const (
	// Digits is the number of digit positions; position 0 is the leftmost.
	Digits = 4

	// MinLitTick is the tick count above which a digit is lit regardless of the light reading,
	// which guarantees a duty cycle of at least 8/256.
	MinLitTick = 247

	// ShortPressWindows and LongPressWindows are press-duration thresholds in 256-tick windows.
	// A press held for more than ShortPressWindows is short, more than LongPressWindows is long.
	// At the default 87µs tick a window is about 22ms, so these are about 67ms and 2.8s.
	ShortPressWindows = 3
	LongPressWindows  = 128

	// WindowTicks is the number of ticks between press-counter updates.
	WindowTicks = 256
)

// Switch identifies one of the push-buttons.
type Switch int

const (
	S1 Switch = iota
	S2
	// NumSwitches is the number of push-buttons.
	NumSwitches
)

func (s Switch) String() string {
	switch s {
	case S1:
		return "S1"
	case S2:
		return "S2"
	default:
		return fmt.Sprintf("Switch(%d)", int(s))
	}
}

// Press is the result of polling a switch.
type Press int

const (
	PressNone Press = iota
	PressShort
	PressLong
)

func (p Press) String() string {
	switch p {
	case PressNone:
		return "none"
	case PressShort:
		return "short"
	case PressLong:
		return "long"
	default:
		return fmt.Sprintf("Press(%d)", int(p))
	}
}

// Outputs drives the segment and digit-select lines.  Implementations are called from the tick
// handler and must not block or allocate; errors are theirs to count and drop.
type Outputs interface {
	// SetSegments drives the eight segment lines (a-g and the decimal point) to code.
	SetSegments(code segment.Code)
	// SelectDigit asserts the select line of digit position d.
	SelectDigit(d int)
	// DeselectAll deasserts all digit-select lines.
	DeselectAll()
}

// Inputs reads the raw switch lines.
type Inputs interface {
	// ReadSwitch returns the raw level of the switch line; true is high.  Switches are active
	// low, so a pressed switch reads false.
	ReadSwitch(s Switch) bool
}

// GPIO is everything the Controller needs from the hardware.
type GPIO interface {
	Outputs
	Inputs
}

// Controller is the display buffer, multiplexer, and button debouncer.
type Controller struct {
	io GPIO

	buffer [Digits]atomic.Uint32 // each holds one segment.Code
	light  atomic.Uint32         // holds one uint8

	mu      sync.Mutex
	counter uint8              // must hold mu
	history [NumSwitches]uint8 // must hold mu
	presses [NumSwitches]uint8 // must hold mu
}

// New returns a Controller driving io.  The display starts blank and both switches start out
// released.
func New(io GPIO) *Controller {
	c := &Controller{io: io}
	for i := range c.history {
		c.history[i] = 0xff
	}
	return c
}

// SetDigit sets digit position pos to value v, with the decimal point lit if dp is true.  The slot
// is replaced in one atomic store.  It panics if pos or v is out of range.
func (c *Controller) SetDigit(pos int, v segment.Value, dp bool) {
	if pos < 0 || pos >= Digits {
		panic(fmt.Sprintf("display: digit position %d out of range", pos))
	}
	code := segment.CodeFor(v)
	if dp {
		code |= segment.DecimalPoint
	}
	c.buffer[pos].Store(uint32(code))
}

// Digit returns the code currently in digit position pos.
func (c *Controller) Digit(pos int) segment.Code {
	return segment.Code(c.buffer[pos].Load())
}

// SetLight records the most recent ambient-light reading; higher is darker.  The next tick uses
// it.
func (c *Controller) SetLight(v uint8) {
	c.light.Store(uint32(v))
}

// Light returns the most recent ambient-light reading.
func (c *Controller) Light() uint8 {
	return uint8(c.light.Load())
}

// Lit reports whether a digit is driven at tick count t under light reading light.  As t sweeps
// 0-255 a digit is lit for 255-light ticks, and never fewer than the 8 ticks above MinLitTick.
// Tick 0 is never lit, so even at light 0 the duty cycle is 255/256, not a full 256/256.
func Lit(t, light uint8) bool {
	return t > MinLitTick || t > light
}

// Tick runs one refresh step: it lights the next digit (or nothing, when dimmed), advances the
// tick counter, and samples both switches.  It is called at a fixed period by exactly one
// goroutine.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	digit := int(c.counter % Digits)
	c.io.DeselectAll()
	if Lit(c.counter, c.Light()) {
		c.io.SetSegments(segment.Code(c.buffer[digit].Load()))
		c.io.SelectDigit(digit)
	}
	c.counter++

	if c.counter == 0 {
		for i, h := range c.history {
			if h == 0 && c.presses[i] < 0xff {
				c.presses[i]++
			}
		}
	}
	for i := range c.history {
		var bit uint8
		if c.io.ReadSwitch(Switch(i)) {
			bit = 1
		}
		c.history[i] = c.history[i]<<1 | bit
	}
}

// PollPress reports how long switch s was held, once, after it is released.  While the switch is
// still held it reports PressNone and keeps counting.
func (c *Controller) PollPress(s Switch) Press {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.presses[s]
	result := PressNone
	switch {
	case n > LongPressWindows:
		result = PressLong
	case n > ShortPressWindows:
		result = PressShort
	}
	if c.history[s] == 0 {
		return PressNone
	}
	c.presses[s] = 0
	return result
}

// State is a copy of the controller's internal state, for debugging.
type State struct {
	Buffer  [Digits]segment.Code
	Light   uint8
	Counter uint8
	History [NumSwitches]uint8
	Presses [NumSwitches]uint8
}

// Snapshot returns the current State.
func (c *Controller) Snapshot() State {
	var s State
	for i := range s.Buffer {
		s.Buffer[i] = c.Digit(i)
	}
	s.Light = c.Light()
	c.mu.Lock()
	defer c.mu.Unlock()
	s.Counter = c.counter
	s.History = c.history
	s.Presses = c.presses
	return s
}

type mirror struct {
	GPIO
	mirrors []Outputs
}

// Mirror returns a GPIO that reads switches from io and sends every output to io and to each of
// mirrors, in order.
func Mirror(io GPIO, mirrors ...Outputs) GPIO {
	return &mirror{GPIO: io, mirrors: mirrors}
}

func (m *mirror) SetSegments(code segment.Code) {
	m.GPIO.SetSegments(code)
	for _, o := range m.mirrors {
		o.SetSegments(code)
	}
}

func (m *mirror) SelectDigit(d int) {
	m.GPIO.SelectDigit(d)
	for _, o := range m.mirrors {
		o.SelectDigit(d)
	}
}

func (m *mirror) DeselectAll() {
	m.GPIO.DeselectAll()
	for _, o := range m.mirrors {
		o.DeselectAll()
	}
}
