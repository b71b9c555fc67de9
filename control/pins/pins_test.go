package pins

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/segment"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

var testPins = map[string]*gpiotest.Pin{}

func init() {
	var names []string
	for _, s := range "abcdefgp" {
		names = append(names, fmt.Sprintf("SEG_%c", s))
	}
	for i := 0; i < display.Digits; i++ {
		names = append(names, fmt.Sprintf("DIG_%d", i))
	}
	names = append(names, "SW_1", "SW_2", "HEARTBEAT")
	for i, name := range names {
		p := &gpiotest.Pin{N: name, Num: 1000 + i}
		if err := gpioreg.Register(p); err != nil {
			panic(fmt.Sprintf("register %s: %v", name, err))
		}
		testPins[name] = p
	}
}

func testOpts() Opts {
	return Opts{
		Segments:        []string{"SEG_a", "SEG_b", "SEG_c", "SEG_d", "SEG_e", "SEG_f", "SEG_g", "SEG_p"},
		Digits:          []string{"DIG_0", "DIG_1", "DIG_2", "DIG_3"},
		Switches:        []string{"SW_1", "SW_2"},
		DigitsActiveLow: true,
	}
}

func segmentLevels() string {
	var result []byte
	for _, s := range "abcdefgp" {
		if testPins[fmt.Sprintf("SEG_%c", s)].Read() == gpio.High {
			result = append(result, byte(s))
		}
	}
	return string(result)
}

func TestPins(t *testing.T) {
	p, err := New(testOpts())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < display.Digits; i++ {
		if got, want := testPins[fmt.Sprintf("DIG_%d", i)].Read(), gpio.High; got != want {
			t.Errorf("digit %d after init:\n  got: %v\n want: %v", i, got, want)
		}
	}

	p.SetSegments(segment.CodeFor(1))
	if got, want := segmentLevels(), "bc"; got != want {
		t.Errorf("segments for 1:\n  got: %v\n want: %v", got, want)
	}
	p.SetSegments(segment.CodeFor(7) | segment.DecimalPoint)
	if got, want := segmentLevels(), "abcp"; got != want {
		t.Errorf("segments for 7.:\n  got: %v\n want: %v", got, want)
	}

	p.DeselectAll()
	p.SelectDigit(2)
	for i := 0; i < display.Digits; i++ {
		want := gpio.High
		if i == 2 {
			want = gpio.Low
		}
		if got := testPins[fmt.Sprintf("DIG_%d", i)].Read(); got != want {
			t.Errorf("digit %d with 2 selected:\n  got: %v\n want: %v", i, got, want)
		}
	}

	if got, want := testPins["SW_1"].P, gpio.PullUp; got != want {
		t.Errorf("switch pull:\n  got: %v\n want: %v", got, want)
	}
	testPins["SW_1"].L = gpio.Low
	testPins["SW_2"].L = gpio.High
	if got, want := p.ReadSwitch(display.S1), false; got != want {
		t.Errorf("pressed switch:\n  got: %v\n want: %v", got, want)
	}
	if got, want := p.ReadSwitch(display.S2), true; got != want {
		t.Errorf("released switch:\n  got: %v\n want: %v", got, want)
	}

	if err := p.Blank(); err != nil {
		t.Fatalf("Blank: %v", err)
	}
	if got, want := segmentLevels(), ""; got != want {
		t.Errorf("segments after blank:\n  got: %v\n want: %v", got, want)
	}
	if got, want := testPins["DIG_2"].Read(), gpio.High; got != want {
		t.Errorf("digit 2 after blank:\n  got: %v\n want: %v", got, want)
	}
}

// flakyPin fails writes while fail is set and counts the writes it accepts.
type flakyPin struct {
	*gpiotest.Pin
	fail   bool
	writes int
}

func (f *flakyPin) Out(l gpio.Level) error {
	if f.fail {
		return errors.New("bus error")
	}
	f.writes++
	return f.Pin.Out(l)
}

func TestSetSegmentsRetriesFailedWrites(t *testing.T) {
	p := new(Pins)
	var segs [8]*flakyPin
	for i := range segs {
		segs[i] = &flakyPin{Pin: &gpiotest.Pin{N: fmt.Sprintf("flaky_%d", i)}}
		p.segments[i] = segs[i]
	}
	b := segs[1]

	b.fail = true
	p.SetSegments(segment.CodeFor(1)) // b and c; b fails
	if got, want := b.Read(), gpio.Low; got != want {
		t.Fatalf("segment b after failed write:\n  got: %v\n want: %v", got, want)
	}

	// Same code again: b must be retried even though the requested pattern didn't change.
	b.fail = false
	p.SetSegments(segment.CodeFor(1))
	if got, want := b.Read(), gpio.High; got != want {
		t.Errorf("segment b after retry:\n  got: %v\n want: %v", got, want)
	}

	// Once everything is written, unchanged lines are skipped again.
	writes := b.writes
	p.SetSegments(segment.CodeFor(1))
	if got, want := b.writes, writes; got != want {
		t.Errorf("writes to unchanged segment b:\n  got: %v\n want: %v", got, want)
	}
}

func TestNewErrors(t *testing.T) {
	testData := []struct {
		name string
		edit func(o *Opts)
	}{
		{"too few segments", func(o *Opts) { o.Segments = o.Segments[:7] }},
		{"too many digits", func(o *Opts) { o.Digits = append(o.Digits, "DIG_0") }},
		{"one switch", func(o *Opts) { o.Switches = o.Switches[:1] }},
		{"unknown pin", func(o *Opts) { o.Digits[3] = "NOPE" }},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			opts := testOpts()
			test.edit(&opts)
			if _, err := New(opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLine(t *testing.T) {
	l, err := NewLine("HEARTBEAT", true)
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}
	if got, want := testPins["HEARTBEAT"].Read(), gpio.High; got != want {
		t.Errorf("active-low line after init:\n  got: %v\n want: %v", got, want)
	}
	if err := l.Set(true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, want := testPins["HEARTBEAT"].Read(), gpio.Low; got != want {
		t.Errorf("active-low line on:\n  got: %v\n want: %v", got, want)
	}
	if _, err := NewLine("NOPE", false); err == nil {
		t.Error("NewLine on a missing pin: expected error")
	}
}
