// Package clock is the clock's main loop: it reads the time and the sensors, writes the display,
// and collects button presses.
package clock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/rtc"
	"github.com/jrockway/segment-clock/control/segment"
	"github.com/jrockway/segment-clock/control/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
	"periph.io/x/conn/v3/physic"
)

var (
	iterationsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loop_iterations",
		Help: "count of completed main loop iterations",
	})
	lightMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "light_reading",
		Help: "most recent ambient light reading; 0 is brightest, 255 is darkest",
	})
	temperatureMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "temperature_celsius",
		Help: "most recent temperature reading, in degrees celsius",
	})
	pressesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switch_presses",
		Help: "count of classified button presses",
	}, []string{"switch", "press"})
	collaboratorErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collaborator_errors",
		Help: "count of failed reads from the clock chip and sensors",
	}, []string{"collaborator"})
)

// Display is the part of *display.Controller the loop uses.
type Display interface {
	SetDigit(pos int, v segment.Value, dp bool)
	SetLight(v uint8)
	PollPress(s display.Switch) display.Press
}

// Line is an output line, like *pins.Line.
type Line interface {
	Set(on bool) error
}

// Watchdog is cleared once per iteration.
type Watchdog interface {
	Clear()
}

// Reading is what one iteration of the loop saw.
type Reading struct {
	Iteration   uint
	Time        rtc.Time
	TimeErr     error
	Light       uint8
	Temperature physic.Temperature // zero if there is no thermometer or it failed
}

// Clock is the main loop and the things it talks to.  Everything but Display and RTC is optional.
type Clock struct {
	Display     Display
	RTC         rtc.Clock
	Light       sensors.Light
	Thermometer sensors.Thermometer
	Heartbeat   Line
	Watchdog    Watchdog

	// OnPress is called for each classified press.
	OnPress func(s display.Switch, p display.Press)
	// Report is called with each iteration's Reading.  It must not block.
	Report func(r Reading)

	LoopDelay      time.Duration
	HeartbeatDelay time.Duration

	count   uint // iterations so far; bit 0 flashes the colon
	light   uint8
	failing map[string]bool
	l       trace.EventLog
}

// collaboratorResult records a read of the named collaborator.  Every failure goes to the event
// log; the process log only sees a collaborator start or stop failing.
func (c *Clock) collaboratorResult(name string, err error) {
	if c.failing == nil {
		c.failing = make(map[string]bool)
	}
	if err == nil {
		if c.failing[name] {
			log.Printf("%s recovered", name)
			c.failing[name] = false
		}
		return
	}
	collaboratorErrorsMetric.WithLabelValues(name).Inc()
	c.l.Errorf("read %s: %v", name, err)
	if !c.failing[name] {
		log.Printf("read %s: %v", name, err)
		c.failing[name] = true
	}
}

// Delay pauses the loop for d.  It returns early, with an error, if the context is cancelled.
func Delay(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delay: %w", ctx.Err())
	}
}

func (c *Clock) heartbeat(ctx context.Context) error {
	if c.Heartbeat == nil {
		return nil
	}
	if err := c.Heartbeat.Set(true); err != nil {
		c.l.Errorf("heartbeat on: %v", err)
	}
	err := Delay(ctx, c.HeartbeatDelay)
	if err := c.Heartbeat.Set(false); err != nil {
		c.l.Errorf("heartbeat off: %v", err)
	}
	return err
}

func (c *Clock) readSensors() (temp physic.Temperature) {
	if c.Light != nil {
		v, err := c.Light.Light()
		c.collaboratorResult("light", err)
		if err == nil {
			c.light = v
		}
		c.Display.SetLight(c.light)
		lightMetric.Set(float64(c.light))
	}
	if c.Thermometer != nil {
		t, err := c.Thermometer.Temperature()
		c.collaboratorResult("temperature", err)
		if err == nil {
			temperatureMetric.Set(sensors.Celsius(t))
			temp = t
		}
	}
	return temp
}

func (c *Clock) pollPresses() {
	for s := display.Switch(0); s < display.NumSwitches; s++ {
		p := c.Display.PollPress(s)
		if p == display.PressNone {
			continue
		}
		pressesMetric.WithLabelValues(s.String(), p.String()).Inc()
		c.l.Printf("%v: %v press", s, p)
		if c.OnPress != nil {
			c.OnPress(s, p)
		}
	}
}

// digit returns the Value for one decimal field of the time.  A field that isn't a decimal digit,
// as read from a clock chip with corrupt registers, shows as a dash.
func digit(n uint8) segment.Value {
	if n > 9 {
		return segment.Dash
	}
	return segment.Digit(int(n))
}

// Show writes hours and minutes to the display.  The decimal points of the middle two digits form
// the colon.
func (c *Clock) Show(t rtc.Time, colon bool) {
	c.Display.SetDigit(0, digit(t.TenHour), false)
	c.Display.SetDigit(1, digit(t.Hour), colon)
	c.Display.SetDigit(2, digit(t.TenMinute), colon)
	c.Display.SetDigit(3, digit(t.Minute), false)
}

// ShowDashes fills the display with dashes; it's shown when the time can't be read.
func (c *Clock) ShowDashes() {
	for pos := 0; pos < display.Digits; pos++ {
		c.Display.SetDigit(pos, segment.Dash, false)
	}
}

// Iterate runs one pass of the loop, up to but not including the pause at the end.
func (c *Clock) Iterate(ctx context.Context) error {
	if c.l == nil {
		c.l = trace.NewEventLog("loop", "clock")
	}
	if err := c.heartbeat(ctx); err != nil {
		return err
	}
	temp := c.readSensors()

	t, err := c.RTC.Now()
	c.collaboratorResult("rtc", err)

	c.pollPresses()

	colon := c.count&1 == 1
	if err != nil {
		c.ShowDashes()
	} else {
		c.Show(t, colon)
	}
	if colon {
		c.l.Printf("light: %d, time: %v", c.light, t)
	}
	if c.Report != nil {
		c.Report(Reading{Iteration: c.count, Time: t, TimeErr: err, Light: c.light, Temperature: temp})
	}
	return nil
}

// Run runs the loop until the context is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	c.l = trace.NewEventLog("loop", "clock")
	defer c.l.Finish()
	log.Printf("clock loop starting; loop delay %v, heartbeat %v", c.LoopDelay, c.HeartbeatDelay)
	for {
		if err := c.Iterate(ctx); err != nil {
			return fmt.Errorf("iteration %d: %w", c.count, err)
		}
		if err := Delay(ctx, c.LoopDelay); err != nil {
			return err
		}
		c.count++
		iterationsMetric.Inc()
		if c.Watchdog != nil {
			c.Watchdog.Clear()
		}
	}
}
