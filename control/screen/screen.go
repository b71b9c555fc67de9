// Package screen is a software stand-in for the LED display.  It records what the multiplexer
// drives, so the rest of the program can be debugged without the display attached, and renders it
// as a PNG.
package screen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/segment"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	digitWidth   = 60
	digitHeight  = 100
	digitSpacing = 30 // Includes room for the decimal point.
	border       = 20
	captionSpace = 24

	width  = 2*border + display.Digits*(digitWidth+digitSpacing)
	height = 2*border + digitHeight + captionSpace
)

// segmentRects are the areas lit by each segment bit, relative to the top-left of a digit.
var segmentRects = [8]image.Rectangle{
	image.Rect(10, 0, 50, 10),   // a
	image.Rect(50, 10, 60, 48),  // b
	image.Rect(50, 52, 60, 90),  // c
	image.Rect(10, 90, 50, 100), // d
	image.Rect(0, 52, 10, 90),   // e
	image.Rect(0, 10, 10, 48),   // f
	image.Rect(10, 45, 50, 55),  // g
	image.Rect(64, 90, 74, 100), // .
}

var (
	background = color.NRGBA64{R: 0, G: 0, B: 0, A: 0xffff}
	unlit      = color.NRGBA64{R: 0x1800, G: 0x1800, B: 0x1800, A: 0xffff}
)

// Screen implements display.GPIO.  Outputs are recorded with atomic operations only, so it's safe
// to use from the tick handler; switch levels are set over HTTP or with Press.
//
// Each digit's brightness in the rendered image is its duty cycle since the previous render:
// the fraction of its quarter of the ticks that it was actually selected.
type Screen struct {
	segments atomic.Uint32
	latched  [display.Digits]atomic.Uint32 // the code showing on each digit
	lit      [display.Digits]atomic.Uint64 // ticks each digit was selected
	ticks    atomic.Uint64                 // ticks seen, counted by DeselectAll
	pressed  [display.NumSwitches]atomic.Bool

	// Caption, if set, returns text to draw under the digits.
	Caption func() string
	// ExternalSwitches is set when the switches are read from real pins instead of this Screen.
	// ServeSwitch then refuses to simulate presses, since they would have no effect.
	ExternalSwitches bool

	imageMu   sync.Mutex
	image     *image.NRGBA64          // must hold imageMu to read or write.
	lastTicks uint64                  // must hold imageMu
	lastLit   [display.Digits]uint64  // must hold imageMu
	duty      [display.Digits]float64 // must hold imageMu
}

// New returns an initialized Screen.
func New() *Screen {
	return &Screen{
		image: image.NewNRGBA64(image.Rect(0, 0, width, height)),
	}
}

// SetSegments implements display.Outputs.
func (s *Screen) SetSegments(code segment.Code) {
	s.segments.Store(uint32(code))
}

// SelectDigit implements display.Outputs.
func (s *Screen) SelectDigit(d int) {
	s.latched[d].Store(s.segments.Load())
	s.lit[d].Add(1)
}

// DeselectAll implements display.Outputs.
func (s *Screen) DeselectAll() {
	s.ticks.Add(1)
}

// ReadSwitch implements display.Inputs.  Switches are active-low.
func (s *Screen) ReadSwitch(sw display.Switch) bool {
	return !s.pressed[sw].Load()
}

// Press simulates holding (or releasing) a switch.
func (s *Screen) Press(sw display.Switch, pressed bool) {
	s.pressed[sw].Store(pressed)
}

// Blank forgets what every digit was showing.
func (s *Screen) Blank() {
	for i := range s.latched {
		s.latched[i].Store(0)
	}
}

// updateDuty recomputes duty from the counters.  Must hold imageMu.
func (s *Screen) updateDuty() {
	ticks := s.ticks.Load()
	dt := ticks - s.lastTicks
	s.lastTicks = ticks
	for i := range s.lit {
		lit := s.lit[i].Load()
		dl := lit - s.lastLit[i]
		s.lastLit[i] = lit
		if dt == 0 {
			// Nothing is refreshing the display; keep showing the last frame.
			continue
		}
		d := float64(dl) * display.Digits / float64(dt)
		if d > 1 {
			d = 1
		}
		s.duty[i] = d
	}
}

func ledColor(duty float64) color.NRGBA64 {
	return color.NRGBA64{R: uint16(0x2000 + duty*0xdfff), G: uint16(duty * 0x1000), B: 0, A: 0xffff}
}

// Render draws the current state of the display and returns it.  The returned image is shared
// with ServeHTTP and must not be modified.
func (s *Screen) Render() *image.NRGBA64 {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	s.updateDuty()

	img := s.image
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	for d := 0; d < display.Digits; d++ {
		code := segment.Code(s.latched[d].Load())
		origin := image.Pt(border+d*(digitWidth+digitSpacing), border)
		on := image.NewUniform(ledColor(s.duty[d]))
		off := image.NewUniform(unlit)
		for bit, r := range segmentRects {
			src := off
			if code&(1<<bit) != 0 && s.duty[d] > 0 {
				src = on
			}
			draw.Draw(img, r.Add(origin), src, image.Point{}, draw.Src)
		}
	}
	if s.Caption != nil {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.NRGBA64{R: 0xc000, G: 0xc000, B: 0xc000, A: 0xffff}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(border, height-border/2),
		}
		drawer.DrawString(s.Caption())
	}
	return img
}

// Frame renders the display and returns a copy of the image, along with the duty cycles it was
// drawn with.  Each duty cycle is in the range [0, 1] and covers the ticks since the previous
// render; with no ticks since then, the previous duty cycle is kept.
func (s *Screen) Frame() (*image.NRGBA64, [display.Digits]float64) {
	img := s.Render()
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	cp := image.NewNRGBA64(img.Bounds())
	copy(cp.Pix, img.Pix)
	return cp, s.duty
}

// ServeHTTP serves the current image as a PNG.
func (s *Screen) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	img := s.Render()
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	if err := png.Encode(w, img); err != nil {
		log.Printf("encoding image: %v", err)
	}
}

// ServeSwitch presses or releases a simulated switch.  It takes a POST with form values "switch"
// (1 or 2) and "pressed" (a bool).  It responds 409 Conflict if ExternalSwitches is set.
func (s *Screen) ServeSwitch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ExternalSwitches {
		http.Error(w, "switches are read from gpio pins; simulated presses have no effect", http.StatusConflict)
		return
	}
	n, err := strconv.Atoi(req.FormValue("switch"))
	if err != nil || n < 1 || n > int(display.NumSwitches) {
		http.Error(w, fmt.Sprintf("invalid switch %q", req.FormValue("switch")), http.StatusBadRequest)
		return
	}
	pressed, err := strconv.ParseBool(req.FormValue("pressed"))
	if err != nil {
		http.Error(w, fmt.Sprintf("parse pressed: %v", err), http.StatusBadRequest)
		return
	}
	sw := display.Switch(n - 1)
	s.Press(sw, pressed)
	log.Printf("simulated switch %v pressed=%v", sw, pressed)
	w.WriteHeader(http.StatusNoContent)
}
