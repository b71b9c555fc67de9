package screen

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/segment"
)

func TestDuty(t *testing.T) {
	testData := []struct {
		light uint8
		want  [display.Digits]float64
	}{
		{light: 0, want: [display.Digits]float64{63.0 / 64, 1, 1, 1}},
		{light: 255, want: [display.Digits]float64{2.0 / 64, 2.0 / 64, 2.0 / 64, 2.0 / 64}},
	}
	for _, test := range testData {
		s := New()
		c := display.New(s)
		c.SetLight(test.light)
		for i := 0; i < display.WindowTicks; i++ {
			c.Tick()
		}
		_, got := s.Frame()
		for i := range got {
			if want := test.want[i]; got[i] != want {
				t.Errorf("light %d: digit %d duty:\n  got: %v\n want: %v", test.light, i, got[i], want)
			}
		}
		// With no ticks since the last call, the previous duty cycle sticks.
		if _, again := s.Frame(); again != got {
			t.Errorf("light %d: duty with no ticks:\n  got: %v\n want: %v", test.light, again, got)
		}
	}
}

func TestLatch(t *testing.T) {
	s := New()
	c := display.New(s)
	for pos := 0; pos < display.Digits; pos++ {
		c.SetDigit(pos, segment.Value(9-pos), pos == 1)
	}
	for i := 0; i < 8; i++ {
		c.Tick()
	}
	for pos := 0; pos < display.Digits; pos++ {
		if got, want := segment.Code(s.latched[pos].Load()), c.Digit(pos); got != want {
			t.Errorf("digit %d:\n  got: %q\n want: %q", pos, got.Segments(), want.Segments())
		}
	}
	s.Blank()
	for pos := 0; pos < display.Digits; pos++ {
		if got := s.latched[pos].Load(); got != 0 {
			t.Errorf("digit %d after blank: %#x", pos, got)
		}
	}
}

func TestServeHTTP(t *testing.T) {
	s := New()
	s.Caption = func() string { return "light 42" }
	c := display.New(s)
	c.SetDigit(0, 1, false)
	for i := 0; i < display.WindowTicks; i++ {
		c.Tick()
	}

	req := httptest.NewRequest("GET", "/display.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Fatalf("response code:\n  got: %v\n want: %v", got, want)
	}
	if got, want := rec.Header().Get("content-type"), "image/png"; got != want {
		t.Errorf("content-type:\n  got: %v\n want: %v", got, want)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if got, want := img.Bounds().Dx(), width; got != want {
		t.Errorf("width:\n  got: %v\n want: %v", got, want)
	}

	// Segment b of digit 0 is lit; segment a is not.
	b := segmentRects[1].Min.Add(image.Pt(border, border))
	if r, _, _, _ := img.At(b.X+1, b.Y+1).RGBA(); r <= 0x1800 {
		t.Errorf("segment b of digit 0 is not lit (red=%#x)", r)
	}
	a := segmentRects[0].Min.Add(image.Pt(border, border))
	if r, _, _, _ := img.At(a.X+1, a.Y+1).RGBA(); r != 0x1800 {
		t.Errorf("segment a of digit 0 is lit (red=%#x)", r)
	}
}

func TestServeSwitch(t *testing.T) {
	testData := []struct {
		method string
		form   url.Values
		want   int
	}{
		{http.MethodGet, nil, http.StatusMethodNotAllowed},
		{http.MethodPost, url.Values{"switch": {"0"}, "pressed": {"true"}}, http.StatusBadRequest},
		{http.MethodPost, url.Values{"switch": {"3"}, "pressed": {"true"}}, http.StatusBadRequest},
		{http.MethodPost, url.Values{"switch": {"1"}, "pressed": {"maybe"}}, http.StatusBadRequest},
		{http.MethodPost, url.Values{"switch": {"2"}, "pressed": {"true"}}, http.StatusNoContent},
	}
	s := New()
	for i, test := range testData {
		req := httptest.NewRequest(test.method, "/switch", strings.NewReader(test.form.Encode()))
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.ServeSwitch(rec, req)
		if got, want := rec.Code, test.want; got != want {
			t.Errorf("test %d: response code:\n  got: %v\n want: %v", i, got, want)
		}
	}
	if got, want := s.ReadSwitch(display.S2), false; got != want {
		t.Errorf("S2 level after press:\n  got: %v\n want: %v", got, want)
	}
	if got, want := s.ReadSwitch(display.S1), true; got != want {
		t.Errorf("S1 level:\n  got: %v\n want: %v", got, want)
	}
}

func TestServeSwitchWithExternalSwitches(t *testing.T) {
	s := New()
	s.ExternalSwitches = true
	form := url.Values{"switch": {"1"}, "pressed": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/switch", strings.NewReader(form.Encode()))
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeSwitch(rec, req)
	if got, want := rec.Code, http.StatusConflict; got != want {
		t.Errorf("response code:\n  got: %v\n want: %v", got, want)
	}
	if got, want := s.ReadSwitch(display.S1), true; got != want {
		t.Errorf("S1 level after refused press:\n  got: %v\n want: %v", got, want)
	}
}

func TestFrame(t *testing.T) {
	s := New()
	c := display.New(s)
	for i := 0; i < display.WindowTicks; i++ {
		c.Tick()
	}
	img, duty := s.Frame()
	if got, want := duty, [display.Digits]float64{63.0 / 64, 1, 1, 1}; got != want {
		t.Errorf("duty:\n  got: %v\n want: %v", got, want)
	}
	shared := s.Render()
	if img == shared {
		t.Fatal("frame shares its image with the screen")
	}
	if got, want := img.Bounds(), shared.Bounds(); got != want {
		t.Errorf("bounds:\n  got: %v\n want: %v", got, want)
	}
}
