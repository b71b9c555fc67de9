// Package status serves a human-readable status page.
package status

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/segment"
	"github.com/jrockway/segment-clock/control/sensors"
)

var (
	//go:embed index.html.tmpl
	indexHTML string
	funcMap   = template.FuncMap{
		"binary":   formatBinary,
		"segments": formatSegments,
		"float3":   formatFloat3,
		"percent":  formatPercent,
		"image":    formatImage,
		"inc":      func(i int) int { return i + 1 },
	}
	index = template.Must(template.New("index").Funcs(funcMap).Parse(indexHTML))
)

// Status is everything on the page.
type Status struct {
	clock.Reading
	Face            image.Image
	Display         display.State
	Duty            [display.Digits]float64
	HaveTemperature bool
	Celsius         float64
}

// Page holds the latest Status.  Sources fill in the parts that are read when the page is
// requested.
type Page struct {
	Display func() display.State
	Frame   func() (image.Image, [display.Digits]float64)

	mu      sync.RWMutex
	reading clock.Reading
}

// Update records the latest reading from the main loop.
func (p *Page) Update(r clock.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reading = r
}

// Status returns the current Status.
func (p *Page) Status() Status {
	p.mu.RLock()
	s := Status{Reading: p.reading}
	p.mu.RUnlock()
	if s.Temperature != 0 {
		s.HaveTemperature = true
		s.Celsius = sensors.Celsius(s.Temperature)
	}
	if p.Display != nil {
		s.Display = p.Display()
	}
	if p.Frame != nil {
		s.Face, s.Duty = p.Frame()
	}
	return s
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	if err := index.Execute(buf, p.Status()); err != nil {
		log.Printf("execute template: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func formatBinary(x interface{}) string { return fmt.Sprintf("%08b", x) }

func formatSegments(c segment.Code) string {
	if s := c.Segments(); s != "" {
		return s
	}
	return "(blank)"
}

func formatFloat3(x float64) string { return fmt.Sprintf("%.3f", x) }

func formatPercent(duty [display.Digits]float64) string {
	parts := make([]string, len(duty))
	for i, d := range duty {
		parts[i] = fmt.Sprintf("%.1f%%", 100*d)
	}
	return strings.Join(parts, " ")
}

func formatImage(src image.Image) template.URL {
	if src == nil {
		src = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, src); err != nil {
		log.Printf("problem encoding image: %v", err)
		return template.URL("data:text/plain,error")
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
}
