// Package influx writes sensor readings to InfluxDB.
//
// This is a minimal client for the v2 write API's line protocol; the official client is far more
// than the clock needs.
package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

var (
	writesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influx_writes",
		Help: "count of influxdb writes, by result",
	}, []string{"result"})
	droppedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "influx_dropped_lines",
		Help: "count of points dropped because a write was still in progress",
	})
)

// Sink sends lines of line protocol to InfluxDB, one request at a time.  Lines offered while a
// request is in flight are dropped.
type Sink struct {
	// URL is the server's base URL, like https://influxdb.example.com.
	URL    string
	Org    string
	Bucket string
	// Token authorizes writes.  If empty, lines are only logged to the event log.
	Token   string
	Timeout time.Duration
	Client  *http.Client

	ch chan string
	l  trace.EventLog
}

// New returns a Sink; call Run to start sending.
func New(baseURL, org, bucket, token string) *Sink {
	return &Sink{
		URL:     baseURL,
		Org:     org,
		Bucket:  bucket,
		Token:   token,
		Timeout: 5 * time.Second,
		Client:  http.DefaultClient,
		ch:      make(chan string, 1),
		l:       trace.NewEventLog("destination", "influxdb"),
	}
}

// Offer queues a line without blocking.
func (s *Sink) Offer(line string) {
	select {
	case s.ch <- line:
	default:
		droppedMetric.Inc()
	}
}

// Run sends offered lines until the context is cancelled.
func (s *Sink) Run(ctx context.Context) error {
	defer s.l.Finish()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("influx sink: %w", ctx.Err())
		case line := <-s.ch:
			if err := s.Write(ctx, line); err != nil {
				writesMetric.WithLabelValues("error").Inc()
				s.l.Errorf("write: %v", err)
				continue
			}
			writesMetric.WithLabelValues("ok").Inc()
		}
	}
}

// Write sends body, which is one or more lines of line protocol.
func (s *Sink) Write(ctx context.Context, body string) error {
	s.l.Printf("%s", body)
	if s.Token == "" {
		return nil
	}

	ctx, c := context.WithTimeout(ctx, s.Timeout)
	defer c()
	q := url.Values{"org": {s.Org}, "bucket": {s.Bucket}}
	u := strings.TrimSuffix(s.URL, "/") + "/api/v2/write?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Add("authorization", "Token "+s.Token)
	req.Header.Add("content-type", "text/plain")
	res, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("make request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("make request: unexpected status %v (%s): (body: %s)", res.StatusCode, res.Status, body)
	}
	return nil
}

// Line formats one point.  Fields are written as floats, in the order given.
func Line(measurement string, fields []Field, t time.Time) string {
	var b strings.Builder
	b.WriteString(measurement)
	for i, f := range fields {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
	}
	fmt.Fprintf(&b, " %d\n", t.UnixNano())
	return b.String()
}

// Field is one field of a point.
type Field struct {
	Key   string
	Value float64
}
