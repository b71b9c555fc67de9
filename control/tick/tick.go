// Package tick calls a handler at a fixed short period, standing in for a hardware timer
// interrupt.
package tick

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultPeriod is the refresh period of the original hardware: a 12T-mode timer reloaded with
// 0xffb0 at 11.0592MHz overflows every 80*12 cycles, about 86.8µs.  The multiplexer and debouncer
// count ticks, not time, so changing this scales display refresh and press durations together.
const DefaultPeriod = 87 * time.Microsecond

var (
	ticksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticks",
		Help: "count of tick handler invocations",
	})

	missedTicksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missed_ticks",
		Help: "count of ticks that were due but never delivered because the handler or scheduler fell behind",
	})

	handlerTimeMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_handler_seconds",
		Help:    "time spent in the tick handler, sampled once every 256 ticks",
		Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
	})
)

// Run calls handler once per period until the context is cancelled.  All calls are made from the
// calling goroutine, so handler never runs concurrently with itself.  handler must not block; a
// slow handler causes ticks to be dropped (and counted in missed_ticks), never queued.
func Run(ctx context.Context, period time.Duration, handler func()) error {
	if period <= 0 {
		return fmt.Errorf("invalid tick period %v", period)
	}
	t := time.NewTicker(period)
	defer t.Stop()

	last := time.Now()
	var n uint8
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for tick: %w", ctx.Err())
		case now := <-t.C:
			if missed := now.Sub(last)/period - 1; missed > 0 {
				missedTicksCounter.Add(float64(missed))
			}
			last = now

			if n == 0 {
				start := time.Now()
				handler()
				handlerTimeMetric.Observe(time.Since(start).Seconds())
			} else {
				handler()
			}
			n++
			ticksCounter.Inc()
		}
	}
}
