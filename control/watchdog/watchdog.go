// Package watchdog detects a stalled main loop.
//
// The loop calls Clear once per iteration.  If Timeout passes without a Clear, the expiry function
// runs; the default logs and exits, so a supervisor can restart the process the way a hardware
// watchdog would reset the chip.
package watchdog

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clearsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchdog_clears",
		Help: "count of watchdog clears by the main loop",
	})
	expiriesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchdog_expiries",
		Help: "count of watchdog expiries",
	})
)

// Watchdog fires when it isn't cleared often enough.
type Watchdog struct {
	Timeout time.Duration

	onExpire func(since time.Duration)
	last     atomic.Int64 // unix nanoseconds of the last Clear
	now      func() time.Time
}

// Exit is the default expiry function.
func Exit(since time.Duration) {
	log.Printf("watchdog: main loop stalled; no clear for %v", since)
	os.Exit(2)
}

// New returns a Watchdog that calls onExpire when Timeout passes without a Clear.  A nil onExpire
// means Exit.
func New(timeout time.Duration, onExpire func(since time.Duration)) *Watchdog {
	if onExpire == nil {
		onExpire = Exit
	}
	w := &Watchdog{Timeout: timeout, onExpire: onExpire, now: time.Now}
	w.Clear()
	return w
}

// Clear restarts the countdown.
func (w *Watchdog) Clear() {
	w.last.Store(w.now().UnixNano())
	clearsMetric.Inc()
}

// Run checks the watchdog until the context is cancelled.  After the expiry function runs the
// countdown restarts.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.Timeout <= 0 {
		return fmt.Errorf("invalid watchdog timeout %v", w.Timeout)
	}
	t := time.NewTicker(w.Timeout / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("watchdog: %w", ctx.Err())
		case <-t.C:
			now := w.now()
			since := now.Sub(time.Unix(0, w.last.Load()))
			if since > w.Timeout {
				expiriesMetric.Inc()
				w.onExpire(since)
				w.last.Store(now.UnixNano())
			}
		}
	}
}
