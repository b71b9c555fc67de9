package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks configuration correctness.  It does not mutate the config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("no config")
	}

	if cfg.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive, got %v", cfg.TickPeriod)
	}
	if cfg.LoopDelay <= 0 {
		return fmt.Errorf("loop_delay must be positive, got %v", cfg.LoopDelay)
	}
	if cfg.HeartbeatDelay < 0 {
		return fmt.Errorf("heartbeat_delay must not be negative, got %v", cfg.HeartbeatDelay)
	}
	if iteration := cfg.LoopDelay + cfg.HeartbeatDelay; cfg.WatchdogTimeout <= iteration {
		return fmt.Errorf("watchdog_timeout %v must be longer than one loop iteration (%v)", cfg.WatchdogTimeout, iteration)
	}
	if cfg.Location != "" {
		if _, err := time.LoadLocation(cfg.Location); err != nil {
			return fmt.Errorf("location %q: %w", cfg.Location, err)
		}
	}

	// ---- pins ----

	d := cfg.Display
	if !d.Preview() {
		if got, want := len(d.Segments), 8; got != want {
			return fmt.Errorf("display.segments: got %d pins, want %d", got, want)
		}
		if got, want := len(d.Digits), 4; got != want {
			return fmt.Errorf("display.digits: got %d pins, want %d", got, want)
		}
		if got, want := len(cfg.Switches), 2; got != want {
			return fmt.Errorf("switches: got %d pins, want %d", got, want)
		}
	} else if len(cfg.Switches) != 0 {
		return fmt.Errorf("switches are configured but display pins are not")
	}

	seen := make(map[string]string)
	claim := func(pin, use string) error {
		if pin == "" {
			return fmt.Errorf("%s: empty pin name", use)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("pin %q is used for both %s and %s", pin, prev, use)
		}
		seen[pin] = use
		return nil
	}
	for i, p := range d.Segments {
		if err := claim(p, fmt.Sprintf("display.segments[%d]", i)); err != nil {
			return err
		}
	}
	for i, p := range d.Digits {
		if err := claim(p, fmt.Sprintf("display.digits[%d]", i)); err != nil {
			return err
		}
	}
	for i, p := range cfg.Switches {
		if err := claim(p, fmt.Sprintf("switches[%d]", i)); err != nil {
			return err
		}
	}
	if cfg.Heartbeat.Pin != "" {
		if err := claim(cfg.Heartbeat.Pin, "heartbeat.pin"); err != nil {
			return err
		}
	}

	// ---- rtc ----

	switch cfg.RTC.Kind {
	case RTCSystem:
	case RTCDS1302:
		for _, p := range []struct{ pin, use string }{
			{cfg.RTC.CE, "rtc.ce"},
			{cfg.RTC.SCLK, "rtc.sclk"},
			{cfg.RTC.IO, "rtc.io"},
		} {
			if err := claim(p.pin, p.use); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("rtc.kind: unknown kind %q", cfg.RTC.Kind)
	}

	// ---- sensors ----

	switch cfg.Light.Kind {
	case LightFixed, LightTSL2591:
	case LightADS1115:
		if cfg.Light.Channel < 0 || cfg.Light.Channel > 3 {
			return fmt.Errorf("light.channel: %d is not 0-3", cfg.Light.Channel)
		}
		if cfg.Light.FullScale <= 0 {
			return fmt.Errorf("light.full_scale must be positive, got %v", cfg.Light.FullScale)
		}
	default:
		return fmt.Errorf("light.kind: unknown kind %q", cfg.Light.Kind)
	}

	switch cfg.Temperature.Kind {
	case TemperatureNone:
	case TemperatureBME280:
		if a := cfg.Temperature.Address; a != 0x76 && a != 0x77 {
			return fmt.Errorf("temperature.address: %#x is not 0x76 or 0x77", a)
		}
	default:
		return fmt.Errorf("temperature.kind: unknown kind %q", cfg.Temperature.Kind)
	}

	// ---- export ----

	if cfg.Influx.URL != "" {
		u, err := url.Parse(cfg.Influx.URL)
		if err != nil {
			return fmt.Errorf("influx.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("influx.url: scheme must be http or https, got %q", u.Scheme)
		}
		if cfg.Influx.Bucket == "" {
			return fmt.Errorf("influx.bucket is required when influx.url is set")
		}
		if cfg.Influx.Every <= 0 {
			return fmt.Errorf("influx.every must be positive, got %d", cfg.Influx.Every)
		}
	}

	return nil
}
