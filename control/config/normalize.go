package config

import "time"

const (
	DefaultTickPeriod     = 87 * time.Microsecond
	DefaultLoopDelay      = 200 * time.Millisecond
	DefaultHeartbeatDelay = 150 * time.Millisecond
	DefaultInfluxEvery    = 100

	ads1115Address = 0x48
	bme280Address  = 0x76
	fullScaleVolts = 3.3
)

// Normalize fills in defaults.  It runs before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	if cfg.HeartbeatDelay == 0 {
		cfg.HeartbeatDelay = DefaultHeartbeatDelay
	}
	if cfg.WatchdogTimeout == 0 {
		cfg.WatchdogTimeout = 10 * (cfg.LoopDelay + cfg.HeartbeatDelay)
	}

	if cfg.RTC.Kind == "" {
		cfg.RTC.Kind = RTCSystem
	}

	switch cfg.Light.Kind {
	case "":
		cfg.Light.Kind = LightFixed
	case LightADS1115:
		if cfg.Light.Address == 0 {
			cfg.Light.Address = ads1115Address
		}
		if cfg.Light.FullScale == 0 {
			cfg.Light.FullScale = fullScaleVolts
		}
	}

	switch cfg.Temperature.Kind {
	case "":
		cfg.Temperature.Kind = TemperatureNone
	case TemperatureBME280:
		if cfg.Temperature.Address == 0 {
			cfg.Temperature.Address = bme280Address
		}
	}

	if cfg.Influx.URL != "" && cfg.Influx.Every == 0 {
		cfg.Influx.Every = DefaultInfluxEvery
	}
}
