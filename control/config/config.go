// Package config describes how the clock is wired up.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// TickPeriod is the multiplexer tick period.
	TickPeriod time.Duration `yaml:"tick_period"`
	// LoopDelay is the pause at the end of each main loop iteration.
	LoopDelay time.Duration `yaml:"loop_delay"`
	// HeartbeatDelay is how long the heartbeat line is held at the start of each iteration.
	HeartbeatDelay time.Duration `yaml:"heartbeat_delay"`
	// WatchdogTimeout is how long the main loop may go without finishing an iteration.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`

	// Location is an IANA time zone name for the system clock; empty means local time.
	Location string `yaml:"location"`
	Hour12   bool   `yaml:"hour12"`

	Display     DisplayConfig     `yaml:"display"`
	Switches    []string          `yaml:"switches"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	RTC         RTCConfig         `yaml:"rtc"`
	Light       LightConfig       `yaml:"light"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Influx      InfluxConfig      `yaml:"influx"`
}

// ---- DISPLAY ----

type DisplayConfig struct {
	Segments          []string `yaml:"segments"` // a, b, c, d, e, f, g, dp
	Digits            []string `yaml:"digits"`   // leftmost first
	SegmentsActiveLow bool     `yaml:"segments_active_low"`
	DigitsActiveLow   bool     `yaml:"digits_active_low"`
}

// Preview reports whether no display pins are configured.  The clock then runs against the
// software screen only.
func (d DisplayConfig) Preview() bool {
	return len(d.Segments) == 0 && len(d.Digits) == 0
}

type HeartbeatConfig struct {
	Pin       string `yaml:"pin"` // optional
	ActiveLow bool   `yaml:"active_low"`
}

// ---- RTC ----

const (
	RTCSystem = "system"
	RTCDS1302 = "ds1302"
)

type RTCConfig struct {
	Kind string `yaml:"kind"` // system or ds1302
	CE   string `yaml:"ce"`
	SCLK string `yaml:"sclk"`
	IO   string `yaml:"io"`
}

// ---- SENSORS ----

const (
	LightFixed   = "fixed"
	LightADS1115 = "ads1115"
	LightTSL2591 = "tsl2591"

	TemperatureNone   = "none"
	TemperatureBME280 = "bme280"
)

type LightConfig struct {
	Kind      string  `yaml:"kind"`    // fixed, ads1115, or tsl2591
	I2CBus    string  `yaml:"i2c_bus"` // i2creg name; empty is the first bus
	Address   uint16  `yaml:"address"`
	Channel   int     `yaml:"channel"`
	FullScale float64 `yaml:"full_scale"` // volts
	Invert    bool    `yaml:"invert"`
	Value     uint8   `yaml:"value"` // for fixed
}

type TemperatureConfig struct {
	Kind    string `yaml:"kind"` // none or bme280
	I2CBus  string `yaml:"i2c_bus"`
	Address uint16 `yaml:"address"`
}

// ---- EXPORT ----

// InfluxConfig sends sensor readings to InfluxDB.  The token is read from $INFLUXDB_TOKEN, not
// the config file.
type InfluxConfig struct {
	URL    string `yaml:"url"` // empty disables export
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	// Every is how many loop iterations pass between points.
	Every int `yaml:"every"`
}

// Parse reads a YAML config.  Unknown fields are errors.  An empty document is a valid config.
func Parse(r io.Reader) (*Config, error) {
	cfg := new(Config)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Load reads, normalizes, and validates the config file at path.  An empty path is the default
// config, which runs in preview mode.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}
