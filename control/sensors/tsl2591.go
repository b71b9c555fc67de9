package sensors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/i2c"
)

var luxMetric = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tsl2591_lux",
	Help: "most recent illuminance computed from the tsl2591's full-spectrum and infrared channels",
})

// TSL2591DefaultAddr is the only address the TSL2591 answers on.
const TSL2591DefaultAddr = 0x29

// TSL2591 is an ams TSL2591 light-to-digital converter.
type TSL2591 struct {
	dev  i2c.Dev
	gain Gain
	it   time.Duration

	// Shift is how far the full-spectrum count is shifted right before it's clamped to 8 bits and
	// inverted into a Light reading.  Larger values make the display reach full brightness in
	// brighter rooms.
	Shift uint
}

type Register uint8

const (
	RegisterDeviceID Register = 0x12
	RegisterEnable   Register = 0x00
	RegisterControl  Register = 0x01
	RegisterChan0Low Register = 0x14
	RegisterChan1Low Register = 0x16
)

type Gain uint8

const (
	LowGain    Gain = 0x00
	MediumGain Gain = 0x10
	HighGain   Gain = 0x20
	MaxGain    Gain = 0x30
)

const (
	CommandEnablePowerOff = 0x00 // nolint:deadcode
	CommandEnablePowerOn  = 0x01
	CommandEnableAEN      = 0x02
	CommandEnableAIEN     = 0x10
	CommandEnableNPIEN    = 0x80

	IntegrationTime100ms = 0x00
	IntegrationTime200ms = 0x01
	IntegrationTime300ms = 0x02
	IntegrationTime400ms = 0x03
	IntegrationTime500ms = 0x04
	IntegrationTime600ms = 0x05

	tsl2591DeviceID = 0x50
)

// NewTSL2591 checks that a TSL2591 is on the bus, enables it, and sets the gain and integration
// time.
func NewTSL2591(bus i2c.Bus, gain Gain, it uint8) (*TSL2591, error) {
	t := &TSL2591{dev: i2c.Dev{Bus: bus, Addr: TSL2591DefaultAddr}, Shift: 4}
	id, err := t.GetDeviceID()
	if err != nil {
		return nil, fmt.Errorf("get device id: %w", err)
	}
	if got, want := id, uint8(tsl2591DeviceID); got != want {
		return nil, fmt.Errorf("device at %#x is not a TSL2591 (got: %x, want: %x)", TSL2591DefaultAddr, got, want)
	}
	if err := t.Enable(); err != nil {
		return nil, fmt.Errorf("enable tsl2591: %w", err)
	}
	if err := t.SetGain(gain); err != nil {
		return nil, fmt.Errorf("adjust tsl2591 gain: %w", err)
	}
	if err := t.SetIntegrationTime(it); err != nil {
		return nil, fmt.Errorf("adjust tsl2591 integration time: %w", err)
	}
	return t, nil
}

func (t *TSL2591) ReadRegister(r Register, out interface{}) error {
	var buf [2]byte
	if err := t.dev.Tx([]byte{byte(0xA0 | r)}, buf[:]); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	reader := bytes.NewReader(buf[:])
	if err := binary.Read(reader, binary.LittleEndian, out); err != nil {
		return fmt.Errorf("binary.Read: %w", err)
	}
	return nil
}

func (t *TSL2591) WriteRegister(r Register, data ...byte) error {
	w := make([]byte, 1, len(data)+1)
	w[0] = byte(0xA0 | r)
	w = append(w, data...)
	if err := t.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

func (t *TSL2591) GetDeviceID() (uint8, error) {
	var result uint8
	if err := t.ReadRegister(RegisterDeviceID, &result); err != nil {
		return 0, fmt.Errorf("read register: %w", err)
	}
	return result, nil
}

func (t *TSL2591) Enable() error {
	if err := t.WriteRegister(RegisterEnable, CommandEnablePowerOn|CommandEnableAEN|CommandEnableAIEN|CommandEnableNPIEN); err != nil {
		return fmt.Errorf("write enable register: %w", err)
	}
	return nil
}

func (t *TSL2591) SetGain(gain Gain) error {
	var control uint8
	if err := t.ReadRegister(RegisterControl, &control); err != nil {
		return fmt.Errorf("read control register: %w", err)
	}
	control &= 0b11001111
	control |= uint8(gain)
	if err := t.WriteRegister(RegisterControl, control); err != nil {
		return fmt.Errorf("write control register: %w", err)
	}
	t.gain = gain
	return nil
}

func (t *TSL2591) SetIntegrationTime(it uint8) error {
	if it > IntegrationTime600ms {
		return fmt.Errorf("invalid integration time %#x", it)
	}
	var control uint8
	if err := t.ReadRegister(RegisterControl, &control); err != nil {
		return fmt.Errorf("read control register: %w", err)
	}
	control &= 0b11111000
	control |= it
	if err := t.WriteRegister(RegisterControl, control); err != nil {
		return fmt.Errorf("write control register: %w", err)
	}
	t.it = time.Duration(it+1) * 100 * time.Millisecond
	return nil
}

// GetLuminosity returns the full-spectrum and infrared counts.
func (t *TSL2591) GetLuminosity() (uint16, uint16, error) {
	var chan0, chan1 uint16
	if err := t.ReadRegister(RegisterChan0Low, &chan0); err != nil {
		return 0, 0, fmt.Errorf("read chan0: %w", err)
	}
	if err := t.ReadRegister(RegisterChan1Low, &chan1); err != nil {
		return 0, 0, fmt.Errorf("read chan1: %w", err)
	}
	return chan0, chan1, nil
}

// Lux converts raw channel counts to illuminance, using the current gain and integration time.
func (t *TSL2591) Lux(total, ir uint16) float64 {
	var gain float64
	switch t.gain {
	case LowGain:
		gain = 1.0
	case MediumGain:
		gain = 25.0
	case HighGain:
		gain = 428.0
	case MaxGain:
		gain = 9876.0
	}
	if total == 0 || ir >= total {
		return 0
	}
	// Nobody likes this calculation apparently:
	// https://github.com/adafruit/Adafruit_TSL2591_Library/issues/14
	cpl := (gain * float64(t.it) / float64(time.Millisecond)) / 408.0
	return float64(total-ir) * (1.0 - float64(ir)/float64(total)) / cpl
}

// Light implements Light.  The illuminance of each reading is exported as a gauge.
func (t *TSL2591) Light() (uint8, error) {
	total, ir, err := t.GetLuminosity()
	if err != nil {
		return 0, fmt.Errorf("read luminosity: %w", err)
	}
	luxMetric.Set(t.Lux(total, ir))
	v := total >> t.Shift
	if v > 255 {
		v = 255
	}
	return 255 - uint8(v), nil
}
