// Package sensors reads the ambient light and temperature sensors.
package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/bmxx80"
)

// Light reads the ambient light level.  Readings are 0-255, and higher means darker; the display
// dims as the reading rises.
type Light interface {
	Light() (uint8, error)
}

// Thermometer reads the temperature.
type Thermometer interface {
	Temperature() (physic.Temperature, error)
}

// Fixed is a Light that always returns the same reading.  It's used when no sensor is attached.
type Fixed uint8

// Light implements Light.
func (f Fixed) Light() (uint8, error) { return uint8(f), nil }

type sampler interface {
	Read() (analog.Sample, error)
}

// ADC reads a light-dependent resistor through an analog input.  The reading is the input voltage
// as a fraction of Max, scaled to 0-255.  If Invert is set, the fraction is inverted first; use it
// when the divider's voltage rises with light.
type ADC struct {
	pin    sampler
	Max    physic.ElectricPotential
	Invert bool
}

var adcChannels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// NewADS1115 returns an ADC that reads single-ended channel ch (0-3) of an ADS1115 at addr.
func NewADS1115(bus i2c.Bus, addr uint16, ch int, fullScale physic.ElectricPotential, invert bool) (*ADC, error) {
	if ch < 0 || ch >= len(adcChannels) {
		return nil, fmt.Errorf("invalid ads1115 channel %d", ch)
	}
	if fullScale <= 0 {
		return nil, fmt.Errorf("invalid full-scale voltage %v", fullScale)
	}
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, fmt.Errorf("init ads1115: %w", err)
	}
	pin, err := dev.PinForChannel(adcChannels[ch], fullScale, physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("open ads1115 channel %d: %w", ch, err)
	}
	return &ADC{pin: pin, Max: fullScale, Invert: invert}, nil
}

// Light implements Light.
func (a *ADC) Light() (uint8, error) {
	s, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	v := s.V
	if v < 0 {
		v = 0
	}
	if v > a.Max {
		v = a.Max
	}
	if a.Invert {
		v = a.Max - v
	}
	return uint8(int64(v) * 255 / int64(a.Max)), nil
}

// BME280 reads temperature from a Bosch BME280 (or BMP280).
type BME280 struct {
	dev *bmxx80.Dev
}

// NewBME280 opens the sensor at addr (0x76 or 0x77).
func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.Opts{Temperature: bmxx80.O16x, Pressure: bmxx80.O16x, Humidity: bmxx80.O16x})
	if err != nil {
		return nil, fmt.Errorf("init bme280: %w", err)
	}
	return &BME280{dev: dev}, nil
}

// Temperature implements Thermometer.
func (b *BME280) Temperature() (physic.Temperature, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	return e.Temperature, nil
}

// Celsius converts t to degrees Celsius.
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}
