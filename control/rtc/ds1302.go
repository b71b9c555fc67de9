package rtc

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DS1302 register addresses, as write commands.  OR with cmdRead to read.
const (
	regSeconds      = 0x80
	regWriteProtect = 0x8e
	regClockBurst   = 0xbe

	cmdRead = 0x01

	// The chip needs 1µs between clock edges at 2V; this is comfortably slower.
	halfClock = 2 * time.Microsecond
)

// DS1302 talks to a Maxim DS1302 over its 3-wire interface, bit-banged on three GPIO pins.  CE
// frames a transfer, data is sampled by the chip on the rising edge of SCLK and driven by the chip
// after the falling edge, least significant bit first.
type DS1302 struct {
	CE, SCLK gpio.PinOut
	IO       gpio.PinIO

	mu sync.Mutex
}

func (d *DS1302) wait() { time.Sleep(halfClock) }

func (d *DS1302) writeByte(b byte) error {
	if err := d.IO.Out(gpio.Low); err != nil {
		return fmt.Errorf("set io to output: %w", err)
	}
	for i := 0; i < 8; i++ {
		if err := d.IO.Out(gpio.Level(b&1 == 1)); err != nil {
			return fmt.Errorf("write bit %d: %w", i, err)
		}
		b >>= 1
		d.wait()
		if err := d.SCLK.Out(gpio.High); err != nil {
			return fmt.Errorf("raise sclk: %w", err)
		}
		d.wait()
		if err := d.SCLK.Out(gpio.Low); err != nil {
			return fmt.Errorf("lower sclk: %w", err)
		}
	}
	return nil
}

// readByte reads one byte.  The first bit is already on IO when this is called, because the chip
// drives it on the falling edge that ended the previous byte.
func (d *DS1302) readByte() (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		if d.IO.Read() == gpio.High {
			b |= 1 << i
		}
		if err := d.SCLK.Out(gpio.High); err != nil {
			return 0, fmt.Errorf("raise sclk: %w", err)
		}
		d.wait()
		if err := d.SCLK.Out(gpio.Low); err != nil {
			return 0, fmt.Errorf("lower sclk: %w", err)
		}
		d.wait()
	}
	return b, nil
}

// transfer sends cmd and then either writes w or reads len(r) bytes into r.
func (d *DS1302) transfer(cmd byte, w []byte, r []byte) (retErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.SCLK.Out(gpio.Low); err != nil {
		return fmt.Errorf("lower sclk: %w", err)
	}
	if err := d.CE.Out(gpio.High); err != nil {
		return fmt.Errorf("raise ce: %w", err)
	}
	defer func() {
		if err := d.CE.Out(gpio.Low); err != nil && retErr == nil {
			retErr = fmt.Errorf("lower ce: %w", err)
		}
	}()
	d.wait()

	if err := d.writeByte(cmd); err != nil {
		return fmt.Errorf("command %#x: %w", cmd, err)
	}
	for i, b := range w {
		if err := d.writeByte(b); err != nil {
			return fmt.Errorf("data byte %d: %w", i, err)
		}
	}
	if len(r) == 0 {
		return nil
	}
	if err := d.IO.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("set io to input: %w", err)
	}
	for i := range r {
		b, err := d.readByte()
		if err != nil {
			return fmt.Errorf("read byte %d: %w", i, err)
		}
		r[i] = b
	}
	return nil
}

// WriteRegister writes one register, addressed by its write command.
func (d *DS1302) WriteRegister(reg, value byte) error {
	if err := d.transfer(reg&^cmdRead, []byte{value}, nil); err != nil {
		return fmt.Errorf("write register %#x: %w", reg, err)
	}
	return nil
}

// Init clears write protection and starts the oscillator.  Starting the oscillator resets the
// seconds to 0.
func (d *DS1302) Init() error {
	if err := d.WriteRegister(regWriteProtect, 0); err != nil {
		return fmt.Errorf("clear write protect: %w", err)
	}
	if err := d.WriteRegister(regSeconds, 0); err != nil {
		return fmt.Errorf("clear clock halt: %w", err)
	}
	return nil
}

// Registers reads the 8 clock registers in one burst.
func (d *DS1302) Registers() ([8]byte, error) {
	var buf [8]byte
	if err := d.transfer(regClockBurst|cmdRead, nil, buf[:]); err != nil {
		return buf, fmt.Errorf("burst read: %w", err)
	}
	return buf, nil
}

// Now implements Clock.
func (d *DS1302) Now() (Time, error) {
	regs, err := d.Registers()
	if err != nil {
		return Time{}, err
	}
	return Decode(regs), nil
}

// Decode interprets the 8 clock registers of a burst read: seconds, minutes, hours, date, month,
// weekday, year, and write-protect.
func Decode(regs [8]byte) Time {
	t := Time{
		Halted:    regs[0]&0x80 != 0,
		TenSecond: regs[0] >> 4 & 0x7,
		Second:    regs[0] & 0xf,
		TenMinute: regs[1] >> 4 & 0x7,
		Minute:    regs[1] & 0xf,
		Hour12:    regs[2]&0x80 != 0,
		Hour:      regs[2] & 0xf,
		TenDay:    regs[3] >> 4 & 0x3,
		Day:       regs[3] & 0xf,
		TenMonth:  regs[4] >> 4 & 0x1,
		Month:     regs[4] & 0xf,
		Weekday:   regs[5] & 0x7,
		TenYear:   regs[6] >> 4,
		Year:      regs[6] & 0xf,
	}
	if t.Hour12 {
		t.PM = regs[2]&0x20 != 0
		t.TenHour = regs[2] >> 4 & 0x1
	} else {
		t.TenHour = regs[2] >> 4 & 0x3
	}
	return t
}
