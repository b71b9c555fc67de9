package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/config"
	"github.com/jrockway/segment-clock/control/display"
	"github.com/jrockway/segment-clock/control/influx"
	"github.com/jrockway/segment-clock/control/pins"
	"github.com/jrockway/segment-clock/control/rtc"
	"github.com/jrockway/segment-clock/control/screen"
	"github.com/jrockway/segment-clock/control/sensors"
	"github.com/jrockway/segment-clock/control/status"
	"github.com/jrockway/segment-clock/control/tick"
	"github.com/jrockway/segment-clock/control/watchdog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/net/trace" // registers /debug/requests and /debug/events
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var (
	bind       = flag.String("bind", ":8080", "address to bind for debug/metrics server")
	configFile = flag.String("config", "", "yaml file describing how the clock is wired; empty runs the preview only")
)

// buses opens each I2C bus once.
type buses map[string]i2c.BusCloser

func (b buses) open(name string) (i2c.Bus, error) {
	if bus, ok := b[name]; ok {
		return bus, nil
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	b[name] = bus
	return bus, nil
}

func (b buses) close() {
	for name, bus := range b {
		if err := bus.Close(); err != nil {
			log.Printf("close i2c bus %q: %v", name, err)
		}
	}
}

func openRTC(cfg *config.Config) (rtc.Clock, error) {
	switch cfg.RTC.Kind {
	case config.RTCDS1302:
		p, err := pins.ByName([]string{cfg.RTC.CE, cfg.RTC.SCLK, cfg.RTC.IO})
		if err != nil {
			return nil, fmt.Errorf("ds1302 pins: %w", err)
		}
		d := &rtc.DS1302{CE: p[0], SCLK: p[1], IO: p[2]}
		if err := d.Init(); err != nil {
			return nil, fmt.Errorf("init ds1302: %w", err)
		}
		return d, nil
	default:
		loc := time.Local
		if cfg.Location != "" {
			var err error
			loc, err = time.LoadLocation(cfg.Location)
			if err != nil {
				return nil, fmt.Errorf("load location: %w", err)
			}
		}
		return &rtc.System{Location: loc, Hour12: cfg.Hour12}, nil
	}
}

func openLight(cfg *config.Config, b buses) (sensors.Light, error) {
	lc := cfg.Light
	switch lc.Kind {
	case config.LightADS1115:
		bus, err := b.open(lc.I2CBus)
		if err != nil {
			return nil, err
		}
		fullScale := physic.ElectricPotential(lc.FullScale * float64(physic.Volt))
		return sensors.NewADS1115(bus, lc.Address, lc.Channel, fullScale, lc.Invert)
	case config.LightTSL2591:
		bus, err := b.open(lc.I2CBus)
		if err != nil {
			return nil, err
		}
		return sensors.NewTSL2591(bus, sensors.MediumGain, sensors.IntegrationTime100ms)
	default:
		return sensors.Fixed(lc.Value), nil
	}
}

func openThermometer(cfg *config.Config, b buses) (sensors.Thermometer, error) {
	if cfg.Temperature.Kind != config.TemperatureBME280 {
		return nil, nil
	}
	bus, err := b.open(cfg.Temperature.I2CBus)
	if err != nil {
		return nil, err
	}
	return sensors.NewBME280(bus, cfg.Temperature.Address)
}

func main() {
	flag.Parse()
	log.Printf("clock starting")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if _, err := host.Init(); err != nil {
		log.Fatalf("init periph.io: %v", err)
	}

	preview := screen.New()
	preview.Blank()
	var (
		leds *pins.Pins
		io   display.GPIO = preview
	)
	if !cfg.Display.Preview() {
		leds, err = pins.New(pins.Opts{
			Segments:          cfg.Display.Segments,
			Digits:            cfg.Display.Digits,
			Switches:          cfg.Switches,
			SegmentsActiveLow: cfg.Display.SegmentsActiveLow,
			DigitsActiveLow:   cfg.Display.DigitsActiveLow,
		})
		if err != nil {
			log.Fatalf("init display pins: %v", err)
		}
		io = display.Mirror(leds, preview)
		preview.ExternalSwitches = true
	} else {
		log.Printf("no display pins configured; running the preview only")
	}
	ctrl := display.New(io)
	preview.Caption = func() string {
		s := ctrl.Snapshot()
		return fmt.Sprintf("light %3d   S1 %3d   S2 %3d", s.Light, s.Presses[display.S1], s.Presses[display.S2])
	}

	b := make(buses)
	cl := &clock.Clock{
		Display:        ctrl,
		LoopDelay:      cfg.LoopDelay,
		HeartbeatDelay: cfg.HeartbeatDelay,
	}
	if cl.RTC, err = openRTC(cfg); err != nil {
		log.Fatalf("open rtc: %v", err)
	}
	if cl.Light, err = openLight(cfg, b); err != nil {
		log.Fatalf("open light sensor: %v", err)
	}
	if th, err := openThermometer(cfg, b); err != nil {
		log.Fatalf("open temperature sensor: %v", err)
	} else if th != nil {
		cl.Thermometer = th
	}
	if cfg.Heartbeat.Pin != "" {
		hb, err := pins.NewLine(cfg.Heartbeat.Pin, cfg.Heartbeat.ActiveLow)
		if err != nil {
			log.Fatalf("init heartbeat: %v", err)
		}
		cl.Heartbeat = hb
	}
	wd := watchdog.New(cfg.WatchdogTimeout, nil)
	cl.Watchdog = wd

	ctx, cancel := context.WithCancel(context.Background())

	page := &status.Page{
		Display: ctrl.Snapshot,
		Frame: func() (image.Image, [display.Digits]float64) {
			return preview.Frame()
		},
	}
	var sink *influx.Sink
	if cfg.Influx.URL != "" {
		token := os.Getenv("INFLUXDB_TOKEN")
		if token == "" {
			log.Println("not sending to influxdb; $INFLUXDB_TOKEN not set")
		}
		sink = influx.New(cfg.Influx.URL, cfg.Influx.Org, cfg.Influx.Bucket, token)
		go func() {
			if err := sink.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("influx sink died: %v", err)
			}
		}()
	}
	cl.Report = func(r clock.Reading) {
		page.Update(r)
		if sink == nil || r.Iteration%uint(cfg.Influx.Every) != 0 {
			return
		}
		fields := []influx.Field{{Key: "light", Value: float64(r.Light)}}
		if cl.Thermometer != nil && r.Temperature != 0 {
			fields = append(fields, influx.Field{Key: "temperature", Value: sensors.Celsius(r.Temperature)})
		}
		sink.Offer(influx.Line("clock", fields, time.Now()))
	}

	http.Handle("/", page)
	http.Handle("/display.png", preview)
	http.HandleFunc("/switch", preview.ServeSwitch)
	http.Handle("/metrics", promhttp.Handler())

	httpDoneCh := make(chan error)
	httpServer := http.Server{Addr: *bind}
	go func() {
		log.Printf("http server listening on %s", httpServer.Addr)
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	tickDoneCh := make(chan error)
	go func() {
		err := tick.Run(ctx, cfg.TickPeriod, ctrl.Tick)
		select {
		case tickDoneCh <- err:
		case <-ctx.Done():
		}
		close(tickDoneCh)
	}()

	loopDoneCh := make(chan error)
	go func() {
		err := cl.Run(ctx)
		select {
		case loopDoneCh <- err:
		case <-ctx.Done():
		}
		close(loopDoneCh)
	}()

	go func() {
		if err := wd.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("watchdog died: %v", err)
		}
	}()

	httpAlive := true
	select {
	case err := <-httpDoneCh:
		log.Printf("http server died: %v", err)
		httpAlive = false
	case err := <-tickDoneCh:
		log.Printf("tick source died: %v", err)
	case err := <-loopDoneCh:
		log.Printf("clock loop died: %v", err)
	case <-sigCh:
		log.Printf("interrupt")
	}
	signal.Stop(sigCh)
	cancel()
	// Wait for the tick handler to stop before blanking, so it can't light a digit afterwards.
	<-tickDoneCh
	preview.Blank()
	if leds != nil {
		if err := leds.Blank(); err != nil {
			log.Printf("blank display: %v", err)
		}
	}
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		httpServer.Shutdown(tctx)
		c()
	}
	b.close()
	os.Exit(1)
}
