// Command `canbridge` is the interactive terminal monitor: it connects to the
// sensor board (or the built-in simulator), starts raw streaming on both
// sides, and shows a live in-place weight line.
//
// Keys:
//
//	L / R   tare the left / right side
//	M       toggle sampling mode (internal <-> external)
//	C / V   capture a calibration point for left / right at -known kg
//	Z       reset all tare baselines
//	S       stop all streams
//	ESC     exit
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/device"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/transport"
	"github.com/CK6170/canbridge-go/ui"
)

func main() {
	_ = godotenv.Load()

	var (
		port  = flag.String("port", "", "serial port (empty = auto-detect)")
		baud  = flag.Int("baud", 0, "serial baud rate (0 = default)")
		sim   = flag.Bool("sim", false, "use the built-in simulator instead of a serial port")
		rate  = flag.Int("rate", 100, "sample rate in Hz (1/100/500/1000)")
		known = flag.Float64("known", 0, "known reference weight in kg for capture keys")
		debug = flag.Bool("debug", false, "verbose debug output")
	)
	flag.Parse()

	// Route the standard logger through the red writer so errors stand out
	// against the live line.
	log.SetFlags(0)
	log.SetOutput(ui.NewRedWriter(os.Stderr))

	cfg, err := buildConfig(*sim, *port, *baud)
	if err != nil {
		log.Fatal(err)
	}
	rc, ok := rateFor(*rate)
	if !ok {
		log.Fatalf("unsupported rate %d Hz (want 1/100/500/1000)", *rate)
	}

	dev := device.New()
	if err := dev.Connect(cfg); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer dev.Disconnect()
	ui.Greenf("Connected (%s)\n", cfg.Kind)
	ui.Debugf(*debug, "streaming both sides at %s\n", rc)

	for _, side := range models.Sides {
		if err := dev.StartStream(side, rc); err != nil {
			log.Fatalf("start stream %s: %v", side, err)
		}
	}

	run(dev, rc, *known, *debug)
	ui.Greenf("\nBye.\n")
}

func rateFor(hz int) (models.RateCode, bool) {
	switch hz {
	case 1:
		return models.Rate1Hz, true
	case 100:
		return models.Rate100Hz, true
	case 500:
		return models.Rate500Hz, true
	case 1000:
		return models.Rate1kHz, true
	default:
		return 0, false
	}
}

func buildConfig(sim bool, port string, baud int) (transport.Config, error) {
	if sim {
		return transport.Config{
			Kind:      transport.KindSimulator,
			Simulator: &transport.SimulatorConfig{},
		}, nil
	}
	if port == "" {
		ports := transport.ListPorts()
		if len(ports) == 0 {
			return transport.Config{}, errors.New("no serial ports found (try -sim)")
		}
		port = ports[0]
	}
	return transport.Config{
		Kind:   transport.KindSerial,
		Serial: &transport.SerialConfig{Port: port, Baud: baud},
	}, nil
}

func run(dev *device.Device, rc models.RateCode, knownKg float64, debug bool) {
	keys := ui.StartKeyEvents()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			ui.PrintLiveLine(
				dev.Snapshot(models.Left),
				dev.Snapshot(models.Right),
				dev.Mode(),
				dev.Processed(),
				dev.Dropped(),
			)
		case k, ok := <-keys:
			if !ok || k == 27 {
				return
			}
			handleKey(dev, rc, knownKg, debug, k)
		}
	}
}

func handleKey(dev *device.Device, rc models.RateCode, knownKg float64, debug bool, k rune) {
	switch k {
	case 'l', 'L':
		tareSide(dev, models.Left)
	case 'r', 'R':
		tareSide(dev, models.Right)
	case 'm', 'M':
		next := models.ModeExternal
		if dev.Mode() == models.ModeExternal {
			next = models.ModeInternal
		}
		if err := dev.SwitchMode(next); err != nil {
			log.Printf("\nmode: %v", err)
			return
		}
		ui.Greenf("\nSwitched to %s\n", next)
	case 'c', 'C':
		capturePoint(dev, models.Left, knownKg)
	case 'v', 'V':
		capturePoint(dev, models.Right, knownKg)
	case 'z', 'Z':
		dev.ResetAllTares()
		ui.Greenf("\nTares cleared\n")
	case 's', 'S':
		if err := dev.StopAllStreams(); err != nil {
			log.Printf("\nstop: %v", err)
			return
		}
		ui.Warningf("\nStreams stopped; press any stream key to restart both\n")
		_ = restartStreams(dev, rc)
	default:
		ui.Debugf(debug, "\nunbound key %q\n", k)
	}
}

func restartStreams(dev *device.Device, rc models.RateCode) error {
	for _, side := range models.Sides {
		if err := dev.StartStream(side, rc); err != nil {
			return err
		}
	}
	return nil
}

func tareSide(dev *device.Device, side models.Side) {
	if err := dev.Tare(side); err != nil {
		log.Printf("\ntare %s: %v", side, err)
		return
	}
	ui.Greenf("\nTared %s\n", side)
}

func capturePoint(dev *device.Device, side models.Side, knownKg float64) {
	ui.Warningf("\nCapturing %s at %.3fkg...\n", side, knownKg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fit, err := dev.CapturePoint(ctx, side, knownKg, calibration.CaptureConfig{})
	if err != nil {
		log.Printf("capture %s: %v", side, err)
		return
	}
	ui.PrintFitLine(side, fit)
}
