// Command `canbridge-server` runs the bridge HTTP API + WebSocket streams
// locally for the UI collaborator.
//
// Flags:
//
//	-addr:  TCP address to listen on (default 127.0.0.1:8080)
//	-cal:   calibration JSON file restored at startup, saved on shutdown
//	-tares: tare-baseline JSON file restored at startup, saved on shutdown
//
// Env (optionally loaded from a .env file in the working directory):
//
//	CANBRIDGE_ADDR overrides -addr when set.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/device"
	"github.com/CK6170/canbridge-go/file"
	"github.com/CK6170/canbridge-go/internal/server"
	"github.com/CK6170/canbridge-go/models"
)

// App version variables. Set these at build time with -ldflags if desired.
var (
	AppVersion = "dev"
	AppBuild   = "local"
)

func main() {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var (
		addr     = flag.String("addr", "127.0.0.1:8080", "http listen address")
		calPath  = flag.String("cal", "canbridge_calibration.json", "calibration state file")
		tarePath = flag.String("tares", "canbridge_tares.json", "tare baseline state file")
	)
	flag.Parse()

	listen := *addr
	if env := os.Getenv("CANBRIDGE_ADDR"); env != "" {
		listen = env
	}

	dev := device.New()
	restoreState(dev, *calPath, *tarePath)
	s := server.New(dev)

	// Bind the listen address early so we fail fast if the port is in use.
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", listen, err)
	}
	log.Printf("Serving on http://%s", listen)

	// Save calibration + tares on Ctrl-C before exiting.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		saveState(dev, *calPath, *tarePath)
		_ = dev.Disconnect()
		os.Exit(0)
	}()

	if err := http.Serve(ln, s.Handler()); err != nil {
		log.Println(err)
	}
}

func restoreState(dev *device.Device, calPath, tarePath string) {
	cal, err := file.LoadCalibration(calPath)
	if err != nil {
		log.Printf("WARN: %v", err)
	}
	for _, side := range models.Sides {
		points := cal.PointsFor(side)
		if len(points) == 0 {
			continue
		}
		lin, err := calibration.NewLinearFromPoints(points)
		if err != nil {
			log.Printf("WARN: stored %s calibration unusable: %v", side, err)
			continue
		}
		if err := dev.SetCalibration(side, lin); err != nil {
			log.Printf("WARN: %v", err)
		}
	}
	if err := file.LoadTares(tarePath, dev.Tares()); err != nil {
		log.Printf("WARN: %v", err)
	}
}

func saveState(dev *device.Device, calPath, tarePath string) {
	var cal file.CalibrationFile
	for _, side := range models.Sides {
		if lin := dev.Calibration(side); lin != nil {
			cal.SetPointsFor(side, lin.Points())
		}
	}
	if err := file.SaveCalibration(calPath, cal, AppVersion, AppBuild); err != nil {
		log.Printf("WARN: %v", err)
	}
	if err := file.SaveTares(tarePath, dev.Tares()); err != nil {
		log.Printf("WARN: %v", err)
	}
}
