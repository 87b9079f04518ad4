package transport

import (
	"fmt"
	"time"

	goserial "github.com/tarm/serial"
)

// SerialConfig parameterizes the byte-stream serial adapter.
type SerialConfig struct {
	// Port is the device name ("COM7", "/dev/ttyUSB0"). Empty means
	// auto-detect is the caller's job (see ListPorts).
	Port string

	// Baud defaults to the legacy 2,000,000 when zero.
	Baud int
}

// serialAdapter bridges a tarm/serial port through the framing codec.
type serialAdapter struct {
	*byteStream
	cfg SerialConfig
}

func newSerialAdapter(cfg SerialConfig, silence time.Duration) *serialAdapter {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	return &serialAdapter{
		byteStream: newByteStream("serial "+cfg.Port, silence),
		cfg:        cfg,
	}
}

func (a *serialAdapter) Connect() error {
	if a.cfg.Port == "" {
		return fmt.Errorf("transport: serial port name missing")
	}
	cfg := &goserial.Config{
		Name:        a.cfg.Port,
		Baud:        a.cfg.Baud,
		Parity:      goserial.ParityNone,
		Size:        8,
		StopBits:    goserial.Stop1,
		ReadTimeout: time.Millisecond * 300,
	}
	port, err := goserial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", a.cfg.Port, err)
	}
	a.start(port)
	return nil
}
