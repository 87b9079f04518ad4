package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CK6170/canbridge-go/can"
)

// Driver is the contract a vendor CAN driver must satisfy to be used
// through the driver adapter. Such drivers deliver already-framed messages,
// so no byte-stream codec is involved.
type Driver interface {
	Init() error
	Start()
	Stop()
	Write(id uint16, payload []byte) error
	Frames() <-chan can.Frame
}

// DriverConfig selects the vendor driver instance to wrap.
type DriverConfig struct {
	Driver Driver
}

type driverAdapter struct {
	drv    Driver
	frames chan can.Frame
	wd     *Watchdog

	txMu   sync.Mutex
	closed atomic.Bool
}

func newDriverAdapter(cfg DriverConfig, silence time.Duration) *driverAdapter {
	return &driverAdapter{
		drv:    cfg.Driver,
		frames: make(chan can.Frame, frameChanCap),
		wd:     NewWatchdog(silence),
	}
}

func (a *driverAdapter) Connect() error {
	if err := a.drv.Init(); err != nil {
		return fmt.Errorf("transport: driver init: %w", err)
	}
	a.drv.Start()
	a.wd.Start()
	go a.pump()
	return nil
}

func (a *driverAdapter) pump() {
	defer close(a.frames)
	for f := range a.drv.Frames() {
		if a.closed.Load() {
			return
		}
		if f.At.IsZero() {
			f.At = time.Now()
		}
		f.Direction = can.Received
		a.wd.Feed()
		select {
		case a.frames <- f:
		default:
		}
	}
}

func (a *driverAdapter) Disconnect() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.wd.Stop()
	a.drv.Stop()
	return nil
}

func (a *driverAdapter) Send(id uint16, payload []byte) error {
	if _, err := can.New(id, payload); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}
	a.txMu.Lock()
	defer a.txMu.Unlock()
	return a.drv.Write(id, payload)
}

func (a *driverAdapter) Frames() <-chan can.Frame { return a.frames }
func (a *driverAdapter) Lost() <-chan time.Time   { return a.wd.C() }
