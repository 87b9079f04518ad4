package transport

import (
	"encoding/binary"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/protocol"
)

// SimulatorConfig parameterizes the software board simulator.
//
// The simulator reacts to the same command set as real firmware: it starts
// and stops per-side raw-sample streams, answers status/version requests,
// and tracks sampling-mode switches. Emitted raw values are a slow sine
// drift around BaseRaw with Gaussian noise, which is enough to exercise
// calibration capture and the pipeline under realistic jitter.
type SimulatorConfig struct {
	// BaseRaw is the center raw ADC value per side. Zero value means
	// {20000, 21000}.
	BaseRawLeft  int32
	BaseRawRight int32

	// NoiseSigma is the Gaussian noise standard deviation in raw counts.
	// Zero means 25.
	NoiseSigma float64

	// DriftAmplitude is the peak sine drift in raw counts (default 100).
	DriftAmplitude float64

	// Seed fixes the noise source for reproducible tests; zero seeds from
	// the current time.
	Seed uint64

	// Version reported on request.
	Version models.FirmwareVersion
}

type simulator struct {
	cfg SimulatorConfig

	frames chan can.Frame
	wd     *Watchdog

	mu      sync.Mutex
	mode    models.SamplingMode
	streams map[models.Side]chan struct{}

	closed atomic.Bool
}

func newSimulator(cfg SimulatorConfig, silence time.Duration) *simulator {
	if cfg.BaseRawLeft == 0 {
		cfg.BaseRawLeft = 20000
	}
	if cfg.BaseRawRight == 0 {
		cfg.BaseRawRight = 21000
	}
	if cfg.NoiseSigma == 0 {
		cfg.NoiseSigma = 25
	}
	if cfg.DriftAmplitude == 0 {
		cfg.DriftAmplitude = 100
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Version == (models.FirmwareVersion{}) {
		cfg.Version = models.FirmwareVersion{Major: 2, Minor: 4, Patch: 0, Build: 17}
	}
	return &simulator{
		cfg:     cfg,
		frames:  make(chan can.Frame, frameChanCap),
		wd:      NewWatchdog(silence),
		streams: make(map[models.Side]chan struct{}),
	}
}

func (s *simulator) Connect() error {
	s.wd.Start()
	return nil
}

func (s *simulator) Disconnect() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	for side, stop := range s.streams {
		close(stop)
		delete(s.streams, side)
	}
	s.mu.Unlock()
	s.wd.Stop()
	close(s.frames)
	return nil
}

func (s *simulator) Frames() <-chan can.Frame { return s.frames }
func (s *simulator) Lost() <-chan time.Time   { return s.wd.C() }

// Send reacts to a host command the way real firmware would.
func (s *simulator) Send(id uint16, payload []byte) error {
	f, err := can.New(id, payload)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	cmd, err := protocol.DecodeCommand(f)
	if err != nil {
		// Real firmware ignores unknown commands.
		return nil
	}
	switch cmd.Kind {
	case protocol.CmdStartStream:
		s.startStream(cmd.Side, cmd.Rate)
	case protocol.CmdStopAllStreams:
		s.stopAll()
	case protocol.CmdSwitchMode:
		s.mu.Lock()
		s.mode = cmd.Mode
		s.mu.Unlock()
	case protocol.CmdRequestStatus:
		s.mu.Lock()
		mode := s.mode
		s.mu.Unlock()
		s.emit(protocol.IDStatusResponse, []byte{0x01, 0x00, byte(mode)})
	case protocol.CmdRequestVersion:
		v := s.cfg.Version
		s.emit(protocol.IDVersionResponse, []byte{v.Major, v.Minor, v.Patch, v.Build})
	case protocol.CmdBootEnter, protocol.CmdBootQuery:
		s.emit(protocol.IDBootStatus, []byte{0x00, 0x00})
	}
	return nil
}

func (s *simulator) startStream(side models.Side, rate models.RateCode) {
	hz := rate.Hz()
	if hz <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.streams[side]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.streams[side] = stop
	go s.streamLoop(side, hz, stop)
}

func (s *simulator) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for side, stop := range s.streams {
		close(stop)
		delete(s.streams, side)
	}
}

func (s *simulator) streamLoop(side models.Side, hz int, stop chan struct{}) {
	id := protocol.IDRawSampleLeft
	base := float64(s.cfg.BaseRawLeft)
	if side == models.Right {
		id = protocol.IDRawSampleRight
		base = float64(s.cfg.BaseRawRight)
	}
	noise := distuv.Normal{
		Mu:    0,
		Sigma: s.cfg.NoiseSigma,
		Src:   rand.NewPCG(s.cfg.Seed, uint64(side)+1),
	}
	tick := time.NewTicker(time.Second / time.Duration(hz))
	defer tick.Stop()
	start := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-tick.C:
			t := now.Sub(start).Seconds()
			drift := s.cfg.DriftAmplitude * math.Sin(2*math.Pi*t/30)
			v := int32(math.Round(base + drift + noise.Rand()))
			var p [2]byte
			binary.LittleEndian.PutUint16(p[:], uint16(v))
			s.emit(id, p[:])
		}
	}
}

func (s *simulator) emit(id uint16, payload []byte) {
	if s.closed.Load() {
		return
	}
	f, err := can.New(id, payload)
	if err != nil {
		log.Printf("[simulator] bad frame: %v", err)
		return
	}
	f.Direction = can.Received
	s.wd.Feed()
	// Guard against Disconnect racing the stream loops.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.frames <- f:
	default:
	}
}
