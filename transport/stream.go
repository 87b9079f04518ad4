package transport

import (
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CK6170/canbridge-go/can"
)

// frameChanCap bounds the adapter->dispatcher channel. The dispatcher is
// cheap, so this only absorbs scheduling jitter; overflow is dropped and
// counted rather than blocking the read loop.
const frameChanCap = 256

// byteStream is the shared receive/transmit core for adapters that own a
// raw byte channel (serial port, pipe). It runs the framing codec over the
// incoming stream and serializes physical writes.
type byteStream struct {
	name string

	mu  sync.Mutex // guards rwc swap on connect/disconnect
	rwc io.ReadWriteCloser

	txMu sync.Mutex // send-side exclusion around the physical write only

	codec  Codec
	frames chan can.Frame
	wd     *Watchdog

	closed  atomic.Bool
	overrun atomic.Uint64
}

func newByteStream(name string, silence time.Duration) *byteStream {
	return &byteStream{
		name:   name,
		frames: make(chan can.Frame, frameChanCap),
		wd:     NewWatchdog(silence),
	}
}

func (s *byteStream) start(rwc io.ReadWriteCloser) {
	s.mu.Lock()
	s.rwc = rwc
	s.mu.Unlock()
	s.wd.Start()
	go s.readLoop(rwc)
}

func (s *byteStream) Frames() <-chan can.Frame { return s.frames }
func (s *byteStream) Lost() <-chan time.Time   { return s.wd.C() }

// Send encodes one frame into the transmit envelope and writes it under the
// tx mutex so a partially written envelope is never interleaved with
// another transmit.
func (s *byteStream) Send(id uint16, payload []byte) error {
	f, err := can.New(id, payload)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	rwc := s.rwc
	s.mu.Unlock()
	if rwc == nil {
		return ErrNotConnected
	}
	raw, err := EncodeTX(f)
	if err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	_, err = rwc.Write(raw)
	return err
}

// Disconnect releases the channel. Idempotent; safe while a read is in
// flight (closing the underlying channel unblocks it).
func (s *byteStream) Disconnect() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.wd.Stop()
	s.mu.Lock()
	rwc := s.rwc
	s.rwc = nil
	s.mu.Unlock()
	var err error
	if rwc != nil {
		err = rwc.Close()
	}
	return err
}

func (s *byteStream) readLoop(rwc io.ReadWriteCloser) {
	defer close(s.frames)
	buf := make([]byte, 512)
	for {
		if s.closed.Load() {
			return
		}
		n, err := rwc.Read(buf)
		if n > 0 {
			s.codec.Feed(buf[:n])
			for {
				f, ok := s.codec.Next()
				if !ok {
					break
				}
				f.At = time.Now()
				s.wd.Feed()
				select {
				case s.frames <- f:
				default:
					// Never block the ingestion side on a stalled consumer.
					if d := s.overrun.Add(1); d == 1 || d%1000 == 0 {
						log.Printf("[%s] frame channel full, dropped %d frames", s.name, d)
					}
				}
			}
		}
		if err != nil {
			if s.closed.Load() {
				return
			}
			// A single failed read does not tear down the connection;
			// retry at the read-loop cadence.
			if err != io.EOF {
				log.Printf("[%s] read error: %v", s.name, err)
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}
