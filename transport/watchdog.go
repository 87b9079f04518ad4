package transport

import (
	"sync"
	"time"
)

// Watchdog detects channel silence. Feed it on every received frame; if no
// feed arrives within the timeout it delivers exactly one timestamp on C()
// and stays quiet until the next feed re-arms it.
type Watchdog struct {
	timeout time.Duration

	feed chan struct{}
	out  chan time.Time
	stop chan struct{}
	once sync.Once
}

// NewWatchdog builds a watchdog; call Start to arm it.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		feed:    make(chan struct{}, 1),
		out:     make(chan time.Time, 1),
		stop:    make(chan struct{}),
	}
}

// C delivers one timestamp per silence episode.
func (w *Watchdog) C() <-chan time.Time { return w.out }

// Feed marks channel activity. Never blocks.
func (w *Watchdog) Feed() {
	select {
	case w.feed <- struct{}{}:
	default:
	}
}

// Start runs the watchdog loop until Stop.
func (w *Watchdog) Start() {
	go w.run()
}

// Stop terminates the loop. Idempotent.
func (w *Watchdog) Stop() {
	w.once.Do(func() { close(w.stop) })
}

func (w *Watchdog) run() {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	armed := true
	for {
		select {
		case <-w.feed:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.timeout)
			armed = true
		case t := <-timer.C:
			if !armed {
				continue
			}
			armed = false
			// One-shot per episode; do not restart the timer until fed.
			select {
			case w.out <- t:
			default:
			}
		case <-w.stop:
			return
		}
	}
}
