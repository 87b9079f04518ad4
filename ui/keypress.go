package ui

import (
	"sync"

	"github.com/eiannone/keyboard"
)

// Singleton buffered channel and one reader goroutine to avoid multiple opens
// and to make DrainKeys non-blocking and reliable across phases.
var (
	keyCh     chan rune
	startOnce sync.Once
)

// StartKeyEvents returns a channel that emits single-key runes read without
// Enter. It initializes a single background reader the first time it is
// called. The returned channel is buffered; callers may receive from it. If
// opening the keyboard fails, an inert buffered channel is returned (it will
// not emit keys).
func StartKeyEvents() chan rune {
	startOnce.Do(func() {
		keyCh = make(chan rune, 64)
		if err := keyboard.Open(); err != nil {
			// Keyboard not available; keep a buffered channel that never emits.
			return
		}
		go func() {
			defer keyboard.Close()
			for {
				char, key, err := keyboard.GetKey()
				if err != nil {
					close(keyCh)
					return
				}
				if key == 0 {
					// Drop events if nobody is consuming; the reader must
					// never block.
					select {
					case keyCh <- char:
					default:
					}
				} else if key == keyboard.KeyEsc {
					select {
					case keyCh <- 27:
					default:
					}
				}
			}
		}()
	})
	if keyCh == nil {
		keyCh = make(chan rune, 64)
	}
	return keyCh
}

// DrainKeys consumes any immediately available keys to avoid accidental
// triggers carried over from a previous phase.
func DrainKeys() {
	ch := StartKeyEvents()
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// ConfirmYN shows a green prompt and waits for a single Y/N keypress
// (case-insensitive). ESC returns 27.
func ConfirmYN(message string) rune {
	Greenf("%s\n", message)
	DrainKeys()
	keys := StartKeyEvents()
	for k := range keys {
		switch k {
		case 'Y', 'y':
			return 'Y'
		case 'N', 'n':
			return 'N'
		case 27:
			return 27
		}
	}
	return 27
}
