package transport

import (
	"io"
	"time"
)

// PipeConfig wraps any raw byte channel (an in-memory pipe in tests, a TCP
// connection to a serial-over-network bridge, a pty) in the byte-stream
// adapter. The same framing codec applies as for a local serial port.
type PipeConfig struct {
	RW io.ReadWriteCloser

	// Name labels log lines; defaults to "pipe".
	Name string
}

type pipeAdapter struct {
	*byteStream
	rw io.ReadWriteCloser
}

func newPipeAdapter(cfg PipeConfig, silence time.Duration) *pipeAdapter {
	name := cfg.Name
	if name == "" {
		name = "pipe"
	}
	return &pipeAdapter{
		byteStream: newByteStream(name, silence),
		rw:         cfg.RW,
	}
}

func (a *pipeAdapter) Connect() error {
	a.start(a.rw)
	return nil
}
