package transport

import (
	"bytes"
	"encoding/binary"

	"github.com/CK6170/canbridge-go/can"
)

// Byte-stream framing used by the serial/USB bridge on the sensor board.
//
// The two directions are NOT symmetric:
//
// Receive (board -> host), fixed 20 bytes:
//
//	off 0      0xAA start sentinel
//	off 1      type/length nibble (low nibble = DLC)
//	off 5..6   CAN-ID, little endian
//	off 10..17 payload (8 bytes, zero padded)
//	off 19     0x55 end sentinel
//
// Transmit (host -> board), variable length:
//
//	0xAA, 0xC0|min(len,8), id lo, id hi, payload..., zero padding up to a
//	minimum total of 12 bytes, 0x55
const (
	startSentinel = 0xAA
	endSentinel   = 0x55

	rxFrameSize = 20
	rxOffDLC    = 1
	rxOffID     = 5
	rxOffData   = 10
	rxOffEnd    = 19

	txMinSize = 12
)

// Codec converts the adapter's raw byte stream into discrete CAN frames and
// encodes outgoing frames into the transmit envelope.
//
// It keeps a FIFO buffer of unconsumed bytes and resynchronizes by
// discarding single bytes until a start sentinel leads the buffer. The end
// sentinel's value is deliberately NOT enforced: shipped firmware emits
// frames whose trailer occasionally disagrees, and the hardware-observed
// behavior is to accept them. Mismatches are only counted.
type Codec struct {
	buf bytes.Buffer

	// TrailerMismatches counts accepted frames whose byte at the trailing
	// sentinel offset was not 0x55. Diagnostic only.
	TrailerMismatches uint64
}

// Feed appends raw bytes read from the channel to the codec's buffer.
func (c *Codec) Feed(p []byte) {
	_, _ = c.buf.Write(p)
}

// Next extracts the next complete frame from the buffer, discarding garbage
// as needed. It returns ok=false when fewer than 20 aligned bytes remain.
func (c *Codec) Next() (can.Frame, bool) {
	for {
		data := c.buf.Bytes()
		if len(data) < rxFrameSize {
			compact(&c.buf)
			return can.Frame{}, false
		}
		if data[0] != startSentinel {
			// Resynchronize one byte at a time.
			c.buf.Next(1)
			continue
		}
		raw := make([]byte, rxFrameSize)
		_, _ = c.buf.Read(raw)
		return c.decode(raw), true
	}
}

func (c *Codec) decode(raw []byte) can.Frame {
	if raw[rxOffEnd] != endSentinel {
		c.TrailerMismatches++
	}
	dlc := raw[rxOffDLC] & 0x0F
	if dlc > 8 {
		dlc = 8
	}
	var f can.Frame
	f.ID = binary.LittleEndian.Uint16(raw[rxOffID:rxOffID+2]) & can.MaxStdID
	f.Len = dlc
	copy(f.Data[:], raw[rxOffData:rxOffData+8])
	f.Direction = can.Received
	return f
}

// EncodeTX builds the variable-length transmit envelope for one frame.
func EncodeTX(f can.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	n := int(f.Len)
	out := make([]byte, 0, txMinSize+2)
	out = append(out, startSentinel, 0xC0|byte(n))
	out = append(out, byte(f.ID), byte(f.ID>>8))
	out = append(out, f.Data[:n]...)
	for len(out) < txMinSize-1 {
		out = append(out, 0x00)
	}
	out = append(out, endSentinel)
	return out, nil
}

// EncodeRX builds the fixed 20-byte receive envelope the board emits.
// Used by tests and by simulated peers on the far end of a pipe adapter.
func EncodeRX(f can.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	raw := make([]byte, rxFrameSize)
	raw[0] = startSentinel
	raw[rxOffDLC] = f.Len & 0x0F
	binary.LittleEndian.PutUint16(raw[rxOffID:rxOffID+2], f.ID)
	copy(raw[rxOffData:rxOffData+8], f.Data[:])
	raw[rxOffEnd] = endSentinel
	return raw, nil
}

// compact reclaims consumed prefix capacity once the buffer grows large
// relative to its unread bytes. Thresholds avoid copying on every call.
func compact(b *bytes.Buffer) {
	data := b.Bytes()
	if len(data) < 1024 {
		return
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
	}
}
