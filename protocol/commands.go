package protocol

import (
	"errors"
	"fmt"

	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
)

// CommandKind enumerates the host-to-board command set.
type CommandKind int

const (
	CmdStartStream CommandKind = iota
	CmdStopAllStreams
	CmdSwitchMode
	CmdRequestStatus
	CmdRequestVersion
	CmdBootEnter
	CmdBootQuery
)

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	switch k {
	case CmdStartStream:
		return "START_STREAM"
	case CmdStopAllStreams:
		return "STOP_ALL_STREAMS"
	case CmdSwitchMode:
		return "SWITCH_MODE"
	case CmdRequestStatus:
		return "REQUEST_STATUS"
	case CmdRequestVersion:
		return "REQUEST_VERSION"
	case CmdBootEnter:
		return "BOOT_ENTER"
	case CmdBootQuery:
		return "BOOT_QUERY"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one typed host-to-board command. Only the fields relevant to
// Kind are meaningful.
type Command struct {
	Kind CommandKind
	Side models.Side         // CmdStartStream
	Rate models.RateCode     // CmdStartStream
	Mode models.SamplingMode // CmdSwitchMode
}

var (
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrBadSide        = errors.New("protocol: invalid side")
	ErrBadRate        = errors.New("protocol: invalid rate code")
	ErrBadMode        = errors.New("protocol: invalid sampling mode")
)

// EncodeCommand builds the (id, payload) frame for one command.
//
// Rate codes are validated here defensively, but by contract the caller
// rejects unrecognized codes before encoding.
func EncodeCommand(cmd Command) (can.Frame, error) {
	switch cmd.Kind {
	case CmdStartStream:
		if !cmd.Side.Valid() {
			return can.Frame{}, ErrBadSide
		}
		if !cmd.Rate.Valid() {
			return can.Frame{}, ErrBadRate
		}
		id := IDStreamStartLeft
		if cmd.Side == models.Right {
			id = IDStreamStartRight
		}
		return newTX(id, []byte{byte(cmd.Rate)})
	case CmdStopAllStreams:
		return newTX(IDStreamStopAll, nil)
	case CmdSwitchMode:
		if !cmd.Mode.Valid() {
			return can.Frame{}, ErrBadMode
		}
		return newTX(IDModeSwitch, []byte{byte(cmd.Mode)})
	case CmdRequestStatus:
		return newTX(IDStatusRequest, nil)
	case CmdRequestVersion:
		return newTX(IDVersionRequest, nil)
	case CmdBootEnter:
		return newTX(IDBootCommand, []byte{bootSubEnter})
	case CmdBootQuery:
		return newTX(IDBootCommand, []byte{bootSubQuery})
	default:
		return can.Frame{}, ErrUnknownCommand
	}
}

// DecodeCommand is the inverse of EncodeCommand. It is used by round-trip
// tests and by the software simulator, which reacts to the same command set
// a real board would.
func DecodeCommand(f can.Frame) (Command, error) {
	p := f.Payload()
	switch f.ID {
	case IDStreamStartLeft, IDStreamStartRight:
		if len(p) != 1 {
			return Command{}, fmt.Errorf("protocol: stream-start wants 1 byte, got %d", len(p))
		}
		side := models.Left
		if f.ID == IDStreamStartRight {
			side = models.Right
		}
		rate := models.RateCode(p[0])
		if !rate.Valid() {
			return Command{}, ErrBadRate
		}
		return Command{Kind: CmdStartStream, Side: side, Rate: rate}, nil
	case IDStreamStopAll:
		if len(p) != 0 {
			return Command{}, fmt.Errorf("protocol: stream-stop wants 0 bytes, got %d", len(p))
		}
		return Command{Kind: CmdStopAllStreams}, nil
	case IDModeSwitch:
		if len(p) != 1 {
			return Command{}, fmt.Errorf("protocol: mode-switch wants 1 byte, got %d", len(p))
		}
		mode := models.SamplingMode(p[0])
		if !mode.Valid() {
			return Command{}, ErrBadMode
		}
		return Command{Kind: CmdSwitchMode, Mode: mode}, nil
	case IDStatusRequest:
		return Command{Kind: CmdRequestStatus}, nil
	case IDVersionRequest:
		return Command{Kind: CmdRequestVersion}, nil
	case IDBootCommand:
		if len(p) == 1 && p[0] == bootSubEnter {
			return Command{Kind: CmdBootEnter}, nil
		}
		if len(p) == 1 && p[0] == bootSubQuery {
			return Command{Kind: CmdBootQuery}, nil
		}
		return Command{}, ErrUnknownCommand
	default:
		return Command{}, ErrUnknownCommand
	}
}

func newTX(id uint16, payload []byte) (can.Frame, error) {
	f, err := can.New(id, payload)
	if err != nil {
		return can.Frame{}, err
	}
	f.Direction = can.Sent
	return f, nil
}
