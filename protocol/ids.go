// Package protocol maps CAN identifiers to their semantic meaning for the
// sensor board family, decodes received payloads into typed events, and
// encodes typed commands into frames for transmission.
package protocol

// Semantic CAN-ID table. Values are pinned to the board's protocol version;
// the bootloader block lives in its own range so it can never collide with
// the measurement/control IDs.
const (
	IDRawSampleLeft  uint16 = 0x1A0
	IDRawSampleRight uint16 = 0x1A1

	IDStreamStartLeft  uint16 = 0x210 // 1 byte: rate code
	IDStreamStartRight uint16 = 0x211 // 1 byte: rate code
	IDStreamStopAll    uint16 = 0x212 // 0 bytes
	IDModeSwitch       uint16 = 0x213 // 1 byte: sampling mode

	IDStatusRequest  uint16 = 0x220 // 0 bytes
	IDStatusResponse uint16 = 0x221 // 3 bytes: system, errorFlags, samplingMode

	IDVersionRequest  uint16 = 0x222 // 0 bytes
	IDVersionResponse uint16 = 0x223 // 4 bytes: major, minor, patch, build

	// Bootloader block. The flashing sequence itself is out of scope here;
	// only enter/query commands and the status event are decoded so the
	// collaborator that owns flashing can reuse this dispatcher.
	IDBootCommand uint16 = 0x7B0
	IDBootData    uint16 = 0x7B1
	IDBootStatus  uint16 = 0x7B2
	IDBootInfo    uint16 = 0x7B3
)

// Bootloader subcommand bytes carried in IDBootCommand payloads.
const (
	bootSubEnter byte = 0x01
	bootSubQuery byte = 0x02
)
