package server

import (
	"time"

	"github.com/CK6170/canbridge-go/calibration"
)

// APIError is the canonical error envelope returned by JSON endpoints.
type APIError struct {
	Error string `json:"error"`
}

// HealthResponse is returned by /api/health.
type HealthResponse struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectRequest selects and parameterizes the transport adapter.
//
// Kind is "serial" or "simulator". An empty serial port triggers
// auto-detection across enumerated ports.
type ConnectRequest struct {
	Kind             string `json:"kind"`
	Port             string `json:"port,omitempty"`
	Baud             int    `json:"baud,omitempty"`
	SilenceTimeoutMS int    `json:"silenceTimeoutMs,omitempty"`
}

// ConnectResponse is returned by /api/connect.
type ConnectResponse struct {
	Connected bool   `json:"connected"`
	Kind      string `json:"kind"`
	Port      string `json:"port,omitempty"`
}

// PortsResponse lists serial ports visible to the host.
type PortsResponse struct {
	Ports []string `json:"ports"`
}

// StreamStartRequest starts raw-sample streaming for one side.
type StreamStartRequest struct {
	Side   string `json:"side"`
	RateHz int    `json:"rateHz"`
}

// ModeRequest switches the sampling mode ("internal" or "external").
type ModeRequest struct {
	Mode string `json:"mode"`
}

// TareRequest records the current calibrated weight as the zero baseline.
type TareRequest struct {
	Side string `json:"side"`
}

// TareResetRequest clears baselines. With All set the side/mode fields are
// ignored and all four baselines are cleared.
type TareResetRequest struct {
	Side string `json:"side,omitempty"`
	Mode string `json:"mode,omitempty"`
	All  bool   `json:"all,omitempty"`
}

// CaptureRequest collects one denoised calibration point.
type CaptureRequest struct {
	Side          string  `json:"side"`
	KnownKg       float64 `json:"knownKg"`
	TargetSamples int     `json:"targetSamples,omitempty"`
	WindowMS      int     `json:"windowMs,omitempty"`
	OutlierSigma  float64 `json:"outlierSigma,omitempty"`
	UseMean       bool    `json:"useMean,omitempty"`
}

// RemovePointRequest deletes one calibration point by index.
type RemovePointRequest struct {
	Side  string `json:"side"`
	Index int    `json:"index"`
}

// SideSnapshot is the per-side slice of the live snapshot.
type SideSnapshot struct {
	Raw          int32     `json:"raw"`
	CalibratedKg float64   `json:"calibratedKg"`
	TaredKg      float64   `json:"taredKg"`
	At           time.Time `json:"at"`
	HasSample    bool      `json:"hasSample"`
}

// SnapshotResponse is returned by /api/snapshot and broadcast on /ws/live.
type SnapshotResponse struct {
	Left      SideSnapshot `json:"left"`
	Right     SideSnapshot `json:"right"`
	Mode      string       `json:"mode"`
	Processed uint64       `json:"processed"`
	Dropped   uint64       `json:"dropped"`
}

// CalibrationResponse reports a side's point set and derived fit.
type CalibrationResponse struct {
	Side    string              `json:"side"`
	Points  []calibration.Point `json:"points"`
	Fit     calibration.Result  `json:"fit"`
	Quality string              `json:"quality"`
}

// FrameDTO is the observed-frame view broadcast on /ws/frames.
type FrameDTO struct {
	Direction string    `json:"direction"`
	ID        uint16    `json:"id"`
	Data      []byte    `json:"data"`
	At        time.Time `json:"at"`
}
