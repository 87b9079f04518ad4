// Package server exposes the bridge device over a local HTTP JSON API plus
// WebSocket streams, for the UI collaborator that owns windows and dialogs.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/device"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/transport"
)

// liveInterval is the /ws/live broadcast cadence. Readers poll the latest
// snapshot at a fixed wall-clock rate independent of sample arrival.
const liveInterval = 50 * time.Millisecond

// Server is the HTTP/WebSocket front for one device service.
type Server struct {
	mux *http.ServeMux
	dev *device.Device

	wsLive   *WSHub
	wsFrames *WSHub

	upgrader websocket.Upgrader
}

// New wires a server around an injected device service and starts the
// broadcast pumps.
func New(dev *device.Device) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		dev:      dev,
		wsLive:   NewWSHub(),
		wsFrames: NewWSHub(),
		upgrader: websocket.Upgrader{
			// Local single-user tool; the UI is served from the same host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/ports", s.handlePorts)
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)

	s.mux.HandleFunc("/api/stream/start", s.handleStreamStart)
	s.mux.HandleFunc("/api/stream/stop", s.handleStreamStop)
	s.mux.HandleFunc("/api/mode", s.handleMode)
	s.mux.HandleFunc("/api/status", s.handleRequestStatus)
	s.mux.HandleFunc("/api/version", s.handleRequestVersion)

	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("/api/tare", s.handleTare)
	s.mux.HandleFunc("/api/tare/reset", s.handleTareReset)

	s.mux.HandleFunc("/api/calibration/capture", s.handleCapture)
	s.mux.HandleFunc("/api/calibration", s.handleCalibration)
	s.mux.HandleFunc("/api/calibration/removePoint", s.handleRemovePoint)

	s.mux.HandleFunc("/ws/live", s.handleWSLive)
	s.mux.HandleFunc("/ws/frames", s.handleWSFrames)

	go s.pumpFrames()
	go s.pumpLive()
	go s.pumpEvents()

	return s
}

// Handler returns the root handler for http.Serve.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, HealthResponse{OK: true, Timestamp: time.Now()})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, PortsResponse{Ports: transport.ListPorts()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ConnectRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	cfg, port, err := buildConfig(req)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := s.dev.Connect(cfg); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, ConnectResponse{Connected: true, Kind: req.Kind, Port: port})
}

func buildConfig(req ConnectRequest) (transport.Config, string, error) {
	silence := time.Duration(req.SilenceTimeoutMS) * time.Millisecond
	switch strings.ToLower(req.Kind) {
	case "serial":
		port := strings.TrimSpace(req.Port)
		if port == "" {
			ports := transport.ListPorts()
			if len(ports) == 0 {
				return transport.Config{}, "", fmt.Errorf("no serial ports found")
			}
			port = ports[0]
		}
		return transport.Config{
			Kind:           transport.KindSerial,
			Serial:         &transport.SerialConfig{Port: port, Baud: req.Baud},
			SilenceTimeout: silence,
		}, port, nil
	case "simulator":
		return transport.Config{
			Kind:           transport.KindSimulator,
			Simulator:      &transport.SimulatorConfig{},
			SilenceTimeout: silence,
		}, "", nil
	default:
		return transport.Config{}, "", fmt.Errorf("unknown transport kind %q", req.Kind)
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.dev.Disconnect(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, ConnectResponse{Connected: false})
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req StreamStartRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	rate, err := rateFromHz(req.RateHz)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := s.dev.StartStream(side, rate); err != nil {
		s.writeJSON(w, 409, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.dev.StopAllStreams(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ModeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := s.dev.SwitchMode(mode); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.dev.RequestStatus(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	// Response arrives asynchronously on /ws/live as a "status" event.
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleRequestVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.dev.RequestVersion(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, s.snapshot())
}

func (s *Server) snapshot() SnapshotResponse {
	return SnapshotResponse{
		Left:      sideSnapshot(s.dev.Snapshot(models.Left)),
		Right:     sideSnapshot(s.dev.Snapshot(models.Right)),
		Mode:      strings.ToLower(s.dev.Mode().String()),
		Processed: s.dev.Processed(),
		Dropped:   s.dev.Dropped(),
	}
}

func sideSnapshot(p *models.ProcessedSample) SideSnapshot {
	if p == nil {
		return SideSnapshot{}
	}
	return SideSnapshot{
		Raw:          p.Raw,
		CalibratedKg: p.CalibratedKg,
		TaredKg:      p.TaredKg,
		At:           p.At,
		HasSample:    true,
	}
}

func (s *Server) handleTare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req TareRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := s.dev.Tare(side); err != nil {
		s.writeJSON(w, 409, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleTareReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req TareResetRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if req.All {
		s.dev.ResetAllTares()
		s.writeJSON(w, 200, map[string]bool{"ok": true})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.dev.ResetTare(side, mode)
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CaptureRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	cfg := calibration.CaptureConfig{
		TargetSamples: req.TargetSamples,
		Window:        time.Duration(req.WindowMS) * time.Millisecond,
		OutlierSigma:  req.OutlierSigma,
		UseMean:       req.UseMean,
	}
	fit, err := s.dev.CapturePoint(r.Context(), side, req.KnownKg, cfg)
	if err != nil {
		s.writeJSON(w, 409, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, fit)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	cal := s.dev.Calibration(side)
	resp := CalibrationResponse{Side: strings.ToLower(side.String())}
	if cal != nil {
		resp.Points = cal.Points()
		resp.Fit = cal.Fit()
		resp.Quality = resp.Fit.Quality().String()
	}
	s.writeJSON(w, 200, resp)
}

func (s *Server) handleRemovePoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req RemovePointRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	cal := s.dev.Calibration(side)
	if cal == nil {
		s.writeJSON(w, 404, APIError{Error: "no calibration for side"})
		return
	}
	if err := cal.RemovePoint(req.Index); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleWSLive(w http.ResponseWriter, r *http.Request)   { s.handleWS(w, r, s.wsLive) }
func (s *Server) handleWSFrames(w http.ResponseWriter, r *http.Request) { s.handleWS(w, r, s.wsFrames) }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, hub *WSHub) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] ws upgrade: %v", err)
		return
	}
	c := hub.Add(conn)
	// Read loop exists only to notice disconnects.
	go func() {
		defer hub.Remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// pumpLive broadcasts the latest snapshot at a fixed cadence, independent
// of sample arrival rate.
func (s *Server) pumpLive() {
	tick := time.NewTicker(liveInterval)
	defer tick.Stop()
	for range tick.C {
		if s.wsLive.Count() == 0 {
			continue
		}
		s.wsLive.Broadcast(WSMessage{Type: "snapshot", Data: s.snapshot()})
	}
}

// pumpFrames forwards the observed-frame stream to /ws/frames clients.
func (s *Server) pumpFrames() {
	sub := s.dev.Hub().Frames.Subscribe(256)
	for f := range sub {
		if s.wsFrames.Count() == 0 {
			continue
		}
		s.wsFrames.Broadcast(WSMessage{Type: "frame", Data: FrameDTO{
			Direction: f.Direction.String(),
			ID:        f.ID,
			Data:      append([]byte(nil), f.Payload()...),
			At:        f.At,
		}})
	}
}

// pumpEvents forwards control-plane events (status, version, bootloader,
// connection lost) to /ws/live clients.
func (s *Server) pumpEvents() {
	hub := s.dev.Hub()
	status := hub.Status.Subscribe(16)
	version := hub.Version.Subscribe(16)
	boot := hub.Boot.Subscribe(16)
	lost := hub.Lost.Subscribe(4)
	for {
		select {
		case st := <-status:
			s.wsLive.Broadcast(WSMessage{Type: "status", Data: map[string]interface{}{
				"system":     st.System,
				"errorFlags": st.ErrorFlags,
				"mode":       strings.ToLower(st.Mode.String()),
			}})
		case v := <-version:
			s.wsLive.Broadcast(WSMessage{Type: "version", Data: v.String()})
		case b := <-boot:
			s.wsLive.Broadcast(WSMessage{Type: "bootStatus", Data: b})
		case t := <-lost:
			s.wsLive.Broadcast(WSMessage{Type: "connectionLost", Data: t})
		}
	}
}

func parseSide(s string) (models.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return models.Left, nil
	case "right":
		return models.Right, nil
	default:
		return 0, fmt.Errorf("unknown side %q (want left/right)", s)
	}
}

func parseMode(s string) (models.SamplingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal":
		return models.ModeInternal, nil
	case "external":
		return models.ModeExternal, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want internal/external)", s)
	}
}

func rateFromHz(hz int) (models.RateCode, error) {
	switch hz {
	case 1:
		return models.Rate1Hz, nil
	case 100:
		return models.Rate100Hz, nil
	case 500:
		return models.Rate500Hz, nil
	case 1000:
		return models.Rate1kHz, nil
	default:
		return 0, fmt.Errorf("unsupported rate %d Hz (want 1/100/500/1000)", hz)
	}
}
