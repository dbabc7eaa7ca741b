package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/routemix/internal/mixer"
	"github.com/audiolibrelab/routemix/internal/service"
)

const (
	defaultPreviewDuration = 2 * time.Second
	shutdownTimeout        = 5 * time.Second
)

// Server exposes the RouteMix service over HTTP
type Server struct {
	service service.Service
	port    string
	mux     *http.ServeMux
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status          string `json:"status"`
	Backend         string `json:"backend"`
	MeterIntervalMs int    `json:"meter_interval_ms"`
	Inputs          int    `json:"inputs"`
	Outputs         int    `json:"outputs"`
	LastError       string `json:"last_error,omitempty"`
}

// PresetSaveRequest is the body of POST /api/presets. Without a snapshot the
// current mixer state is saved.
type PresetSaveRequest struct {
	Name     string          `json:"name"`
	Snapshot *mixer.Snapshot `json:"snapshot,omitempty"`
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	s := &Server{
		service: svc,
		port:    port,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /status", s.handleStatus)

	s.mux.HandleFunc("GET /api/devices", s.handleDevices)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/routing", s.handleSetRouting)
	s.mux.HandleFunc("POST /api/routing/toggle", s.handleToggleRoute)
	s.mux.HandleFunc("POST /api/volume", s.handleSetVolume)
	s.mux.HandleFunc("POST /api/mute", s.handleSetMute)

	// Presets
	s.mux.HandleFunc("GET /api/presets", s.handleListPresets)
	s.mux.HandleFunc("POST /api/presets", s.handleSavePreset)
	s.mux.HandleFunc("POST /api/presets/load/{name}", s.handleLoadPreset)
	s.mux.HandleFunc("DELETE /api/presets/{name}", s.handleDeletePreset)

	// Streams
	s.mux.HandleFunc("GET /api/meters", s.handleMeters)
	s.mux.HandleFunc("GET /api/preview/{output}", s.handlePreview)
}

// Handler returns the HTTP handler with every route registered
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.mux,
		// long-lived meter streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Graceful shutdown failed, closing connections", "error", err)
			srv.Close()
		}
	}()

	localIP := getLocalIP()
	slog.Info("Starting RouteMix Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	slog.Info("Web server stopped")
	return nil
}

// handleIndex serves a minimal landing page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>RouteMix</title>
</head>
<body>
    <h1>RouteMix</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>GET /api/devices - List inputs and outputs</li>
        <li>GET /api/state - Volumes, mute flags and routing</li>
        <li>POST /api/routing - Set a route (input, output, enabled)</li>
        <li>POST /api/routing/toggle - Toggle a route (input, output)</li>
        <li>POST /api/volume - Set a volume (channel, volume)</li>
        <li>POST /api/mute - Set mute (channel, muted)</li>
        <li>GET /api/presets - List presets</li>
        <li>GET /api/meters - Meter levels (server-sent events)</li>
        <li>GET /api/preview/{output} - WAV preview of an output</li>
    </ul>
</body>
</html>`

// handleStatus reports service health and the last recorded error
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.service.GetConfig()
	devices := s.service.ListDevices()

	sendJSON(w, http.StatusOK, StatusResponse{
		Status:          "running",
		Backend:         string(s.service.GetBackendType()),
		MeterIntervalMs: cfg.Meter.IntervalMs,
		Inputs:          len(devices.Inputs),
		Outputs:         len(devices.Outputs),
		LastError:       s.service.GetLastError(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.service.ListDevices())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.service.State())
}

// handleSetRouting forces a route on or off
func (s *Server) handleSetRouting(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "set_routing")
		return
	}

	input, output := r.FormValue("input"), r.FormValue("output")
	enabled, err := strconv.ParseBool(r.FormValue("enabled"))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "enabled must be true or false",
			"operation", "set_routing", "value", r.FormValue("enabled"))
		return
	}

	if err := s.service.SetRouting(input, output, enabled); err != nil {
		s.sendServiceError(w, err, "operation", "set_routing", "input", input, "output", output)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Route updated",
		"input":   input,
		"output":  output,
		"enabled": enabled,
	})
}

// handleToggleRoute flips a route and returns its new state
func (s *Server) handleToggleRoute(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "toggle_route")
		return
	}

	input, output := r.FormValue("input"), r.FormValue("output")
	enabled, err := s.service.ToggleRoute(input, output)
	if err != nil {
		s.sendServiceError(w, err, "operation", "toggle_route", "input", input, "output", output)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Route toggled",
		"input":   input,
		"output":  output,
		"enabled": enabled,
	})
}

// handleSetVolume stores a volume and returns the clamped value
func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "set_volume")
		return
	}

	channel := r.FormValue("channel")
	volume, err := strconv.Atoi(strings.TrimSpace(r.FormValue("volume")))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "volume must be an integer",
			"operation", "set_volume", "value", r.FormValue("volume"))
		return
	}

	stored, err := s.service.SetVolume(channel, volume)
	if err != nil {
		s.sendServiceError(w, err, "operation", "set_volume", "channel", channel)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Volume updated",
		"channel": channel,
		"volume":  stored,
	})
}

func (s *Server) handleSetMute(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "set_mute")
		return
	}

	channel := r.FormValue("channel")
	muted, err := strconv.ParseBool(r.FormValue("muted"))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "muted must be true or false",
			"operation", "set_mute", "value", r.FormValue("muted"))
		return
	}

	if err := s.service.SetMute(channel, muted); err != nil {
		s.sendServiceError(w, err, "operation", "set_mute", "channel", channel)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Mute updated",
		"channel": channel,
		"muted":   muted,
	})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets()
	if err != nil {
		s.sendServiceError(w, err, "operation", "list_presets")
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"presets":     presets,
		"total_count": len(presets),
	})
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var req PresetSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "save_preset", "error", err)
		return
	}

	p, err := s.service.SavePreset(req.Name, req.Snapshot)
	if err != nil {
		s.sendServiceError(w, err, "operation", "save_preset", "name", req.Name)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Preset '%s' saved", p.Name),
		"preset":  p,
	})
}

func (s *Server) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, err := s.service.LoadPreset(name)
	if err != nil {
		s.sendServiceError(w, err, "operation", "load_preset", "name", name)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Preset '%s' loaded", p.Name),
		"preset":  p,
	})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.service.DeletePreset(name); err != nil {
		s.sendServiceError(w, err, "operation", "delete_preset", "name", name)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Preset '%s' deleted", name),
	})
}

// handleMeters streams one server-sent event per meter tick until the client
// goes away or the mixer stops.
func (s *Server) handleMeters(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.service.SubscribeMeters()
	defer s.service.UnsubscribeMeters(sub)

	slog.Debug("Meter stream connected", "subscriber", sub.ID, "remote", r.RemoteAddr)
	defer slog.Debug("Meter stream disconnected", "subscriber", sub.ID)

	for {
		select {
		case <-r.Context().Done():
			return
		case levels, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(levels)
			if err != nil {
				slog.Warn("Failed to encode meter levels", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: levels\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handlePreview renders a WAV preview of one output. The optional duration
// query parameter accepts Go durations ("1500ms") or seconds ("2").
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	output := r.PathValue("output")

	d := defaultPreviewDuration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		parsed, err := parseDuration(raw)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid duration: %s", raw),
				"operation", "preview", "output", output)
			return
		}
		d = parsed
	}

	tmp, err := os.CreateTemp("", "routemix-preview-*.wav")
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to create preview file",
			"operation", "preview", "error", err)
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := s.service.RenderPreview(tmp, output, d); err != nil {
		s.sendServiceError(w, err, "operation", "preview", "output", output)
		return
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to read preview",
			"operation", "preview", "error", err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.wav"`, output))
	http.ServeContent(w, r, output+".wav", time.Now(), tmp)
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, mixer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrInvalidValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendServiceError(w http.ResponseWriter, err error, logContext ...interface{}) {
	s.sendErrorResponse(w, statusFor(err), err.Error(), logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Debug("Sending error response to client", logFields...)
	}

	sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write JSON response", "error", err)
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
