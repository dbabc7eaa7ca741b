package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/audiolibrelab/routemix/internal/config"
	"github.com/audiolibrelab/routemix/internal/mixer"
	"github.com/audiolibrelab/routemix/internal/service"
)

func newTestServer(t *testing.T) (*Server, *service.RouteMixService) {
	t.Helper()
	cfg := config.Default()
	cfg.Meter.Seed = 11
	cfg.Meter.IntervalMs = 5
	cfg.Audio.SampleRate = 8000
	cfg.Presets.Directory = filepath.Join(t.TempDir(), "presets")

	svc, err := service.New(cfg)
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { svc.Stop() })
	return New(svc, "0"), svc
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", mixer.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", mixer.ErrInvalidValue), http.StatusBadRequest},
		{errors.Join(errors.New("x"), mixer.ErrNotFound), http.StatusNotFound},
		{mixer.ErrInitialization, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDevicesAndState(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var devices service.DeviceList
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("Failed to decode devices: %v", err)
	}
	if len(devices.Inputs) != 4 || devices.Outputs[0].ID != "speakers" {
		t.Errorf("Unexpected devices: %+v", devices)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	var state mixer.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if !state.Routing["microphone"]["speakers"] {
		t.Error("Expected microphone -> speakers routed")
	}
}

func TestToggleRoute(t *testing.T) {
	s, _ := newTestServer(t)
	form := url.Values{"input": {"microphone"}, "output": {"speakers"}}

	rec := postForm(t, s.Handler(), "/api/routing/toggle", form)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["enabled"] != false || body["success"] != true {
		t.Errorf("Expected enabled=false, got %v", body)
	}

	rec = postForm(t, s.Handler(), "/api/routing/toggle", form)
	if body := decodeBody(t, rec); body["enabled"] != true {
		t.Errorf("Expected enabled=true, got %v", body)
	}
}

func TestSetRoutingAndErrors(t *testing.T) {
	s, svc := newTestServer(t)

	rec := postForm(t, s.Handler(), "/api/routing", url.Values{
		"input": {"browser"}, "output": {"stream"}, "enabled": {"true"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !svc.State().Routing["browser"]["stream"] {
		t.Error("Expected browser -> stream routed")
	}

	tests := []struct {
		name string
		path string
		form url.Values
		want int
	}{
		{"unknown input", "/api/routing", url.Values{"input": {"guitar"}, "output": {"stream"}, "enabled": {"true"}}, http.StatusNotFound},
		{"bad enabled", "/api/routing", url.Values{"input": {"game"}, "output": {"stream"}, "enabled": {"maybe"}}, http.StatusBadRequest},
		{"unknown output toggle", "/api/routing/toggle", url.Values{"input": {"game"}, "output": {"nowhere"}}, http.StatusNotFound},
		{"bad volume", "/api/volume", url.Values{"channel": {"game"}, "volume": {"loud"}}, http.StatusBadRequest},
		{"unknown volume channel", "/api/volume", url.Values{"channel": {"kazoo"}, "volume": {"10"}}, http.StatusNotFound},
		{"bad mute", "/api/mute", url.Values{"channel": {"game"}, "muted": {"perhaps"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(t, s.Handler(), tt.path, tt.form)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["success"] != false || body["error"] == "" {
				t.Errorf("Expected error body, got %v", body)
			}
		})
	}
}

func TestSetVolumeClampsAndMute(t *testing.T) {
	s, svc := newTestServer(t)

	rec := postForm(t, s.Handler(), "/api/volume", url.Values{"channel": {"microphone"}, "volume": {"150"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["volume"] != float64(100) {
		t.Errorf("Expected stored volume 100, got %v", body["volume"])
	}

	rec = postForm(t, s.Handler(), "/api/mute", url.Values{"channel": {"microphone"}, "muted": {"true"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	mic := svc.State().Inputs[0]
	if !mic.Muted || mic.Effective != 0 || mic.Volume != 100 {
		t.Errorf("Unexpected microphone state: %+v", mic)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/volume", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestPresetEndpoints(t *testing.T) {
	s, svc := newTestServer(t)
	h := s.Handler()

	body := `{"name":"Stream Night","snapshot":{"volumes":{"music":10},"muted":{"chat":true}}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	list := decodeBody(t, rec)
	if list["total_count"] != float64(2) {
		t.Errorf("Expected Default and Stream Night, got %v", list)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/presets/load/stream-night", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Load: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	state := svc.State()
	if state.Inputs[2].Volume != 10 || !state.Outputs[3].Muted {
		t.Errorf("Preset not applied: music=%+v chat=%+v", state.Inputs[2], state.Outputs[3])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/presets/stream-night", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Delete: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/presets/load/stream-night", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}

	bad := `{"name":"Broken","snapshot":{"volumes":{"tuba":10}}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader(bad)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown channel, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview/speakers?duration=0.5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Expected audio/wav, got %q", ct)
	}

	d := wav.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	if !d.IsValidFile() {
		t.Fatal("Preview is not a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Failed to decode preview: %v", err)
	}
	if len(buf.Data) != 4000 {
		t.Errorf("Expected 4000 frames at 8 kHz, got %d", len(buf.Data))
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview/microphone", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an input, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview/speakers?duration=5m", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a long preview, got %d", rec.Code)
	}
}

func TestMeterStream(t *testing.T) {
	s, svc := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/meters", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var levels map[string]int
	for levels == nil {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Stream ended early: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			if err := json.Unmarshal([]byte(data), &levels); err != nil {
				t.Fatalf("Bad event payload %q: %v", data, err)
			}
		}
	}
	if len(levels) != 8 {
		t.Errorf("Expected 8 channel levels, got %v", levels)
	}

	// stopping the mixer closes the stream
	svc.Stop()
	if _, err := io.Copy(io.Discard, reader); err != nil && ctx.Err() != nil {
		t.Errorf("Stream did not end after Stop: %v", err)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Status != "running" || status.Inputs != 4 || status.MeterIntervalMs != 5 {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.Backend != "synthetic" {
		t.Errorf("Expected resolved backend synthetic, got %q", status.Backend)
	}
}
