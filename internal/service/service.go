package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/routemix/internal/audio"
	"github.com/audiolibrelab/routemix/internal/config"
	"github.com/audiolibrelab/routemix/internal/meter"
	"github.com/audiolibrelab/routemix/internal/mix"
	"github.com/audiolibrelab/routemix/internal/mixer"
	"github.com/audiolibrelab/routemix/internal/preset"
)

// DefaultPresetName is seeded from the initial state when the preset store is
// empty.
const DefaultPresetName = "Default"

// Service represents the core RouteMix service interface
type Service interface {
	// Lifecycle
	Start(ctx context.Context) error
	Stop() error

	// Device and state operations
	ListDevices() DeviceList
	State() mixer.State

	// Routing operations
	SetRouting(input, output string, enabled bool) error
	ToggleRoute(input, output string) (bool, error)

	// Channel operations
	SetVolume(id string, volume int) (int, error)
	SetMute(id string, muted bool) error

	// Preset operations
	SavePreset(name string, snap *mixer.Snapshot) (*preset.Preset, error)
	LoadPreset(name string) (*preset.Preset, error)
	ListPresets() ([]preset.Summary, error)
	DeletePreset(name string) error

	// Meter operations
	SubscribeMeters() *meter.Subscription
	UnsubscribeMeters(sub *meter.Subscription)

	// Preview rendering
	RenderPreview(w io.WriteSeeker, output string, d time.Duration) error

	// Configuration and information
	GetConfig() *config.Config
	GetBackendType() audio.BackendType
	GetLastError() string
}

// DeviceList is the catalog as returned by ListDevices
type DeviceList struct {
	Inputs  []mixer.Device `json:"inputs" yaml:"inputs"`
	Outputs []mixer.Device `json:"outputs" yaml:"outputs"`
}

// RouteMixService is the main service implementation
type RouteMixService struct {
	cfg     *config.Config
	engine  *mixer.Engine
	presets *preset.Store
	preview *mix.Mixer

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*RouteMixService)(nil)

// New creates a new RouteMix service instance. The audio backend is chosen
// here but only opened by Start.
func New(cfg *config.Config) (*RouteMixService, error) {
	backend, err := audio.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mixer.ErrInitialization, err)
	}

	engine, err := mixer.NewEngine(cfg, backend)
	if err != nil {
		return nil, err
	}

	s := &RouteMixService{
		cfg:     cfg,
		engine:  engine,
		presets: preset.NewStore(cfg.Presets.Directory),
		preview: mix.New(cfg),
	}

	engine.OnRouteChange(func(c mixer.RouteChange) {
		slog.Info("Route changed", "input", c.Input, "output", c.Output, "enabled", c.Enabled)
	})

	return s, nil
}

// Start opens the backend, starts metering, seeds the default preset on an
// empty store and recalls the configured startup preset.
func (s *RouteMixService) Start(ctx context.Context) error {
	slog.Debug("Service.Start called", "backend", s.cfg.Audio.Backend)
	if err := s.engine.Start(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start mixer: %v", err))
		return err
	}

	if err := s.seedDefaultPreset(); err != nil {
		// a read-only preset directory must not keep the mixer down
		slog.Warn("Could not seed default preset", "directory", s.presets.Dir(), "error", err)
	}

	if name := s.cfg.Presets.Startup; name != "" {
		if _, err := s.LoadPreset(name); err != nil {
			slog.Warn("Startup preset not applied", "preset", name, "error", err)
		} else {
			slog.Info("Startup preset applied", "preset", name)
		}
	}
	return nil
}

func (s *RouteMixService) seedDefaultPreset() error {
	empty, err := s.presets.Empty()
	if err != nil || !empty {
		return err
	}
	if _, err := s.presets.Save(DefaultPresetName, s.engine.Capture()); err != nil {
		return err
	}
	slog.Info("Seeded default preset", "directory", s.presets.Dir())
	return nil
}

// Stop stops metering and releases the audio backend
func (s *RouteMixService) Stop() error {
	return s.engine.Stop()
}

// ListDevices returns the fixed input and output catalog
func (s *RouteMixService) ListDevices() DeviceList {
	c := s.engine.Catalog()
	return DeviceList{Inputs: c.Inputs(), Outputs: c.Outputs()}
}

// State returns a consistent copy of channels and routing
func (s *RouteMixService) State() mixer.State {
	return s.engine.State()
}

// SetRouting forces a route on or off
func (s *RouteMixService) SetRouting(input, output string, enabled bool) error {
	_, err := s.engine.SetRoute(input, output, enabled)
	return s.track(err, "Failed to set route %s -> %s", input, output)
}

// ToggleRoute flips a route and returns its new state
func (s *RouteMixService) ToggleRoute(input, output string) (bool, error) {
	enabled, err := s.engine.ToggleRoute(input, output)
	return enabled, s.track(err, "Failed to toggle route %s -> %s", input, output)
}

// SetVolume stores a clamped volume and returns the stored value
func (s *RouteMixService) SetVolume(id string, volume int) (int, error) {
	stored, err := s.engine.SetVolume(id, volume)
	return stored, s.track(err, "Failed to set volume of %s", id)
}

// SetMute changes a channel's mute flag
func (s *RouteMixService) SetMute(id string, muted bool) error {
	err := s.engine.SetMute(id, muted)
	return s.track(err, "Failed to set mute of %s", id)
}

// SavePreset stores snap under name, or the current state when snap is nil
func (s *RouteMixService) SavePreset(name string, snap *mixer.Snapshot) (*preset.Preset, error) {
	var toSave mixer.Snapshot
	if snap == nil {
		toSave = s.engine.Capture()
	} else {
		if err := snap.Validate(s.engine.Catalog()); err != nil {
			return nil, s.track(err, "Preset %q rejected", name)
		}
		toSave = *snap
	}

	p, err := s.presets.Save(name, toSave)
	if err != nil {
		return nil, s.track(err, "Failed to save preset %q", name)
	}
	slog.Info("Preset saved", "name", p.Name, "id", p.ID)
	return p, nil
}

// LoadPreset reads a preset and recalls it into the mixer
func (s *RouteMixService) LoadPreset(name string) (*preset.Preset, error) {
	p, err := s.presets.Load(name)
	if err != nil {
		return nil, s.track(err, "Failed to load preset %q", name)
	}
	if err := s.engine.Recall(p.Snapshot); err != nil {
		return nil, s.track(err, "Failed to apply preset %q", name)
	}
	slog.Info("Preset loaded", "name", p.Name, "id", p.ID)
	return p, nil
}

// ListPresets returns stored presets ordered by name
func (s *RouteMixService) ListPresets() ([]preset.Summary, error) {
	list, err := s.presets.List()
	return list, s.track(err, "Failed to list presets")
}

// DeletePreset removes a stored preset
func (s *RouteMixService) DeletePreset(name string) error {
	err := s.presets.Delete(name)
	return s.track(err, "Failed to delete preset %q", name)
}

// SubscribeMeters registers a meter subscriber
func (s *RouteMixService) SubscribeMeters() *meter.Subscription {
	return s.engine.Subscribe()
}

// UnsubscribeMeters removes a meter subscriber
func (s *RouteMixService) UnsubscribeMeters(sub *meter.Subscription) {
	s.engine.Unsubscribe(sub)
}

// RenderPreview writes a WAV preview of one output bus
func (s *RouteMixService) RenderPreview(w io.WriteSeeker, output string, d time.Duration) error {
	err := s.preview.Render(w, s.engine.State(), output, d)
	return s.track(err, "Failed to render preview of %s", output)
}

// GetConfig returns the current configuration
func (s *RouteMixService) GetConfig() *config.Config {
	return s.cfg
}

// GetBackendType returns the backend in use, with "auto" already resolved
func (s *RouteMixService) GetBackendType() audio.BackendType {
	return s.engine.BackendType()
}

// track records err as the last error, or clears it on success. Lookups
// of unknown ids and rejected values are caller mistakes and are not
// recorded.
func (s *RouteMixService) track(err error, format string, args ...any) error {
	if err == nil {
		s.clearLastError()
		return nil
	}
	if errors.Is(err, mixer.ErrNotFound) || errors.Is(err, mixer.ErrInvalidValue) {
		slog.Debug("Request rejected", "error", err)
		return err
	}
	s.setLastError(fmt.Sprintf(format+": %v", append(args, err)...))
	return err
}

// GetLastError returns the last error message (thread-safe)
func (s *RouteMixService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *RouteMixService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *RouteMixService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
