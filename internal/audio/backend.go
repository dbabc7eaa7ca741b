package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/audiolibrelab/routemix/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeSynthetic BackendType = "synthetic"
	BackendTypeAuto      BackendType = "auto"
)

// ErrUnsupportedBackend is returned for backend names nothing can serve.
var ErrUnsupportedBackend = errors.New("unsupported audio backend")

// ChannelInfo describes one channel handed to a backend when it opens.
type ChannelInfo struct {
	ID        string
	Input     bool
	Frequency float64 // oscillator pitch for synthetic inputs
}

// Backend is the capability boundary between the mixer core and whatever
// produces or measures sound: apply gain, wire routes, read levels.
type Backend interface {
	// Open prepares the channels. Failing here means the audio subsystem
	// is unavailable.
	Open(channels []ChannelInfo) error

	// ApplyGain sets the linear gain (0-1) of a channel.
	ApplyGain(id string, gain float64) error

	// Connect and Disconnect wire or unwire input into output.
	Connect(input, output string) error
	Disconnect(input, output string) error

	// ReadLevel returns the current meter level (0-100) of a channel whose
	// effective level is effective.
	ReadLevel(id string, effective int) (int, error)

	Close() error

	// Get the backend type
	GetType() BackendType
}

// NewBackend creates the backend selected by configuration
func NewBackend(cfg *config.Config) (Backend, error) {
	backendType, err := determineBackend(cfg)
	if err != nil {
		return nil, err
	}

	switch backendType {
	case BackendTypeSynthetic:
		return NewSyntheticBackend(cfg.Meter.Seed, cfg.Meter.Bias, cfg.Meter.Jitter), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backendType)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Audio.Backend)) {
	case "", string(BackendTypeAuto):
		return BackendTypeSynthetic, nil // Only the synthetic backend is available
	case string(BackendTypeSynthetic):
		return BackendTypeSynthetic, nil
	default:
		return "", fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedBackend, cfg.Audio.Backend, GetAvailableBackends())
	}
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeSynthetic}
}
