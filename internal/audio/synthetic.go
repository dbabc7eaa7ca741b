package audio

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/audiolibrelab/routemix/internal/meter"
)

// Oscillator is the mock source behind a synthetic input.
type Oscillator struct {
	Frequency float64
}

type connection struct {
	input, output string
}

// SyntheticBackend stands in for audio hardware: inputs are sine
// oscillators, every channel has a gain stage, routes are a connection set,
// and levels come from meter.SyntheticLevel.
type SyntheticBackend struct {
	mu sync.Mutex

	rng    *rand.Rand
	bias   float64
	jitter float64

	open        bool
	oscillators map[string]Oscillator
	gains       map[string]float64
	connections map[connection]struct{}
}

// NewSyntheticBackend creates a synthetic backend. A zero seed picks a
// random one.
func NewSyntheticBackend(seed uint64, bias, jitter float64) *SyntheticBackend {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &SyntheticBackend{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		bias:   bias,
		jitter: jitter,
	}
}

func (s *SyntheticBackend) Open(channels []ChannelInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return fmt.Errorf("synthetic backend already open")
	}

	s.oscillators = make(map[string]Oscillator)
	s.gains = make(map[string]float64, len(channels))
	s.connections = make(map[connection]struct{})

	for _, ch := range channels {
		if ch.Input {
			s.oscillators[ch.ID] = Oscillator{Frequency: ch.Frequency}
		}
		s.gains[ch.ID] = 0
	}
	s.open = true

	slog.Debug("Synthetic backend opened", "channels", len(channels), "oscillators", len(s.oscillators))
	return nil
}

func (s *SyntheticBackend) checkChannel(id string) error {
	if !s.open {
		return fmt.Errorf("synthetic backend not open")
	}
	if _, ok := s.gains[id]; !ok {
		return fmt.Errorf("synthetic backend: unknown channel %q", id)
	}
	return nil
}

func (s *SyntheticBackend) ApplyGain(id string, gain float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkChannel(id); err != nil {
		return err
	}
	s.gains[id] = gain
	return nil
}

func (s *SyntheticBackend) Connect(input, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkChannel(input); err != nil {
		return err
	}
	if err := s.checkChannel(output); err != nil {
		return err
	}
	s.connections[connection{input, output}] = struct{}{}
	return nil
}

func (s *SyntheticBackend) Disconnect(input, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkChannel(input); err != nil {
		return err
	}
	if err := s.checkChannel(output); err != nil {
		return err
	}
	delete(s.connections, connection{input, output})
	return nil
}

func (s *SyntheticBackend) ReadLevel(id string, effective int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkChannel(id); err != nil {
		return 0, err
	}
	return meter.SyntheticLevel(effective, s.bias, s.jitter, s.rng.Float64()), nil
}

func (s *SyntheticBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	s.oscillators = nil
	s.gains = nil
	s.connections = nil
	return nil
}

func (s *SyntheticBackend) GetType() BackendType {
	return BackendTypeSynthetic
}

// Gain returns the gain last applied to id.
func (s *SyntheticBackend) Gain(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gains[id]
	return g, ok
}

// Connected reports whether input is wired into output.
func (s *SyntheticBackend) Connected(input, output string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.connections[connection{input, output}]
	return ok
}

// Oscillator returns the oscillator of a synthetic input.
func (s *SyntheticBackend) Oscillator(id string) (Oscillator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.oscillators[id]
	return o, ok
}
