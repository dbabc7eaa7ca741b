package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/audiolibrelab/routemix/internal/audio"
	"github.com/audiolibrelab/routemix/internal/config"
	"github.com/audiolibrelab/routemix/internal/meter"
)

// RouteChange is delivered to route observers after a successful change.
type RouteChange struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Enabled bool   `json:"enabled"`
}

// RouteObserver consumes routing changes.
type RouteObserver func(RouteChange)

// Channel is a read-only view of one channel's state.
type Channel struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      Kind    `json:"kind"`
	Volume    int     `json:"volume"`
	Muted     bool    `json:"muted"`
	Effective int     `json:"effective"`
	Frequency float64 `json:"frequency,omitempty"`
}

// State is a consistent copy of the whole mixer.
type State struct {
	Inputs  []Channel                  `json:"inputs"`
	Outputs []Channel                  `json:"outputs"`
	Routing map[string]map[string]bool `json:"routing"`
}

// Engine owns the catalog, routing table, channel store, audio backend and
// meter loop of one session. Mutations are serialised by a single writer
// lock; meter ticks read under the read lock so a channel's (volume, muted)
// pair is never torn.
type Engine struct {
	catalog *Catalog
	backend audio.Backend

	mu      sync.RWMutex
	routing *RoutingTable
	store   *ChannelStore
	started bool
	stopped bool

	obsMu     sync.RWMutex
	observers []RouteObserver

	broadcaster *meter.Broadcaster
	interval    time.Duration

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// NewEngine builds an engine from configuration. The backend is not touched
// until Start.
func NewEngine(cfg *config.Config, backend audio.Backend) (*Engine, error) {
	catalog, err := NewCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel catalog: %w", err)
	}

	e := &Engine{
		catalog:     catalog,
		backend:     backend,
		routing:     NewRoutingTable(catalog),
		store:       NewChannelStore(catalog, cfg.Audio.StrictVolume),
		broadcaster: meter.NewBroadcaster(cfg.Meter.Buffer),
		interval:    cfg.MeterInterval(),
	}

	for _, def := range append(append([]config.ChannelDefinition(nil), cfg.Inputs...), cfg.Outputs...) {
		st := e.store.states[def.ID]
		st.volume = Clamp(def.VolumeOf(), MinVolume, MaxVolume)
		st.muted = def.Muted
	}
	for in, outs := range cfg.Routing {
		for _, out := range outs {
			if _, err := e.routing.Set(in, out, true); err != nil {
				return nil, fmt.Errorf("invalid initial route %s -> %s: %w", in, out, err)
			}
		}
	}

	return e, nil
}

// Catalog returns the fixed channel catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// BackendType reports which audio backend the engine drives.
func (e *Engine) BackendType() audio.BackendType {
	return e.backend.GetType()
}

// Start opens the backend, pushes the current state into it and starts the
// meter loop. The loop stops when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}
	if e.stopped {
		return fmt.Errorf("engine cannot be restarted after Stop")
	}

	channels := make([]audio.ChannelInfo, 0, len(e.catalog.entries))
	for _, id := range e.catalog.IDs() {
		channels = append(channels, audio.ChannelInfo{
			ID:        id,
			Input:     e.catalog.IsInput(id),
			Frequency: e.catalog.Frequency(id),
		})
	}

	if err := e.backend.Open(channels); err != nil {
		return fmt.Errorf("%w: %s backend: %v", ErrInitialization, e.backend.GetType(), err)
	}

	for _, id := range e.catalog.IDs() {
		if err := e.backend.ApplyGain(id, gainOf(e.store.snapshot(id))); err != nil {
			e.backend.Close()
			return fmt.Errorf("%w: apply gain %s: %v", ErrInitialization, id, err)
		}
	}
	for _, r := range e.routing.Routes() {
		if err := e.backend.Connect(r.Input, r.Output); err != nil {
			e.backend.Close()
			return fmt.Errorf("%w: connect %s -> %s: %v", ErrInitialization, r.Input, r.Output, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	loop := meter.NewLoop(e, e.broadcaster, e.interval)
	e.wg.Go(func() {
		loop.Run(loopCtx)
	})

	slog.Info("Mixer engine started",
		"backend", e.backend.GetType(),
		"inputs", len(e.catalog.inputs),
		"outputs", len(e.catalog.outputs),
		"routes", len(e.routing.routes),
		"meter_interval", e.interval)
	return nil
}

// Stop cancels the meter loop, waits for it to exit, closes every meter
// subscription and releases the backend. It is safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.stopped = true
	e.cancel()
	e.cancel = nil
	e.mu.Unlock()

	e.wg.Wait()
	e.broadcaster.Close()

	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("failed to close audio backend: %w", err)
	}
	slog.Info("Mixer engine stopped")
	return nil
}

// OnRouteChange registers an observer for routing changes.
func (e *Engine) OnRouteChange(obs RouteObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, obs)
}

func (e *Engine) notify(changes []RouteChange) {
	if len(changes) == 0 {
		return
	}
	e.obsMu.RLock()
	observers := append([]RouteObserver(nil), e.observers...)
	e.obsMu.RUnlock()

	for _, c := range changes {
		for _, obs := range observers {
			obs(c)
		}
	}
}

// wire pushes a route change into the backend. Caller holds e.mu.
func (e *Engine) wire(input, output string, enabled bool) error {
	if !e.started {
		return nil
	}
	if enabled {
		return e.backend.Connect(input, output)
	}
	return e.backend.Disconnect(input, output)
}

// ToggleRoute flips input -> output and returns the new state. Unknown ids
// leave the table unchanged and return ErrNotFound.
func (e *Engine) ToggleRoute(input, output string) (bool, error) {
	e.mu.Lock()
	enabled, err := e.routing.Toggle(input, output)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	if err := e.wire(input, output, enabled); err != nil {
		e.routing.Toggle(input, output)
		e.mu.Unlock()
		return !enabled, fmt.Errorf("failed to rewire %s -> %s: %w", input, output, err)
	}
	e.mu.Unlock()

	e.notify([]RouteChange{{Input: input, Output: output, Enabled: enabled}})
	return enabled, nil
}

// SetRoute forces input -> output to enabled. It reports whether the table
// changed.
func (e *Engine) SetRoute(input, output string, enabled bool) (bool, error) {
	e.mu.Lock()
	changed, err := e.routing.Set(input, output, enabled)
	if err != nil || !changed {
		e.mu.Unlock()
		return false, err
	}
	if err := e.wire(input, output, enabled); err != nil {
		e.routing.Set(input, output, !enabled)
		e.mu.Unlock()
		return false, fmt.Errorf("failed to rewire %s -> %s: %w", input, output, err)
	}
	e.mu.Unlock()

	e.notify([]RouteChange{{Input: input, Output: output, Enabled: enabled}})
	return true, nil
}

func (e *Engine) IsRouted(input, output string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routing.IsRouted(input, output)
}

// Routes lists active routes in catalog order.
func (e *Engine) Routes() []Route {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routing.Routes()
}

func gainOf(st channelState) float64 {
	return float64(st.effective()) / float64(MaxVolume)
}

// applyGain pushes a channel's effective gain into the backend. Caller holds
// e.mu.
func (e *Engine) applyGain(id string) error {
	if !e.started {
		return nil
	}
	return e.backend.ApplyGain(id, gainOf(e.store.snapshot(id)))
}

// SetVolume stores clamp(volume, 0, 100) and applies it. The stored value is
// returned. A muted channel keeps an effective level of 0.
func (e *Engine) SetVolume(id string, volume int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, previous, err := e.store.SetVolume(id, volume)
	if err != nil {
		return 0, err
	}
	if err := e.applyGain(id); err != nil {
		e.store.SetVolume(id, previous)
		return previous, fmt.Errorf("failed to apply volume to %s: %w", id, err)
	}
	return stored, nil
}

// SetMute changes the mute flag without touching the stored volume.
func (e *Engine) SetMute(id string, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous, err := e.store.SetMute(id, muted)
	if err != nil {
		return err
	}
	if err := e.applyGain(id); err != nil {
		e.store.SetMute(id, previous)
		return fmt.Errorf("failed to apply mute to %s: %w", id, err)
	}
	return nil
}

// Channel returns one channel's state.
func (e *Engine) Channel(id string) (Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.catalog.Kind(id); !ok {
		return Channel{}, fmt.Errorf("%w: channel %q", ErrNotFound, id)
	}
	return e.channel(id), nil
}

func (e *Engine) channel(id string) Channel {
	st := e.store.snapshot(id)
	kind, _ := e.catalog.Kind(id)
	return Channel{
		ID:        id,
		Name:      e.catalog.name(id),
		Kind:      kind,
		Volume:    st.volume,
		Muted:     st.muted,
		Effective: st.effective(),
		Frequency: e.catalog.Frequency(id),
	}
}

// State returns a consistent copy of every channel and the routing matrix.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{Routing: e.routing.Matrix()}
	for _, d := range e.catalog.inputs {
		s.Inputs = append(s.Inputs, e.channel(d.ID))
	}
	for _, d := range e.catalog.outputs {
		s.Outputs = append(s.Outputs, e.channel(d.ID))
	}
	return s
}

// Subscribe registers a meter subscriber.
func (e *Engine) Subscribe() *meter.Subscription {
	return e.broadcaster.Subscribe()
}

// Unsubscribe removes a meter subscriber before the next tick.
func (e *Engine) Unsubscribe(sub *meter.Subscription) {
	e.broadcaster.Unsubscribe(sub)
}

// SubscriberCount returns the number of meter subscribers.
func (e *Engine) SubscriberCount() int {
	return e.broadcaster.SubscriberCount()
}

type reading struct {
	id        string
	effective int
}

// Sample produces one meter tick. A channel whose backend read fails or
// panics is left out of this tick only.
func (e *Engine) Sample() meter.Levels {
	e.mu.RLock()
	if !e.started {
		e.mu.RUnlock()
		return meter.Levels{}
	}
	readings := make([]reading, 0, len(e.catalog.entries))
	for _, id := range e.catalog.IDs() {
		readings = append(readings, reading{id: id, effective: e.store.snapshot(id).effective()})
	}
	e.mu.RUnlock()

	levels := make(meter.Levels, len(readings))
	for _, r := range readings {
		if level, ok := e.readLevel(r); ok {
			levels[r.id] = level
		}
	}
	return levels
}

func (e *Engine) readLevel(r reading) (int, bool) {
	var (
		level int
		err   error
		pc    panics.Catcher
	)
	pc.Try(func() {
		level, err = e.backend.ReadLevel(r.id, r.effective)
	})
	if rec := pc.Recovered(); rec != nil {
		slog.Warn("Meter sample panicked, skipping channel this tick", "channel", r.id, "panic", rec.Value)
		return 0, false
	}
	if err != nil {
		slog.Debug("Meter sample failed, skipping channel this tick", "channel", r.id, "error", err)
		return 0, false
	}
	return Clamp(level, 0, 100), true
}
