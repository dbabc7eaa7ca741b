package mixer

import (
	"errors"
	"fmt"
	"log/slog"
)

// Snapshot is the recallable part of the mixer: routing, volumes and mute
// flags. A snapshot may be partial; missing entries are left as they are on
// recall.
type Snapshot struct {
	Routing map[string]map[string]bool `json:"routing" yaml:"routing"`
	Volumes map[string]int             `json:"volumes" yaml:"volumes"`
	Muted   map[string]bool            `json:"muted" yaml:"muted"`
}

// Capture returns a complete snapshot of the current state.
func (e *Engine) Capture() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Routing: e.routing.Matrix(),
		Volumes: make(map[string]int, len(e.catalog.entries)),
		Muted:   make(map[string]bool, len(e.catalog.entries)),
	}
	for _, id := range e.catalog.IDs() {
		st := e.store.snapshot(id)
		snap.Volumes[id] = st.volume
		snap.Muted[id] = st.muted
	}
	return snap
}

// Validate checks every id and volume in the snapshot against the catalog.
func (s Snapshot) Validate(catalog *Catalog) error {
	var errs []error

	for in, row := range s.Routing {
		if !catalog.IsInput(in) {
			errs = append(errs, fmt.Errorf("%w: routing input %q", ErrNotFound, in))
			continue
		}
		for out := range row {
			if !catalog.IsOutput(out) {
				errs = append(errs, fmt.Errorf("%w: routing output %q", ErrNotFound, out))
			}
		}
	}
	for id, v := range s.Volumes {
		if _, ok := catalog.Kind(id); !ok {
			errs = append(errs, fmt.Errorf("%w: volume channel %q", ErrNotFound, id))
			continue
		}
		if v < MinVolume || v > MaxVolume {
			errs = append(errs, fmt.Errorf("%w: volume %d for channel %q outside [%d,%d]",
				ErrInvalidValue, v, id, MinVolume, MaxVolume))
		}
	}
	for id := range s.Muted {
		if _, ok := catalog.Kind(id); !ok {
			errs = append(errs, fmt.Errorf("%w: mute channel %q", ErrNotFound, id))
		}
	}

	return errors.Join(errs...)
}

// Recall applies a snapshot. Everything is validated before anything is
// changed, so an invalid snapshot leaves the engine untouched. If the backend
// rejects part of it, the routes and channels applied so far are restored.
func (e *Engine) Recall(snap Snapshot) error {
	if err := snap.Validate(e.catalog); err != nil {
		return err
	}

	e.mu.Lock()

	var (
		changes []RouteChange
		applied []channelUndo
	)

	fail := func(err error) error {
		e.rollback(changes, applied)
		e.mu.Unlock()
		return fmt.Errorf("failed to recall snapshot: %w", err)
	}

	// Walk the catalog rather than the maps so recall order is stable.
	for _, in := range e.catalog.inputs {
		row, ok := snap.Routing[in.ID]
		if !ok {
			continue
		}
		for _, out := range e.catalog.outputs {
			enabled, ok := row[out.ID]
			if !ok {
				continue
			}
			changed, _ := e.routing.Set(in.ID, out.ID, enabled)
			if !changed {
				continue
			}
			if err := e.wire(in.ID, out.ID, enabled); err != nil {
				e.routing.Set(in.ID, out.ID, !enabled)
				return fail(fmt.Errorf("rewire %s -> %s: %w", in.ID, out.ID, err))
			}
			changes = append(changes, RouteChange{Input: in.ID, Output: out.ID, Enabled: enabled})
		}
	}

	for _, id := range e.catalog.IDs() {
		v, hasVolume := snap.Volumes[id]
		m, hasMute := snap.Muted[id]
		if !hasVolume && !hasMute {
			continue
		}
		st := e.store.states[id]
		previous := *st
		if hasVolume {
			st.volume = v
		}
		if hasMute {
			st.muted = m
		}
		if err := e.applyGain(id); err != nil {
			*st = previous
			return fail(fmt.Errorf("apply gain %s: %w", id, err))
		}
		applied = append(applied, channelUndo{id: id, previous: previous})
	}

	e.mu.Unlock()

	e.notify(changes)
	return nil
}

type channelUndo struct {
	id       string
	previous channelState
}

// rollback reverts applied routes and channels in reverse order. Caller holds
// e.mu.
func (e *Engine) rollback(changes []RouteChange, applied []channelUndo) {
	for i := len(applied) - 1; i >= 0; i-- {
		u := applied[i]
		*e.store.states[u.id] = u.previous
		if err := e.applyGain(u.id); err != nil {
			slog.Warn("Failed to restore gain after recall error", "channel", u.id, "error", err)
		}
	}
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		e.routing.Set(c.Input, c.Output, !c.Enabled)
		if err := e.wire(c.Input, c.Output, !c.Enabled); err != nil {
			slog.Warn("Failed to restore route after recall error",
				"input", c.Input, "output", c.Output, "error", err)
		}
	}
}
