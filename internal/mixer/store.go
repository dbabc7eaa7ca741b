package mixer

import "fmt"

const (
	MinVolume = 0
	MaxVolume = 100
)

type channelState struct {
	volume int
	muted  bool
}

// effective is the post-mute level: mute wins over volume.
func (s channelState) effective() int {
	if s.muted {
		return 0
	}
	return s.volume
}

// ChannelStore holds volume and mute per channel. Like RoutingTable it
// relies on the Engine for locking.
type ChannelStore struct {
	catalog *Catalog
	states  map[string]*channelState
	strict  bool
}

// NewChannelStore creates a store with every catalog channel at volume 0,
// unmuted. When strict is set out-of-range volumes are rejected with
// ErrInvalidValue instead of being clamped.
func NewChannelStore(catalog *Catalog, strict bool) *ChannelStore {
	s := &ChannelStore{
		catalog: catalog,
		states:  make(map[string]*channelState, len(catalog.entries)),
		strict:  strict,
	}
	for id := range catalog.entries {
		s.states[id] = &channelState{}
	}
	return s
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *ChannelStore) state(id string) (*channelState, error) {
	st, ok := s.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: channel %q", ErrNotFound, id)
	}
	return st, nil
}

// SetVolume stores the clamped volume and returns it along with the
// previous value.
func (s *ChannelStore) SetVolume(id string, volume int) (stored, previous int, err error) {
	st, err := s.state(id)
	if err != nil {
		return 0, 0, err
	}
	if s.strict && (volume < MinVolume || volume > MaxVolume) {
		return 0, 0, fmt.Errorf("%w: volume %d for channel %q outside [%d,%d]",
			ErrInvalidValue, volume, id, MinVolume, MaxVolume)
	}

	previous = st.volume
	st.volume = Clamp(volume, MinVolume, MaxVolume)
	return st.volume, previous, nil
}

// SetMute changes only the mute flag; the stored volume is kept.
func (s *ChannelStore) SetMute(id string, muted bool) (previous bool, err error) {
	st, err := s.state(id)
	if err != nil {
		return false, err
	}
	previous = st.muted
	st.muted = muted
	return previous, nil
}

func (s *ChannelStore) Volume(id string) (int, error) {
	st, err := s.state(id)
	if err != nil {
		return 0, err
	}
	return st.volume, nil
}

func (s *ChannelStore) Muted(id string) (bool, error) {
	st, err := s.state(id)
	if err != nil {
		return false, err
	}
	return st.muted, nil
}

// EffectiveLevel is muted ? 0 : volume.
func (s *ChannelStore) EffectiveLevel(id string) (int, error) {
	st, err := s.state(id)
	if err != nil {
		return 0, err
	}
	return st.effective(), nil
}

// snapshot copies the (volume, muted) pair of one channel.
func (s *ChannelStore) snapshot(id string) channelState {
	return *s.states[id]
}
