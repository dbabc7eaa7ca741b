package mix

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/routemix/internal/config"
	"github.com/audiolibrelab/routemix/internal/mixer"
)

const (
	// MaxPreviewDuration bounds a single render.
	MaxPreviewDuration = 30 * time.Second

	bitDepth    = 16
	numChans    = 1
	pcmFormat   = 1
	headroom    = 0.8
	chunkFrames = 4096
)

// Mixer renders WAV previews of an output bus from the synthetic oscillators.
type Mixer struct {
	sampleRate int
}

func New(cfg *config.Config) *Mixer {
	sr := cfg.Audio.SampleRate
	if sr <= 0 {
		sr = 48000
	}
	return &Mixer{sampleRate: sr}
}

func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

type voice struct {
	id        string
	frequency float64
	gain      float64
}

// voicesFor returns the routed, audible inputs of output along with the
// output's own gain.
func voicesFor(state mixer.State, output string) ([]voice, float64, error) {
	outGain := -1.0
	for _, ch := range state.Outputs {
		if ch.ID == output {
			outGain = float64(ch.Effective) / mixer.MaxVolume
			break
		}
	}
	if outGain < 0 {
		return nil, 0, fmt.Errorf("%w: output %q", mixer.ErrNotFound, output)
	}

	var voices []voice
	for _, in := range state.Inputs {
		if !state.Routing[in.ID][output] || in.Effective == 0 || in.Frequency <= 0 {
			continue
		}
		voices = append(voices, voice{
			id:        in.ID,
			frequency: in.Frequency,
			gain:      float64(in.Effective) / mixer.MaxVolume,
		})
	}
	return voices, outGain, nil
}

// Render writes a 16-bit mono WAV of output to w. Each contributing input is
// a sine at its oscillator frequency scaled by its effective gain; the sum is
// averaged over the contributors and scaled by the output gain.
func (m *Mixer) Render(w io.WriteSeeker, state mixer.State, output string, d time.Duration) error {
	if d <= 0 || d > MaxPreviewDuration {
		return fmt.Errorf("%w: preview duration %s outside (0, %s]", mixer.ErrInvalidValue, d, MaxPreviewDuration)
	}

	voices, outGain, err := voicesFor(state, output)
	if err != nil {
		return err
	}

	frames := int(math.Round(d.Seconds() * float64(m.sampleRate)))
	amplitude := headroom * math.MaxInt16 * outGain
	if len(voices) > 0 {
		amplitude /= float64(len(voices))
	}

	slog.Debug("Rendering preview",
		"output", output,
		"voices", len(voices),
		"output_gain", outGain,
		"frames", frames,
		"sample_rate", m.sampleRate)

	enc := wav.NewEncoder(w, m.sampleRate, bitDepth, numChans, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: m.sampleRate},
		SourceBitDepth: bitDepth,
	}

	sr := float64(m.sampleRate)
	for start := 0; start < frames; start += chunkFrames {
		n := min(chunkFrames, frames-start)
		data := make([]int, n)
		for i := range data {
			t := float64(start+i) / sr
			var sum float64
			for _, v := range voices {
				sum += v.gain * math.Sin(2*math.Pi*v.frequency*t)
			}
			data[i] = int(math.Round(sum * amplitude))
		}
		buf.Data = data
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("failed to encode preview: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize preview: %w", err)
	}
	return nil
}
