package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// DefaultPlayers lists external players in order of preference
var DefaultPlayers = []string{"vlc", "mpv", "ffplay", "aplay"}

// Player auditions rendered WAV previews through an external player
type Player struct {
	players  []string
	lookPath func(string) (string, error)
}

func New() *Player {
	return &Player{players: DefaultPlayers, lookPath: exec.LookPath}
}

// Play blocks until the player exits or ctx is cancelled
func (p *Player) Play(ctx context.Context, wavFile string) error {
	if _, err := os.Stat(wavFile); err != nil {
		return fmt.Errorf("audio file not found: %s", wavFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	name, args := commandFor(player, wavFile)
	cmd := exec.CommandContext(ctx, name, args...)

	slog.Debug("Starting playback", "player", player, "file", wavFile)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	slog.Debug("Playback completed", "file", wavFile)
	return nil
}

// commandFor returns the command line that plays wavFile and exits
func commandFor(player, wavFile string) (string, []string) {
	switch player {
	case "vlc":
		return "vlc", []string{"--intf", "dummy", "--play-and-exit", wavFile}
	case "mpv":
		return "mpv", []string{"--no-video", wavFile}
	case "ffplay":
		return "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "error", wavFile}
	default:
		return player, []string{wavFile}
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range p.players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(p.players, ", "))
}
