package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/routemix/internal/mixer"
)

// FormatVersion is written into every preset file.
const FormatVersion = 1

const fileExt = ".yaml"

// Preset is a named, persisted mixer snapshot.
type Preset struct {
	ID      string    `json:"id" yaml:"id"`
	Name    string    `json:"name" yaml:"name"`
	Version int       `json:"version" yaml:"version"`
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`

	mixer.Snapshot `yaml:",inline"`
}

// Summary is what List returns per preset.
type Summary struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Store keeps one YAML file per preset in a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory presets are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Slug turns a preset name into its id: lowercase letters and digits in any
// script, everything else collapsed into single dashes.
func Slug(name string) (string, error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	id := strings.TrimSuffix(b.String(), "-")
	if id == "" {
		return "", fmt.Errorf("%w: preset name %q has no usable characters", mixer.ErrInvalidValue, name)
	}
	return id, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// matches reports whether name refers to p, either by its id or by its name
// ignoring case.
func matches(p *Preset, name string) bool {
	name = strings.TrimSpace(name)
	return p.ID == name || strings.EqualFold(p.Name, name)
}

// Save writes snap under name, replacing a preset of the same name. A
// different name that maps to an existing id is rejected.
func (s *Store) Save(name string, snap mixer.Snapshot) (*Preset, error) {
	id, err := Slug(name)
	if err != nil {
		return nil, err
	}

	p := &Preset{
		ID:       id,
		Name:     strings.TrimSpace(name),
		Version:  FormatVersion,
		SavedAt:  time.Now().UTC().Truncate(time.Second),
		Snapshot: snap,
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preset %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.read(id); err == nil && !matches(existing, name) {
		return nil, fmt.Errorf("%w: preset name %q collides with existing preset %q",
			mixer.ErrInvalidValue, p.Name, existing.Name)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preset directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write preset %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write preset %q: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		return nil, fmt.Errorf("failed to store preset %q: %w", name, err)
	}

	slog.Debug("Preset saved", "id", id, "path", s.path(id))
	return p, nil
}

// Load reads the preset called name. Either the display name or the id is
// accepted.
func (s *Store) Load(name string) (*Preset, error) {
	id, err := Slug(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if !matches(p, name) {
		return nil, fmt.Errorf("%w: preset %q", mixer.ErrNotFound, name)
	}
	return p, nil
}

func (s *Store) read(id string) (*Preset, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: preset %q", mixer.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset %q: %w", id, err)
	}

	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset %q: %w", id, err)
	}
	if p.Version != FormatVersion {
		return nil, fmt.Errorf("%w: preset %q has version %d, expected %d",
			mixer.ErrInvalidValue, id, p.Version, FormatVersion)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.Name == "" {
		p.Name = id
	}
	return &p, nil
}

// List returns every readable preset ordered by name. A missing directory is
// an empty store.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}

	summaries := []Summary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		p, err := s.read(strings.TrimSuffix(name, fileExt))
		if err != nil {
			slog.Warn("Skipping unreadable preset", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, Summary{ID: p.ID, Name: p.Name})
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := strings.ToLower(summaries[i].Name), strings.ToLower(summaries[j].Name)
		if a != b {
			return a < b
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// Delete removes a preset.
func (s *Store) Delete(name string) error {
	id, err := Slug(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, err := s.read(id); err == nil && !matches(p, name) {
		return fmt.Errorf("%w: preset %q", mixer.ErrNotFound, name)
	}

	err = os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: preset %q", mixer.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", id, err)
	}
	slog.Debug("Preset deleted", "id", id)
	return nil
}

// Empty reports whether the store holds no preset files.
func (s *Store) Empty() (bool, error) {
	list, err := s.List()
	if err != nil {
		return false, err
	}
	return len(list) == 0, nil
}
