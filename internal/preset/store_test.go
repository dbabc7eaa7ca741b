package preset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/routemix/internal/mixer"
)

func sampleSnapshot() mixer.Snapshot {
	return mixer.Snapshot{
		Routing: map[string]map[string]bool{
			"microphone": {"speakers": true, "chat": false},
		},
		Volumes: map[string]int{"microphone": 33, "speakers": 100},
		Muted:   map[string]bool{"chat": true},
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"Default", "default", false},
		{"  Late Night Stream ", "late-night-stream", false},
		{"Game/Chat #2", "game-chat-2", false},
		{"--odd--", "odd", false},
		{"配信", "配信", false},
		{"Café Night", "café-night", false},
		{"", "", true},
		{"!!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slug(tt.name)
			if tt.wantErr {
				if !errors.Is(err, mixer.ErrInvalidValue) {
					t.Errorf("Expected ErrInvalidValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "presets"))

	saved, err := s.Save("Late Night", sampleSnapshot())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID != "late-night" || saved.Version != FormatVersion {
		t.Errorf("Unexpected preset header: %+v", saved)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "late-night.yaml"))
	if err != nil {
		t.Fatalf("Preset file not written: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Errorf("Expected version field in file, got:\n%s", data)
	}

	loaded, err := s.Load("late night")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "Late Night" {
		t.Errorf("Expected name Late Night, got %q", loaded.Name)
	}
	if !loaded.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt changed: %v -> %v", saved.SavedAt, loaded.SavedAt)
	}
	if loaded.Volumes["microphone"] != 33 || !loaded.Muted["chat"] {
		t.Errorf("Snapshot values lost: %+v", loaded.Snapshot)
	}
	if !loaded.Routing["microphone"]["speakers"] || loaded.Routing["microphone"]["chat"] {
		t.Errorf("Routing lost: %+v", loaded.Routing)
	}
}

func TestStore_Overwrite(t *testing.T) {
	s := NewStore(t.TempDir())

	s.Save("Show", sampleSnapshot())
	s.Save("show", mixer.Snapshot{Volumes: map[string]int{"microphone": 1}})

	p, err := s.Load("SHOW")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Volumes["microphone"] != 1 {
		t.Errorf("Expected last write to win, got %d", p.Volumes["microphone"])
	}

	list, _ := s.List()
	if len(list) != 1 {
		t.Errorf("Expected one preset, got %v", list)
	}
}

func TestStore_ListOrderedByName(t *testing.T) {
	s := NewStore(t.TempDir())

	for _, name := range []string{"Zebra", "alpha", "Mid"} {
		if _, err := s.Save(name, sampleSnapshot()); err != nil {
			t.Fatalf("Save %s failed: %v", name, err)
		}
	}
	// stray files are ignored
	os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(s.Dir(), "broken.yaml"), []byte("version: [oops"), 0644)

	list, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alpha", "Mid", "Zebra"}
	if len(list) != len(want) {
		t.Fatalf("Expected %d presets, got %v", len(want), list)
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("List()[%d] = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestStore_MissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does", "not", "exist"))

	list, err := s.List()
	if err != nil || len(list) != 0 {
		t.Errorf("Expected empty list, got %v, %v", list, err)
	}
	empty, err := s.Empty()
	if err != nil || !empty {
		t.Errorf("Expected empty store, got %v, %v", empty, err)
	}
	if _, err := s.Load("anything"); !errors.Is(err, mixer.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Save("Temp", sampleSnapshot())

	if err := s.Delete("temp"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load("Temp"); !errors.Is(err, mixer.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete("Temp"); !errors.Is(err, mixer.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestStore_RejectsUnknownVersion(t *testing.T) {
	s := NewStore(t.TempDir())
	content := "id: future\nname: Future\nversion: 2\nvolumes:\n  microphone: 10\n"
	if err := os.WriteFile(filepath.Join(s.Dir(), "future.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	if _, err := s.Load("Future"); !errors.Is(err, mixer.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
}

func TestStore_RejectsCollidingNames(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, err := s.Save("Live!", mixer.Snapshot{Volumes: map[string]int{"microphone": 10}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, err := s.Save("Live?", mixer.Snapshot{Volumes: map[string]int{"microphone": 90}})
	if !errors.Is(err, mixer.ErrInvalidValue) {
		t.Fatalf("Expected ErrInvalidValue for colliding name, got %v", err)
	}

	p, err := s.Load("Live!")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "Live!" || p.Volumes["microphone"] != 10 {
		t.Errorf("Expected the first preset untouched, got %q with %d", p.Name, p.Volumes["microphone"])
	}
	if _, err := s.Load("Live?"); !errors.Is(err, mixer.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a name that was never saved, got %v", err)
	}
	if err := s.Delete("Live?"); !errors.Is(err, mixer.ErrNotFound) {
		t.Errorf("Expected Delete of a different name to fail, got %v", err)
	}
	if _, err := s.Load("live"); err != nil {
		t.Errorf("Expected load by id to work, got %v", err)
	}
}

func TestStore_NonASCIINames(t *testing.T) {
	s := NewStore(t.TempDir())

	saved, err := s.Save("配信", sampleSnapshot())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID != "配信" {
		t.Errorf("Expected id 配信, got %q", saved.ID)
	}

	list, err := s.List()
	if err != nil || len(list) != 1 || list[0].Name != "配信" {
		t.Fatalf("Unexpected list: %+v, %v", list, err)
	}
	if _, err := s.Load("配信"); err != nil {
		t.Errorf("Load failed: %v", err)
	}
}
