package mixer

import (
	"errors"
	"testing"

	"github.com/audiolibrelab/routemix/internal/config"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(config.Default())
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return c
}

func TestCatalog_Order(t *testing.T) {
	c := newTestCatalog(t)

	want := []string{"microphone", "game", "music", "browser", "speakers", "headphones", "stream", "chat"}
	got := c.IDs()
	if len(got) != len(want) {
		t.Fatalf("Expected %d ids, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !c.IsInput("game") || c.IsOutput("game") {
		t.Error("Expected game to be an input only")
	}
	if c.Frequency("speakers") != 0 {
		t.Errorf("Expected no frequency on an output, got %.2f", c.Frequency("speakers"))
	}
}

func TestCatalog_DuplicateID(t *testing.T) {
	cfg := config.Default()
	cfg.Outputs = append(cfg.Outputs, config.ChannelDefinition{ID: "microphone", Name: "Echo"})

	_, err := NewCatalog(cfg)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Expected ErrInvalidValue for duplicate id, got %v", err)
	}
}

func TestRoutingTable_ToggleAndSet(t *testing.T) {
	rt := NewRoutingTable(newTestCatalog(t))

	if rt.IsRouted("music", "chat") {
		t.Fatal("Expected empty table")
	}
	if on, err := rt.Toggle("music", "chat"); err != nil || !on {
		t.Fatalf("Expected toggle on, got %v, %v", on, err)
	}
	if changed, _ := rt.Set("music", "chat", true); changed {
		t.Error("Expected Set to report no change")
	}
	if changed, _ := rt.Set("music", "chat", false); !changed {
		t.Error("Expected Set to report a change")
	}
	if rt.IsRouted("music", "chat") {
		t.Error("Expected music -> chat off")
	}
}

func TestRoutingTable_RejectsUnknown(t *testing.T) {
	rt := NewRoutingTable(newTestCatalog(t))

	if _, err := rt.Toggle("chat", "music"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for reversed pair, got %v", err)
	}
	if _, err := rt.Set("microphone", "nowhere", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown output, got %v", err)
	}
	if rt.IsRouted("ghost", "speakers") {
		t.Error("Expected unknown pair to read as not routed")
	}
	if len(rt.Routes()) != 0 {
		t.Errorf("Expected no routes, got %v", rt.Routes())
	}
}

func TestRoutingTable_MatrixAndInputsFor(t *testing.T) {
	rt := NewRoutingTable(newTestCatalog(t))
	rt.Set("browser", "stream", true)
	rt.Set("microphone", "stream", true)

	m := rt.Matrix()
	if len(m) != 4 {
		t.Fatalf("Expected 4 matrix rows, got %d", len(m))
	}
	for in, row := range m {
		if len(row) != 4 {
			t.Errorf("Row %s has %d columns, want 4", in, len(row))
		}
	}
	if !m["browser"]["stream"] || m["browser"]["chat"] {
		t.Errorf("Unexpected browser row: %v", m["browser"])
	}

	inputs := rt.InputsFor("stream")
	if len(inputs) != 2 || inputs[0] != "microphone" || inputs[1] != "browser" {
		t.Errorf("Expected [microphone browser], got %v", inputs)
	}
}

func TestChannelStore_MuteKeepsVolume(t *testing.T) {
	s := NewChannelStore(newTestCatalog(t), false)

	s.SetVolume("stream", 70)
	if prev, _ := s.SetMute("stream", true); prev {
		t.Error("Expected previous mute state false")
	}
	if v, _ := s.Volume("stream"); v != 70 {
		t.Errorf("Expected volume 70, got %d", v)
	}
	if eff, _ := s.EffectiveLevel("stream"); eff != 0 {
		t.Errorf("Expected effective 0 while muted, got %d", eff)
	}
	if _, err := s.Muted("nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-10, 0}, {0, 0}, {55, 55}, {100, 100}, {150, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in, MinVolume, MaxVolume); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
