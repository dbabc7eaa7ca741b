package mixer

import (
	"fmt"

	"github.com/audiolibrelab/routemix/internal/config"
)

// Kind tells inputs and outputs apart
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// Device is the public identity of a channel
type Device struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type catalogEntry struct {
	device    Device
	kind      Kind
	frequency float64
}

// Catalog is the fixed set of channels known for a session. It never changes
// after construction.
type Catalog struct {
	inputs  []Device
	outputs []Device
	entries map[string]catalogEntry
}

// NewCatalog builds the channel catalog from the configured definitions.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	c := &Catalog{
		entries: make(map[string]catalogEntry, len(cfg.Inputs)+len(cfg.Outputs)),
	}

	for _, def := range cfg.Inputs {
		if err := c.add(def, KindInput); err != nil {
			return nil, err
		}
	}
	for _, def := range cfg.Outputs {
		if err := c.add(def, KindOutput); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) add(def config.ChannelDefinition, kind Kind) error {
	if def.ID == "" {
		return fmt.Errorf("%w: empty channel id", ErrInvalidValue)
	}
	if _, dup := c.entries[def.ID]; dup {
		return fmt.Errorf("%w: duplicate channel id %q", ErrInvalidValue, def.ID)
	}

	dev := Device{ID: def.ID, Name: def.Name}
	c.entries[def.ID] = catalogEntry{device: dev, kind: kind, frequency: def.Frequency}

	if kind == KindInput {
		c.inputs = append(c.inputs, dev)
	} else {
		c.outputs = append(c.outputs, dev)
	}
	return nil
}

// Inputs returns the input devices in catalog order.
func (c *Catalog) Inputs() []Device {
	return append([]Device(nil), c.inputs...)
}

// Outputs returns the output devices in catalog order.
func (c *Catalog) Outputs() []Device {
	return append([]Device(nil), c.outputs...)
}

// IDs returns every channel id, inputs first.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.inputs)+len(c.outputs))
	for _, d := range c.inputs {
		ids = append(ids, d.ID)
	}
	for _, d := range c.outputs {
		ids = append(ids, d.ID)
	}
	return ids
}

func (c *Catalog) Kind(id string) (Kind, bool) {
	e, ok := c.entries[id]
	return e.kind, ok
}

func (c *Catalog) IsInput(id string) bool {
	k, ok := c.Kind(id)
	return ok && k == KindInput
}

func (c *Catalog) IsOutput(id string) bool {
	k, ok := c.Kind(id)
	return ok && k == KindOutput
}

// Frequency returns the oscillator pitch of an input, 0 for outputs.
func (c *Catalog) Frequency(id string) float64 {
	return c.entries[id].frequency
}

func (c *Catalog) name(id string) string {
	return c.entries[id].device.Name
}
