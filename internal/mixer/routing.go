package mixer

import "fmt"

// Route means "input is currently mixed into output".
type Route struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// RoutingTable is the boolean adjacency between inputs and outputs.
// It does no locking of its own; the Engine serialises access.
type RoutingTable struct {
	catalog *Catalog
	routes  map[Route]struct{}
}

func NewRoutingTable(catalog *Catalog) *RoutingTable {
	return &RoutingTable{
		catalog: catalog,
		routes:  make(map[Route]struct{}),
	}
}

func (t *RoutingTable) validate(input, output string) error {
	if !t.catalog.IsInput(input) {
		return fmt.Errorf("%w: input %q", ErrNotFound, input)
	}
	if !t.catalog.IsOutput(output) {
		return fmt.Errorf("%w: output %q", ErrNotFound, output)
	}
	return nil
}

// Toggle flips the route and returns its new state.
func (t *RoutingTable) Toggle(input, output string) (bool, error) {
	if err := t.validate(input, output); err != nil {
		return false, err
	}

	r := Route{Input: input, Output: output}
	if _, ok := t.routes[r]; ok {
		delete(t.routes, r)
		return false, nil
	}
	t.routes[r] = struct{}{}
	return true, nil
}

// Set forces the route to enabled and reports whether anything changed.
func (t *RoutingTable) Set(input, output string, enabled bool) (bool, error) {
	if err := t.validate(input, output); err != nil {
		return false, err
	}

	r := Route{Input: input, Output: output}
	_, present := t.routes[r]
	if present == enabled {
		return false, nil
	}
	if enabled {
		t.routes[r] = struct{}{}
	} else {
		delete(t.routes, r)
	}
	return true, nil
}

// IsRouted is false for unknown ids.
func (t *RoutingTable) IsRouted(input, output string) bool {
	_, ok := t.routes[Route{Input: input, Output: output}]
	return ok
}

// Routes lists the active routes in catalog order.
func (t *RoutingTable) Routes() []Route {
	var routes []Route
	for _, in := range t.catalog.inputs {
		for _, out := range t.catalog.outputs {
			if t.IsRouted(in.ID, out.ID) {
				routes = append(routes, Route{Input: in.ID, Output: out.ID})
			}
		}
	}
	return routes
}

// Matrix returns every input/output pair with its state.
func (t *RoutingTable) Matrix() map[string]map[string]bool {
	m := make(map[string]map[string]bool, len(t.catalog.inputs))
	for _, in := range t.catalog.inputs {
		row := make(map[string]bool, len(t.catalog.outputs))
		for _, out := range t.catalog.outputs {
			row[out.ID] = t.IsRouted(in.ID, out.ID)
		}
		m[in.ID] = row
	}
	return m
}

// InputsFor lists the inputs feeding output, in catalog order.
func (t *RoutingTable) InputsFor(output string) []string {
	var inputs []string
	for _, in := range t.catalog.inputs {
		if t.IsRouted(in.ID, output) {
			inputs = append(inputs, in.ID)
		}
	}
	return inputs
}
