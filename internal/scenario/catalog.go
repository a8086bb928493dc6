// Package scenario holds the catalog of simulation scenarios an operator can
// trigger from the dashboard.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/edgeview/model"
)

// ErrUnknownScenario is returned when a scenario id is not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

//go:embed catalog.yaml
var builtin []byte

// Catalog is an ordered, read-only set of scenarios.
type Catalog struct {
	order []string
	byID  map[string]model.Scenario
}

// Default returns the built-in catalog: peak_traffic, link_failure,
// weather_event and user_surge.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("scenario: built-in catalog: %v", err))
	}
	return c
}

// Parse reads a YAML list of scenarios.
func Parse(data []byte) (*Catalog, error) {
	var list []model.Scenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	return New(list...)
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return Parse(data)
}

// New builds a catalog from scenarios. Ids must be non-empty and unique.
func New(scenarios ...model.Scenario) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]model.Scenario, len(scenarios))}
	for _, sc := range scenarios {
		if sc.ID == "" {
			return nil, errors.New("scenario without id")
		}
		if _, dup := c.byID[sc.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario %q", sc.ID)
		}
		c.order = append(c.order, sc.ID)
		c.byID[sc.ID] = sc
	}
	return c, nil
}

// Lookup returns the scenario with id.
func (c *Catalog) Lookup(id string) (model.Scenario, error) {
	sc, ok := c.byID[id]
	if !ok {
		return model.Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	return sc, nil
}

// List returns the scenarios in catalog order.
func (c *Catalog) List() []model.Scenario {
	out := make([]model.Scenario, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Ack is the response to a scenario trigger.
type Ack struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	EstimatedDuration int    `json:"estimatedDuration"` // seconds
}

// TriggerRequest is the body of a scenario trigger. Either ScenarioID names a
// catalog entry or the inline scenario is used as given.
type TriggerRequest struct {
	ScenarioID string `json:"scenarioId,omitempty"`
	model.Scenario
}

// Resolve turns req into the scenario to trigger. A catalog id wins over
// inline fields; an inline scenario needs at least an id or a name.
func (c *Catalog) Resolve(req TriggerRequest) (model.Scenario, error) {
	if req.ScenarioID != "" {
		return c.Lookup(req.ScenarioID)
	}
	if req.ID == "" && req.Name == "" {
		return model.Scenario{}, fmt.Errorf("%w: no scenario id or name", ErrUnknownScenario)
	}
	if req.Name == "" {
		if known, err := c.Lookup(req.ID); err == nil {
			return known, nil
		}
	}
	return req.Scenario, nil
}
