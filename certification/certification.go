// Package certification models compliance catalogues and aggregates rule
// evaluation results into per-control fulfillment.
package certification

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cloudprobe/assure/assets"
)

// Fulfillment is the three-state aggregate compliance status of a control.
type Fulfillment int

const (
	// NotEvaluated is the initial state, re-entered whenever no evaluation
	// results exist for the control.
	NotEvaluated Fulfillment = iota
	// Good means every known result passes.
	Good
	// Warning means at least one known result fails.
	Warning
)

func (f Fulfillment) String() string {
	switch f {
	case Good:
		return "GOOD"
	case Warning:
		return "WARNING"
	default:
		return "NOT_EVALUATED"
	}
}

// MarshalJSON renders the state name rather than the ordinal.
func (f Fulfillment) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

// UnmarshalJSON accepts the state name.
func (f *Fulfillment) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"GOOD"`:
		*f = Good
	case `"WARNING"`:
		*f = Warning
	case `"NOT_EVALUATED"`:
		*f = NotEvaluated
	default:
		return fmt.Errorf("unknown fulfillment state %s", data)
	}
	return nil
}

// Control is one compliance requirement of a certification.
type Control struct {
	ControlID   string `json:"control_id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Domain      string `json:"domain" yaml:"domain"`

	// Automated is true iff at least one rule is mapped to the control.
	Automated bool `json:"automated" yaml:"-"`
	// Active means an operator has turned monitoring on.
	Active bool `json:"active" yaml:"-"`

	Fulfilled Fulfillment `json:"fulfilled" yaml:"-"`

	// RuleIDs and Results reflect the last aggregation pass.
	RuleIDs []string                  `json:"rule_ids,omitempty" yaml:"-"`
	Results []assets.EvaluationResult `json:"results,omitempty" yaml:"-"`
}

// IsGood reports a fulfilled control; only meaningful while monitored.
func (c *Control) IsGood() bool {
	return c.Active && c.Fulfilled == Good
}

// HasWarning reports a violated control; only meaningful while monitored.
func (c *Control) HasWarning() bool {
	return c.Active && c.Fulfilled == Warning
}

// Certification is a named collection of controls, e.g. BSI C5.
type Certification struct {
	ID          string     `json:"id" yaml:"id"`
	Publisher   string     `json:"publisher" yaml:"publisher"`
	Description string     `json:"description" yaml:"description"`
	Website     string     `json:"website" yaml:"website"`
	Controls    []*Control `json:"controls" yaml:"controls"`
}

// Control returns the control with the given id, or nil.
func (c *Certification) Control(controlID string) *Control {
	for _, control := range c.Controls {
		if control.ControlID == controlID {
			return control
		}
	}
	return nil
}

// LoadCatalog reads a certification object graph from a YAML catalogue
// file, the shape external importers produce.
func LoadCatalog(path string) (*Certification, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- catalogue path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	var cert Certification
	if err := yaml.Unmarshal(data, &cert); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}

	if cert.ID == "" {
		return nil, fmt.Errorf("catalogue has no certification id")
	}
	if len(cert.Controls) == 0 {
		return nil, fmt.Errorf("certification %s has no controls", cert.ID)
	}

	return &cert, nil
}
