// Package policy loads the jurisdiction clause table: which clauses exist,
// which are mandatory, what fields each needs before it counts as complete,
// and the scalar limits the review gate enforces. The table is data, not
// code: swapping the YAML file swaps the jurisdiction.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Clause is one entry of the clause table.
type Clause struct {
	Key            string             `yaml:"key"`
	Title          string             `yaml:"title"`
	Mandatory      bool               `yaml:"mandatory"`
	RiskLevel      workflow.RiskLevel `yaml:"risk_level"`
	RequiredFields []string           `yaml:"required_fields"`
	Template       string             `yaml:"template"`
}

// Policy is a full jurisdiction policy document.
type Policy struct {
	Jurisdiction          string   `yaml:"jurisdiction"`
	DurationCeilingMonths int      `yaml:"duration_ceiling_months"`
	ReturnTimelineMinDays int      `yaml:"return_timeline_min_days"`
	ReturnTimelineMaxDays int      `yaml:"return_timeline_max_days"`
	Clauses               []Clause `yaml:"clauses"`

	byKey map[string]*Clause
}

// Default parses the embedded reference policy.
func Default() (*Policy, error) {
	return parse(defaultPolicyYAML)
}

// Load reads a policy from path. An empty path falls back to the embedded
// default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clause policy %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse clause policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.byKey = make(map[string]*Clause, len(p.Clauses))
	for i := range p.Clauses {
		p.byKey[p.Clauses[i].Key] = &p.Clauses[i]
	}
	return p, nil
}

func (p *Policy) validate() error {
	if p.DurationCeilingMonths <= 0 {
		return fmt.Errorf("clause policy: duration_ceiling_months must be positive")
	}
	seen := make(map[string]bool)
	mandatory := 0
	for _, c := range p.Clauses {
		if c.Key == "" {
			return fmt.Errorf("clause policy: clause with empty key")
		}
		if seen[c.Key] {
			return fmt.Errorf("clause policy: duplicate clause key %q", c.Key)
		}
		seen[c.Key] = true
		if c.Template == "" {
			return fmt.Errorf("clause policy: clause %q has no template", c.Key)
		}
		if !workflow.ValidRiskLevel(c.RiskLevel) {
			return fmt.Errorf("clause policy: clause %q has invalid risk level %q", c.Key, c.RiskLevel)
		}
		if c.Mandatory {
			mandatory++
		}
	}
	if mandatory == 0 {
		return fmt.Errorf("clause policy: no mandatory clauses defined")
	}
	return nil
}

// Clause looks up a clause by key.
func (p *Policy) Clause(key string) (*Clause, bool) {
	c, ok := p.byKey[key]
	return c, ok
}

// MandatoryClauses returns the mandatory subset in declaration order.
func (p *Policy) MandatoryClauses() []Clause {
	var out []Clause
	for _, c := range p.Clauses {
		if c.Mandatory {
			out = append(out, c)
		}
	}
	return out
}

// OptionalClauses returns the optional subset in declaration order.
func (p *Policy) OptionalClauses() []Clause {
	var out []Clause
	for _, c := range p.Clauses {
		if !c.Mandatory {
			out = append(out, c)
		}
	}
	return out
}
