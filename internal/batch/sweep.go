// Package batch runs parameter sweeps over a model, one instance per worker.
package batch

import (
	"fmt"
)

// Sweep modes. Product crosses every parameter with every other; zip pairs
// the i-th value of each parameter into the i-th case.
const (
	ModeProduct = "product"
	ModeZip     = "zip"
)

// Param is one swept variable with its candidate start values, in declaration
// order.
type Param struct {
	Name   string `json:"name" yaml:"name"`
	Values []any  `json:"values" yaml:"values"`
}

// Sweep declares a set of runs over start-value combinations.
type Sweep struct {
	Mode   string  `json:"mode" yaml:"mode"`
	Params []Param `json:"params" yaml:"params"`
}

// Case is the start-value overlay for a single run.
type Case map[string]any

// Cases expands the sweep into the ordered list of runs. The first parameter
// varies slowest in product mode, so the expansion is deterministic.
func (s Sweep) Cases() ([]Case, error) {
	if len(s.Params) == 0 {
		return nil, fmt.Errorf("batch: sweep declares no parameters")
	}
	for _, p := range s.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("batch: sweep parameter with empty name")
		}
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("batch: parameter %s has no values", p.Name)
		}
	}
	switch s.Mode {
	case ModeProduct, "":
		return s.product(), nil
	case ModeZip:
		return s.zip()
	}
	return nil, fmt.Errorf("batch: unknown sweep mode %q", s.Mode)
}

func (s Sweep) product() []Case {
	total := 1
	for _, p := range s.Params {
		total *= len(p.Values)
	}
	cases := make([]Case, total)
	for i := range cases {
		c := make(Case, len(s.Params))
		idx := i
		for j := len(s.Params) - 1; j >= 0; j-- {
			p := s.Params[j]
			c[p.Name] = p.Values[idx%len(p.Values)]
			idx /= len(p.Values)
		}
		cases[i] = c
	}
	return cases
}

func (s Sweep) zip() ([]Case, error) {
	n := len(s.Params[0].Values)
	for _, p := range s.Params[1:] {
		if len(p.Values) != n {
			return nil, fmt.Errorf("batch: zip mode needs equal value counts, %s has %d, %s has %d",
				s.Params[0].Name, n, p.Name, len(p.Values))
		}
	}
	cases := make([]Case, n)
	for i := range cases {
		c := make(Case, len(s.Params))
		for _, p := range s.Params {
			c[p.Name] = p.Values[i]
		}
		cases[i] = c
	}
	return cases, nil
}
