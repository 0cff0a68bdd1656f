package ir

import (
	"fmt"
	"time"
)

// Problem is a compiled propagation problem: a set of named quantities
// and one propagation request over a subset of them.
type Problem struct {
	Name        string
	Quantities  []Quantity // Declaration order
	Propagation PropagationSpec
}

// PropagationSpec describes one black-box propagation request.
type PropagationSpec struct {
	// Model names a registered black-box function.
	Model string

	// Inputs lists quantity symbols in the order the model expects them.
	Inputs []string

	Method      Method
	N           int // 0 selects the method default
	Seed        uint64
	Workers     int
	Timeout     time.Duration
	SaveRawData bool
	BasePath    string

	Output OutputSpec
}

// OutputSpec names the quantity produced by a propagation.
type OutputSpec struct {
	Name   string
	Symbol string
	Units  string
}

// Lookup returns the quantity with the given symbol (or name, if no
// symbol matches).
func (p *Problem) Lookup(ref string) (Quantity, bool) {
	for _, q := range p.Quantities {
		if q.Symbol() == ref {
			return q, true
		}
	}
	for _, q := range p.Quantities {
		if q.Name() == ref {
			return q, true
		}
	}
	return Quantity{}, false
}

// Inputs resolves Propagation.Inputs to quantities, preserving order.
func (p *Problem) Inputs() ([]Quantity, error) {
	out := make([]Quantity, 0, len(p.Propagation.Inputs))
	for _, ref := range p.Propagation.Inputs {
		q, ok := p.Lookup(ref)
		if !ok {
			return nil, fmt.Errorf("input %q does not name a declared quantity", ref)
		}
		out = append(out, q)
	}
	return out, nil
}
