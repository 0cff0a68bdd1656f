package models

import (
	"errors"
	"fmt"
)

// ErrDegenerateSection is returned when a beam's second moment of area or
// modulus is zero, where the closed-form expressions divide by it.
var ErrDegenerateSection = errors.New("degenerate beam section")

func builtins() []Model {
	return []Model{
		{
			Name:        "cantilever_beam_deflection",
			Description: "Tip deflection of a cantilever beam under an end load",
			Params:      []string{"L", "I", "F", "E"},
			Units:       "m",
			Fn:          CantileverDeflection,
		},
		{
			Name:        "cantilever_beam_stress",
			Description: "Maximum bending stress at the root of a cantilever beam",
			Params:      []string{"y", "L", "I", "F"},
			Units:       "MPa",
			Fn:          CantileverStress,
		},
	}
}

// CantileverDeflection returns the tip deflection in m.
//
// x = [L (m), I (m^4), F (kN), E (GPa)]:
//
//	δ = F·L³ / (3·E·10⁶·I)
func CantileverDeflection(x []float64) (float64, error) {
	if len(x) != 4 {
		return 0, fmt.Errorf("deflection takes 4 inputs, got %d", len(x))
	}
	L, I, F, E := x[0], x[1], x[2], x[3]
	if I == 0 || E == 0 {
		return 0, ErrDegenerateSection
	}
	return F * L * L * L / (3 * E * 1e6 * I), nil
}

// CantileverStress returns the root bending stress in MPa.
//
// x = [y (beam width, m), L (m), I (m^4), F (kN)]. The extreme fibre sits
// at y/2:
//
//	σ = F·L·y / (2000·I)
func CantileverStress(x []float64) (float64, error) {
	if len(x) != 4 {
		return 0, fmt.Errorf("stress takes 4 inputs, got %d", len(x))
	}
	y, L, I, F := x[0], x[1], x[2], x[3]
	if I == 0 {
		return 0, ErrDegenerateSection
	}
	return F * L * y / (2000 * I), nil
}
