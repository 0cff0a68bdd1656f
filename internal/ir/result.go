package ir

import "fmt"

// Result is the output enclosure of one propagation.
//
// Lo and Hi are taken over defined outcomes only. Samples counts every
// evaluation; Undefined and NonFinite count the excluded ones.
type Result struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`

	// ArgMin and ArgMax are the first samples (in plan order) attaining Lo and Hi.
	ArgMin   SamplePoint `json:"arg_min"`
	ArgMax   SamplePoint `json:"arg_max"`
	MinIndex int64       `json:"min_index"`
	MaxIndex int64       `json:"max_index"`

	Samples   int64 `json:"samples"`
	Undefined int64 `json:"undefined"`
	NonFinite int64 `json:"non_finite"`

	Method    Method   `json:"method"`
	N         int      `json:"n"`
	Seed      uint64   `json:"seed"`
	Variables []string `json:"variables"`
}

// Defined returns the number of outcomes that contributed to the bound.
func (r Result) Defined() int64 {
	return r.Samples - r.Undefined - r.NonFinite
}

// Quantity returns the enclosure as a new interval Quantity.
func (r Result) Quantity(name, symbol, units string) (Quantity, error) {
	return NewInterval(name, symbol, units, r.Lo, r.Hi)
}

func (r Result) String() string {
	return fmt.Sprintf("[%g, %g] (method=%s, samples=%d, undefined=%d, non_finite=%d)",
		r.Lo, r.Hi, r.Method, r.Samples, r.Undefined, r.NonFinite)
}

// Equal reports whether two results are identical, including metadata.
func (r Result) Equal(o Result) bool {
	if r.Lo != o.Lo || r.Hi != o.Hi ||
		r.MinIndex != o.MinIndex || r.MaxIndex != o.MaxIndex ||
		r.Samples != o.Samples || r.Undefined != o.Undefined || r.NonFinite != o.NonFinite ||
		r.Method != o.Method || r.N != o.N || r.Seed != o.Seed {
		return false
	}
	return floatsEqual(r.ArgMin, o.ArgMin) && floatsEqual(r.ArgMax, o.ArgMax) && stringsEqual(r.Variables, o.Variables)
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
