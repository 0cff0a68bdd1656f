package ir

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Essence selects the representation of an uncertain quantity.
type Essence string

const (
	// EssenceInterval is a closed interval [lo, hi].
	EssenceInterval Essence = "interval"

	// EssenceScalar is a precisely known value, treated as [v, v].
	EssenceScalar Essence = "scalar"

	// EssenceDistribution is a probability distribution. It can be
	// constructed and persisted but not propagated.
	EssenceDistribution Essence = "distribution"
)

// ValidEssences lists the recognised essences in display order.
var ValidEssences = []Essence{EssenceInterval, EssenceScalar, EssenceDistribution}

// ParseEssence converts a string to an Essence.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseEssence(s string) (Essence, error) {
	e := Essence(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidEssences {
		if e == v {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown essence %q: must be one of %v", s, ValidEssences)
}

// Propagatable reports whether quantities of this essence can be fed to
// an interval-style propagation.
func (e Essence) Propagatable() bool {
	return e == EssenceInterval || e == EssenceScalar
}

// Quantity is one uncertain input or output.
//
// Quantity is an immutable value. Fields are unexported and only read
// accessors are provided, so one instance can be shared by any number of
// concurrent runs without synchronisation.
type Quantity struct {
	name    string
	symbol  string
	units   string
	essence Essence
	params  []float64
}

// InvalidBoundsError is returned when a quantity payload is malformed:
// lo > hi, a non-finite bound, or the wrong number of parameters for the essence.
type InvalidBoundsError struct {
	Name    string
	Essence Essence
	Bounds  []float64
	Reason  string
}

func (e *InvalidBoundsError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid bounds for %q (%s) %v: %s", e.Name, e.Essence, e.Bounds, e.Reason)
	}
	return fmt.Sprintf("invalid bounds (%s) %v: %s", e.Essence, e.Bounds, e.Reason)
}

// New constructs a Quantity.
//
// The bounds payload depends on the essence:
//   - interval: [lo, hi] with lo <= hi, both finite
//   - scalar: [v] (or [v, v]), finite
//   - distribution: one or more finite shape parameters, stored verbatim
//
// The payload is copied so later mutation of the caller's slice has no effect.
func New(name, symbol, units string, essence Essence, bounds []float64) (Quantity, error) {
	invalid := func(reason string) error {
		return &InvalidBoundsError{
			Name:    name,
			Essence: essence,
			Bounds:  append([]float64(nil), bounds...),
			Reason:  reason,
		}
	}

	for _, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return Quantity{}, invalid("bounds must be finite")
		}
	}

	var params []float64
	switch essence {
	case EssenceInterval:
		if len(bounds) != 2 {
			return Quantity{}, invalid("interval requires exactly two bounds")
		}
		if bounds[0] > bounds[1] {
			return Quantity{}, invalid("lower bound exceeds upper bound")
		}
		params = []float64{bounds[0], bounds[1]}
	case EssenceScalar:
		switch {
		case len(bounds) == 1:
			params = []float64{bounds[0], bounds[0]}
		case len(bounds) == 2 && bounds[0] == bounds[1]:
			params = []float64{bounds[0], bounds[1]}
		default:
			return Quantity{}, invalid("scalar requires one value")
		}
	case EssenceDistribution:
		if len(bounds) == 0 {
			return Quantity{}, invalid("distribution requires at least one parameter")
		}
		params = append([]float64(nil), bounds...)
	default:
		return Quantity{}, invalid(fmt.Sprintf("unknown essence %q", essence))
	}

	return Quantity{
		name:    name,
		symbol:  symbol,
		units:   units,
		essence: essence,
		params:  params,
	}, nil
}

// NewInterval is shorthand for New with EssenceInterval.
func NewInterval(name, symbol, units string, lo, hi float64) (Quantity, error) {
	return New(name, symbol, units, EssenceInterval, []float64{lo, hi})
}

// MustInterval is like NewInterval but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInterval(name, symbol, units string, lo, hi float64) Quantity {
	q, err := NewInterval(name, symbol, units, lo, hi)
	if err != nil {
		panic(err)
	}
	return q
}

// Name returns the display name.
func (q Quantity) Name() string { return q.name }

// Symbol returns the short symbol used to reference the quantity.
func (q Quantity) Symbol() string { return q.symbol }

// Units returns the physical unit.
func (q Quantity) Units() string { return q.units }

// Essence returns the representation kind.
func (q Quantity) Essence() Essence { return q.essence }

// Lo returns the lower bound. Only meaningful for propagatable essences.
func (q Quantity) Lo() float64 {
	if len(q.params) == 0 {
		return 0
	}
	return q.params[0]
}

// Hi returns the upper bound. Only meaningful for propagatable essences.
func (q Quantity) Hi() float64 {
	if len(q.params) < 2 {
		return q.Lo()
	}
	return q.params[1]
}

// At returns the point a fraction t of the way from lo to hi, clamped to
// [lo, hi]. When hi - lo overflows, as for bounds near ±MaxFloat64, the
// point is interpolated from the bounds directly.
func (q Quantity) At(t float64) float64 {
	lo, hi := q.Lo(), q.Hi()
	switch {
	case t <= 0:
		return lo
	case t >= 1:
		return hi
	}
	v := lo + (hi-lo)*t
	if math.IsInf(hi-lo, 0) {
		v = lo*(1-t) + hi*t
	}
	return min(max(v, lo), hi)
}

// Params returns a copy of the raw payload.
func (q Quantity) Params() []float64 {
	return append([]float64(nil), q.params...)
}

// Label returns the symbol if set, otherwise the name.
func (q Quantity) Label() string {
	if q.symbol != "" {
		return q.symbol
	}
	return q.name
}

// IsZero reports whether q is the zero Quantity (never constructed).
func (q Quantity) IsZero() bool {
	return q.essence == "" && q.params == nil
}

// Equal reports whether two quantities have identical content. Text
// fields are compared in Unicode NFC form, as they are hashed.
func (q Quantity) Equal(o Quantity) bool {
	if q.essence != o.essence || !sameText(q.name, o.name) ||
		!sameText(q.symbol, o.symbol) || !sameText(q.units, o.units) {
		return false
	}
	if len(q.params) != len(o.params) {
		return false
	}
	for i := range q.params {
		if q.params[i] != o.params[i] {
			return false
		}
	}
	return true
}

func sameText(a, b string) bool {
	return a == b || norm.NFC.String(a) == norm.NFC.String(b)
}

// String renders the quantity for logs and CLI output.
func (q Quantity) String() string {
	label := q.Label()
	if label == "" {
		label = "<unnamed>"
	}
	var body string
	switch q.essence {
	case EssenceInterval:
		body = fmt.Sprintf("[%g, %g]", q.Lo(), q.Hi())
	case EssenceScalar:
		body = fmt.Sprintf("%g", q.Lo())
	default:
		body = fmt.Sprintf("%s%v", q.essence, q.params)
	}
	if q.units != "" {
		return fmt.Sprintf("%s = %s %s", label, body, q.units)
	}
	return fmt.Sprintf("%s = %s", label, body)
}

// canonicalMap returns the quantity as a map for canonical JSON encoding.
func (q Quantity) canonicalMap() map[string]any {
	return map[string]any{
		"name":    q.name,
		"symbol":  q.symbol,
		"units":   q.units,
		"essence": string(q.essence),
		"params":  q.Params(),
	}
}
