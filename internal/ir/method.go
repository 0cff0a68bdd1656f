package ir

import (
	"fmt"
	"strings"
)

// Method identifies a propagation strategy.
type Method string

const (
	// MethodSubinterval splits every input into n equal sub-intervals and
	// evaluates the Cartesian product of their endpoints.
	MethodSubinterval Method = "subinterval"

	// MethodEndpoint evaluates the 2^k vertices of the input box.
	MethodEndpoint Method = "endpoint"

	// MethodMonteCarlo draws n uniform samples from the input box.
	MethodMonteCarlo Method = "monte_carlo"

	// MethodLatinHypercube draws n stratified samples from the input box.
	MethodLatinHypercube Method = "latin_hypercube"
)

// ValidMethods lists the recognised methods in display order.
var ValidMethods = []Method{MethodSubinterval, MethodEndpoint, MethodMonteCarlo, MethodLatinHypercube}

// methodAliases maps accepted alternate spellings to canonical methods.
var methodAliases = map[string]Method{
	"endpoints":  MethodEndpoint,
	"vertex":     MethodEndpoint,
	"montecarlo": MethodMonteCarlo,
	"lhs":        MethodLatinHypercube,
}

// ParseMethod converts a string to a Method.
// Returns false if the string names no known method or alias.
func ParseMethod(s string) (Method, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, m := range ValidMethods {
		if key == string(m) {
			return m, true
		}
	}
	if m, ok := methodAliases[key]; ok {
		return m, true
	}
	return "", false
}

// Sampled reports whether the method draws pseudo-random samples and
// therefore depends on a seed for reproducibility.
func (m Method) Sampled() bool {
	return m == MethodMonteCarlo || m == MethodLatinHypercube
}

// Describe returns a one-line description for CLI listings.
func (m Method) Describe() string {
	switch m {
	case MethodSubinterval:
		return "(2n)^k corners of n equal sub-intervals per input"
	case MethodEndpoint:
		return "2^k vertices of the input box"
	case MethodMonteCarlo:
		return "n seeded uniform samples"
	case MethodLatinHypercube:
		return "n seeded Latin hypercube samples"
	default:
		return fmt.Sprintf("unknown method %q", string(m))
	}
}
