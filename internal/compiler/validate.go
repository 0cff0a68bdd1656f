package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/upbb/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Quantity errors (E101-E109)
	ErrDuplicateQuantity = "E101" // two quantities share a symbol
	ErrQuantityNoSymbol  = "E102" // quantity has no symbol

	// Propagation errors (E110-E129)
	ErrNoInputs           = "E110" // vars is empty
	ErrUnknownInput       = "E111" // vars names no declared quantity
	ErrDuplicateInput     = "E112" // vars names a quantity twice
	ErrUnsupportedEssence = "E113" // input cannot be propagated
	ErrUnknownMethod      = "E114" // method not recognised
	ErrNegativeCount      = "E115" // n is negative
	ErrNegativeWorkers    = "E116" // workers is negative
	ErrNegativeTimeout    = "E117" // timeout is negative
	ErrMissingBasePath    = "E118" // save_raw_data without base_path
	ErrMissingModel       = "E119" // model is empty
	ErrUnknownModel       = "E120" // model not registered
	ErrModelArity         = "E121" // vars count differs from model params
	ErrEndpointCount      = "E122" // endpoint method given an explicit n
)

// ValidationError represents a problem validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ModelResolver reports the parameter count of a named model.
// ok is false if no model of that name exists.
type ModelResolver func(name string) (arity int, ok bool)

// ValidateOption configures Validate.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	resolve ModelResolver
}

// WithModels enables the model existence and arity checks (E120, E121).
func WithModels(resolve ModelResolver) ValidateOption {
	return func(c *validateConfig) {
		c.resolve = resolve
	}
}

// Validate checks a compiled problem against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(p *ir.Problem, opts ...ValidateOption) []ValidationError {
	cfg := validateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var errs []ValidationError
	errs = append(errs, validateQuantities(p.Quantities)...)
	errs = append(errs, validatePropagation(p, cfg)...)
	return errs
}

func validateQuantities(qs []ir.Quantity) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, q := range qs {
		sym := q.Symbol()
		if strings.TrimSpace(sym) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("quantity[%d].symbol", i),
				Message: fmt.Sprintf("quantity %q has no symbol", q.Name()),
				Code:    ErrQuantityNoSymbol,
			})
			continue
		}
		if seen[sym] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("quantity.%s", sym),
				Message: fmt.Sprintf("duplicate quantity symbol: %q", sym),
				Code:    ErrDuplicateQuantity,
			})
		}
		seen[sym] = true
	}
	return errs
}

func validatePropagation(p *ir.Problem, cfg validateConfig) []ValidationError {
	var errs []ValidationError
	prop := p.Propagation

	if strings.TrimSpace(prop.Model) == "" {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: "model is required",
			Code:    ErrMissingModel,
		})
	} else if cfg.resolve != nil {
		arity, ok := cfg.resolve(prop.Model)
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				Field:   "model",
				Message: fmt.Sprintf("unknown model %q", prop.Model),
				Code:    ErrUnknownModel,
			})
		case arity > 0 && arity != len(prop.Inputs):
			errs = append(errs, ValidationError{
				Field:   "vars",
				Message: fmt.Sprintf("model %q takes %d inputs, vars lists %d", prop.Model, arity, len(prop.Inputs)),
				Code:    ErrModelArity,
			})
		}
	}

	if len(prop.Inputs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "vars",
			Message: "at least one input is required",
			Code:    ErrNoInputs,
		})
	}

	used := make(map[string]bool)
	for i, ref := range prop.Inputs {
		field := fmt.Sprintf("vars[%d]", i)
		q, ok := p.Lookup(ref)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q does not name a declared quantity", ref),
				Code:    ErrUnknownInput,
			})
			continue
		}
		if used[q.Symbol()] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("quantity %q listed more than once", ref),
				Code:    ErrDuplicateInput,
			})
		}
		used[q.Symbol()] = true

		if !q.Essence().Propagatable() {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("quantity %q has essence %q, which cannot be propagated", ref, q.Essence()),
				Code:    ErrUnsupportedEssence,
			})
		}
	}

	if prop.Method != "" {
		if _, ok := ir.ParseMethod(string(prop.Method)); !ok {
			errs = append(errs, ValidationError{
				Field:   "method",
				Message: fmt.Sprintf("unknown method %q, must be one of %v", prop.Method, ir.ValidMethods),
				Code:    ErrUnknownMethod,
			})
		}
	}
	if prop.Method == ir.MethodEndpoint && prop.N > 0 {
		errs = append(errs, ValidationError{
			Field:   "n",
			Message: "endpoint method evaluates the 2^k vertices and ignores n",
			Code:    ErrEndpointCount,
		})
	}

	if prop.N < 0 {
		errs = append(errs, ValidationError{
			Field:   "n",
			Message: fmt.Sprintf("n must be non-negative, got %d", prop.N),
			Code:    ErrNegativeCount,
		})
	}
	if prop.Workers < 0 {
		errs = append(errs, ValidationError{
			Field:   "workers",
			Message: fmt.Sprintf("workers must be non-negative, got %d", prop.Workers),
			Code:    ErrNegativeWorkers,
		})
	}
	if prop.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: fmt.Sprintf("timeout must be non-negative, got %s", prop.Timeout),
			Code:    ErrNegativeTimeout,
		})
	}
	if prop.SaveRawData && strings.TrimSpace(prop.BasePath) == "" {
		errs = append(errs, ValidationError{
			Field:   "base_path",
			Message: "save_raw_data requires base_path",
			Code:    ErrMissingBasePath,
		})
	}

	return errs
}
