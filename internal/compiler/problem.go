package compiler

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/upbb/internal/ir"
)

// CompileProblems parses a CUE value holding quantity and propagation
// declarations into one Problem per propagation.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The expected shape is:
//
//	quantity: L: {
//		name:   "beam length"
//		units:  "m"
//		bounds: [9.95, 10.05]
//	}
//	propagation: deflection: {
//		model:  "cantilever_beam_deflection"
//		vars:   ["L", "I", "F", "E"]
//		method: "subinterval"
//	}
//
// Every Problem shares the full quantity list in declaration order.
func CompileProblems(v cue.Value) ([]ir.Problem, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	quantities, err := compileQuantities(v)
	if err != nil {
		return nil, err
	}

	propsVal := v.LookupPath(cue.ParsePath("propagation"))
	if !propsVal.Exists() {
		return nil, &CompileError{
			Field:   "propagation",
			Message: "at least one propagation is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var problems []ir.Problem
	for iter.Next() {
		spec, err := CompilePropagation(iter.Value())
		if err != nil {
			return nil, err
		}
		name := iter.Label()
		if spec.Output.Name == "" {
			spec.Output.Name = name
		}
		problems = append(problems, ir.Problem{
			Name:        name,
			Quantities:  quantities,
			Propagation: *spec,
		})
	}
	if len(problems) == 0 {
		return nil, &CompileError{
			Field:   "propagation",
			Message: "at least one propagation is required",
			Pos:     propsVal.Pos(),
		}
	}
	return problems, nil
}

// CompileFile compiles a single CUE problem file.
func CompileFile(path string) ([]ir.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProblems(v)
}

// Select returns the problem with the given name. An empty name selects
// the only problem, and is an error when there are several.
func Select(problems []ir.Problem, name string) (ir.Problem, error) {
	if name == "" {
		if len(problems) != 1 {
			names := make([]string, len(problems))
			for i, p := range problems {
				names[i] = p.Name
			}
			return ir.Problem{}, fmt.Errorf("%d propagations defined %v; select one", len(problems), names)
		}
		return problems[0], nil
	}
	for _, p := range problems {
		if p.Name == name {
			return p, nil
		}
	}
	return ir.Problem{}, fmt.Errorf("propagation %q not found", name)
}

// compileQuantities parses the optional quantity struct.
func compileQuantities(v cue.Value) ([]ir.Quantity, error) {
	qVal := v.LookupPath(cue.ParsePath("quantity"))
	if !qVal.Exists() {
		return nil, nil
	}

	iter, err := qVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var quantities []ir.Quantity
	for iter.Next() {
		q, err := CompileQuantity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		quantities = append(quantities, q)
	}
	return quantities, nil
}

// CompileQuantity parses one quantity declaration. The symbol defaults to
// label; essence defaults to interval.
//
// Scalars may give a single value instead of bounds:
//
//	quantity: g: { essence: "scalar", value: 9.81 }
func CompileQuantity(label string, v cue.Value) (ir.Quantity, error) {
	if err := v.Err(); err != nil {
		return ir.Quantity{}, formatCUEError(err)
	}

	symbol := label
	if s, ok, err := optionalString(v, "symbol"); err != nil {
		return ir.Quantity{}, err
	} else if ok {
		symbol = s
	}

	name, _, err := optionalString(v, "name")
	if err != nil {
		return ir.Quantity{}, err
	}
	if name == "" {
		name = symbol
	}
	units, _, err := optionalString(v, "units")
	if err != nil {
		return ir.Quantity{}, err
	}

	essence := ir.EssenceInterval
	if s, ok, err := optionalString(v, "essence"); err != nil {
		return ir.Quantity{}, err
	} else if ok {
		essence, err = ir.ParseEssence(s)
		if err != nil {
			return ir.Quantity{}, &CompileError{
				Field:   "essence",
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("essence")).Pos(),
			}
		}
	}

	var bounds []float64
	boundsVal := v.LookupPath(cue.ParsePath("bounds"))
	valueVal := v.LookupPath(cue.ParsePath("value"))
	switch {
	case boundsVal.Exists():
		bounds, err = floatList(boundsVal, "bounds")
		if err != nil {
			return ir.Quantity{}, err
		}
	case valueVal.Exists():
		f, err := valueVal.Float64()
		if err != nil {
			return ir.Quantity{}, formatCUEError(err)
		}
		bounds = []float64{f}
	default:
		return ir.Quantity{}, &CompileError{
			Field:   "bounds",
			Message: fmt.Sprintf("quantity %q requires bounds or value", symbol),
			Pos:     v.Pos(),
		}
	}

	q, err := ir.New(name, symbol, units, essence, bounds)
	if err != nil {
		pos := boundsVal.Pos()
		if !boundsVal.Exists() {
			pos = valueVal.Pos()
		}
		return ir.Quantity{}, &CompileError{
			Field:   "bounds",
			Message: err.Error(),
			Pos:     pos,
			Err:     err,
		}
	}
	return q, nil
}

// CompilePropagation parses one propagation request.
//
// The method string is kept verbatim (aliases resolved); an unknown method
// is reported by Validate and, if ignored, by the run itself.
func CompilePropagation(v cue.Value) (*ir.PropagationSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PropagationSpec{}

	model, ok, err := optionalString(v, "model")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{
			Field:   "model",
			Message: "model is required",
			Pos:     v.Pos(),
		}
	}
	spec.Model = model

	varsVal := v.LookupPath(cue.ParsePath("vars"))
	if !varsVal.Exists() {
		return nil, &CompileError{
			Field:   "vars",
			Message: "vars is required",
			Pos:     v.Pos(),
		}
	}
	list, err := varsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Inputs = []string{}
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Inputs = append(spec.Inputs, s)
	}

	if s, ok, err := optionalString(v, "method"); err != nil {
		return nil, err
	} else if ok {
		if m, known := ir.ParseMethod(s); known {
			spec.Method = m
		} else {
			spec.Method = ir.Method(s)
		}
	}

	if spec.N, err = optionalInt(v, "n"); err != nil {
		return nil, err
	}
	if spec.Workers, err = optionalInt(v, "workers"); err != nil {
		return nil, err
	}

	if seedVal := v.LookupPath(cue.ParsePath("seed")); seedVal.Exists() {
		seed, err := seedVal.Uint64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Seed = seed
	}

	if s, ok, err := optionalString(v, "timeout"); err != nil {
		return nil, err
	} else if ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, &CompileError{
				Field:   "timeout",
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("timeout")).Pos(),
			}
		}
		spec.Timeout = d
	}

	if saveVal := v.LookupPath(cue.ParsePath("save_raw_data")); saveVal.Exists() {
		save, err := saveVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.SaveRawData = save
	}
	if spec.BasePath, _, err = optionalString(v, "base_path"); err != nil {
		return nil, err
	}

	if outVal := v.LookupPath(cue.ParsePath("output")); outVal.Exists() {
		if spec.Output.Name, _, err = optionalString(outVal, "name"); err != nil {
			return nil, err
		}
		if spec.Output.Symbol, _, err = optionalString(outVal, "symbol"); err != nil {
			return nil, err
		}
		if spec.Output.Units, _, err = optionalString(outVal, "units"); err != nil {
			return nil, err
		}
	}

	return spec, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optionalInt(v cue.Value, field string) (int, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func floatList(v cue.Value, field string) ([]float64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []float64
	for iter.Next() {
		f, err := iter.Value().Float64()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "must be a list of numbers",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// CompileError is a problem definition error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error // Underlying domain error, if any
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying domain error, e.g. *ir.InvalidBoundsError.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
