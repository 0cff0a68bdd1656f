// Package models is the registry of named black-box functions that problem
// definitions can reference by name.
//
// A propagation problem is data (CUE), but the function under study is
// code. The registry bridges the two: a problem says
// model: "cantilever_beam_deflection" and the CLI resolves it here.
package models

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/upbb/internal/ir"
)

// ErrDuplicateModel is returned when registering a name twice.
var ErrDuplicateModel = errors.New("models: duplicate model name")

// ErrUnknownModel is returned by Spec for an unregistered name.
var ErrUnknownModel = errors.New("models: unknown model")

// Model is a named black-box function with its expected inputs.
type Model struct {
	Name        string
	Description string

	// Params lists the conventional input symbols, in call order.
	Params []string

	// Units of the output value.
	Units string

	Fn ir.Func
}

// Spec returns the FunctionSpec the evaluator invokes.
func (m Model) Spec() ir.FunctionSpec {
	return ir.FunctionSpec{
		Name:   m.Name,
		Params: append([]string(nil), m.Params...),
		Fn:     m.Fn,
	}
}

// Registry maps model names to models.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds m. Returns ErrDuplicateModel (wrapped) if the name is taken.
func (r *Registry) Register(m Model) error {
	if m.Name == "" {
		return fmt.Errorf("models: model has no name")
	}
	if m.Fn == nil {
		return fmt.Errorf("models: model %q has no function", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[m.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name)
	}
	r.models[m.Name] = m
	return nil
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Spec returns the FunctionSpec of the named model.
func (r *Registry) Spec(name string) (ir.FunctionSpec, error) {
	m, ok := r.Lookup(name)
	if !ok {
		return ir.FunctionSpec{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownModel, name, r.Names())
	}
	return m.Spec(), nil
}

// Arity reports the parameter count of the named model.
// It has the shape of compiler.ModelResolver.
func (r *Registry) Arity(name string) (int, bool) {
	m, ok := r.Lookup(name)
	return len(m.Params), ok
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the registry holding the built-in models.
var Default = NewRegistry()

func init() {
	for _, m := range builtins() {
		if err := Default.Register(m); err != nil {
			panic(err)
		}
	}
}

// Lookup returns a model from the Default registry.
func Lookup(name string) (Model, bool) {
	return Default.Lookup(name)
}

// Names returns the Default registry's model names.
func Names() []string {
	return Default.Names()
}
