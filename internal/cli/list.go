package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/models"
	"github.com/roach88/upbb/internal/partition"
)

// MethodInfo describes one partitioning method.
type MethodInfo struct {
	Name        ir.Method `json:"name"`
	DefaultN    int       `json:"default_n"`
	Sampled     bool      `json:"sampled"`
	Description string    `json:"description"`
}

// ModelInfo describes one registered model.
type ModelInfo struct {
	Name        string   `json:"name"`
	Params      []string `json:"params"`
	Units       string   `json:"units,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NewMethodsCommand creates the methods command.
func NewMethodsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "methods",
		Short:         "List partitioning methods",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputMethods(newFormatter(rootOpts, cmd), listMethods())
		},
	}
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "models",
		Short:         "List registered models",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputModels(newFormatter(rootOpts, cmd), listModels(models.Default))
		},
	}
}

func listMethods() []MethodInfo {
	methods := partition.Methods()
	out := make([]MethodInfo, len(methods))
	for i, m := range methods {
		out[i] = MethodInfo{
			Name:        m,
			DefaultN:    partition.DefaultN(m),
			Sampled:     m.Sampled(),
			Description: m.Describe(),
		}
	}
	return out
}

func listModels(r *models.Registry) []ModelInfo {
	names := r.Names()
	out := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		m, ok := r.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, ModelInfo{
			Name:        m.Name,
			Params:      m.Params,
			Units:       m.Units,
			Description: m.Description,
		})
	}
	return out
}

func outputMethods(formatter *OutputFormatter, methods []MethodInfo) error {
	if formatter.JSON() {
		return formatter.Success(methods)
	}
	for _, m := range methods {
		fmt.Fprintf(formatter.Writer, "%-16s %s", m.Name, m.Description)
		if m.DefaultN > 0 {
			fmt.Fprintf(formatter.Writer, " (default n=%d)", m.DefaultN)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

func outputModels(formatter *OutputFormatter, list []ModelInfo) error {
	if formatter.JSON() {
		return formatter.Success(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(formatter.Writer, "No models registered.")
		return nil
	}
	for _, m := range list {
		fmt.Fprintf(formatter.Writer, "%s(%s)", m.Name, strings.Join(m.Params, ", "))
		if m.Units != "" {
			fmt.Fprintf(formatter.Writer, " [%s]", m.Units)
		}
		fmt.Fprintln(formatter.Writer)
		if m.Description != "" {
			fmt.Fprintf(formatter.Writer, "  %s\n", m.Description)
		}
	}
	return nil
}
