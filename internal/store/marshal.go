package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/upbb/internal/ir"
)

// marshalInput converts a sample point to canonical JSON TEXT for storage.
func marshalInput(pt ir.SamplePoint) (string, error) {
	data, err := ir.MarshalCanonical(pt)
	if err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}
	return string(data), nil
}

// unmarshalInput parses a stored sample point.
func unmarshalInput(data string) (ir.SamplePoint, error) {
	var pt ir.SamplePoint
	if err := json.Unmarshal([]byte(data), &pt); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	return pt, nil
}

// marshalVariables converts the ordered inputs to canonical JSON TEXT.
func marshalVariables(vars []ir.Quantity) (string, error) {
	data, err := ir.MarshalCanonical(vars)
	if err != nil {
		return "", fmt.Errorf("marshal variables: %w", err)
	}
	return string(data), nil
}

// storedQuantity mirrors the canonical quantity encoding.
type storedQuantity struct {
	Name    string    `json:"name"`
	Symbol  string    `json:"symbol"`
	Units   string    `json:"units"`
	Essence string    `json:"essence"`
	Params  []float64 `json:"params"`
}

// unmarshalVariables rebuilds quantities, re-validating each payload.
func unmarshalVariables(data string) ([]ir.Quantity, error) {
	var stored []storedQuantity
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	vars := make([]ir.Quantity, 0, len(stored))
	for i, sq := range stored {
		essence, err := ir.ParseEssence(sq.Essence)
		if err != nil {
			return nil, fmt.Errorf("unmarshal variables[%d]: %w", i, err)
		}
		q, err := ir.New(sq.Name, sq.Symbol, sq.Units, essence, sq.Params)
		if err != nil {
			return nil, fmt.Errorf("unmarshal variables[%d]: %w", i, err)
		}
		vars = append(vars, q)
	}
	return vars, nil
}

// marshalResult converts a result to JSON TEXT.
func marshalResult(res ir.Result) (string, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalResult parses a stored result.
func unmarshalResult(data string) (ir.Result, error) {
	var res ir.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return ir.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return res, nil
}
