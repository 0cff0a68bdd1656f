package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuantity = "upbb/quantity/v1"
	DomainPlan     = "upbb/plan/v1"
	DomainRecord   = "upbb/record/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Key returns the content hash of a quantity.
// Two quantities have the same Key exactly when Equal reports true, which
// makes Key usable as a map key for de-duplicating shared inputs.
func (q Quantity) Key() string {
	canonical, err := MarshalCanonical(q)
	if err != nil {
		// Quantities are validated at construction; a zero Quantity still
		// marshals. Reaching here means a corrupted value.
		panic(fmt.Sprintf("Quantity.Key: %v", err))
	}
	return hashWithDomain(DomainQuantity, canonical)
}

// PlanHash identifies a partition plan: the inputs, method, n and seed.
// Identical plans always produce identical sample sequences.
func PlanHash(vars []Quantity, method Method, n int, seed uint64) (string, error) {
	obj := map[string]any{
		"inputs": vars,
		"method": method,
		"n":      n,
		"seed":   seed,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("PlanHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// RecordHash computes a content hash for an evaluation record. Non-finite
// and undefined values hash by kind and reason only.
func RecordHash(rec EvaluationRecord) (string, error) {
	outcome := map[string]any{
		"kind": rec.Outcome.Kind,
	}
	if rec.Outcome.Kind == OutcomeDefined {
		outcome["value"] = rec.Outcome.Value
	}
	if rec.Outcome.Reason != "" {
		outcome["reason"] = rec.Outcome.Reason
	}
	obj := map[string]any{
		"index":   rec.Index,
		"input":   rec.Input,
		"outcome": outcome,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RecordHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}
