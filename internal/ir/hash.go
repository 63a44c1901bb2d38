package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainRule    = "dpmcheck/rule/v1"
	DomainCatalog = "dpmcheck/catalog/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func ruleObject(r *Rule) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"expression": r.Expression,
		"kind":       string(r.Kind),
		"provenance": string(r.Provenance),
		"table":      r.Table,
	}
}

// RuleHash identifies a rule by its id, expression and classification.
func RuleHash(r *Rule) (string, error) {
	canonical, err := MarshalCanonical(ruleObject(r))
	if err != nil {
		return "", fmt.Errorf("RuleHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRule, canonical), nil
}

// CatalogHash identifies a rule catalog. Order matters: rules execute in
// catalog order, so a reordered catalog is a different catalog.
func CatalogHash(rules []*Rule) (string, error) {
	arr := make([]any, len(rules))
	for i, r := range rules {
		arr[i] = ruleObject(r)
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("CatalogHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// MustCatalogHash is like CatalogHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCatalogHash(rules []*Rule) string {
	h, err := CatalogHash(rules)
	if err != nil {
		panic(err)
	}
	return h
}
