package ledger

import (
	"context"
	"encoding/json"
)

// scanDocuments matches selector against every live non-composite key.
func scanDocuments(ctx context.Context, b Backend, selector map[string]string) ([]Versioned, error) {
	all, err := b.Range(ctx, "", "")
	if err != nil {
		return nil, err
	}
	out := []Versioned{}
	for _, e := range all {
		if IsCompositeKey(e.Key) {
			continue
		}
		if MatchDocument(e.Value, selector) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MatchDocument reports whether value is a JSON object whose top-level
// string fields equal every selector entry.
func MatchDocument(value []byte, selector map[string]string) bool {
	if len(value) == 0 || value[0] != '{' {
		return false
	}
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return false
	}
	for field, want := range selector {
		got, ok := doc[field].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
