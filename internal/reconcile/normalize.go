// Package reconcile repairs structural drift in stored template documents
// and migrates legacy data. It runs as an operator batch, never on the
// request path.
package reconcile

import (
	"encoding/json"
	"fmt"

	"daygrid/api/internal/store"
)

var canonicalKeys = []string{
	"masterChecklist",
	"habitBreakChecklist",
	"workoutChecklist",
	"timeBlocks",
}

// NormalizeTemplateDocument rewrites a stored template content document
// into canonical shape. Two kinds of drift are repaired:
//
//   - Wrapper documents: some rows carry the whole template row serialized
//     into the content column, with the real content nested under a
//     "content" key and stale duplicates of the checklists at top level.
//     The nested fields win; the duplicates are dropped.
//   - Missing or null canonical fields, which become empty arrays.
//
// The function is pure. It reports changed=false and returns the input
// untouched when the document is already canonical.
func NormalizeTemplateDocument(raw []byte) ([]byte, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("parse template document: %w", err)
	}

	var nested map[string]json.RawMessage
	hasWrapper := false
	if inner, ok := doc["content"]; ok && len(inner) > 0 && inner[0] == '{' {
		if err := json.Unmarshal(inner, &nested); err == nil {
			hasWrapper = true
		}
	}

	needsRewrite := hasWrapper
	for key := range doc {
		if !isCanonicalKey(key) {
			needsRewrite = true
		}
	}
	for _, key := range canonicalKeys {
		v, ok := doc[key]
		if !ok || string(v) == "null" {
			needsRewrite = true
		}
	}
	if !needsRewrite {
		return raw, false, nil
	}

	pick := func(key string) json.RawMessage {
		if hasWrapper {
			if v, ok := nested[key]; ok && string(v) != "null" {
				return v
			}
		}
		if v, ok := doc[key]; ok && string(v) != "null" {
			return v
		}
		return json.RawMessage("[]")
	}

	merged, err := json.Marshal(map[string]json.RawMessage{
		"masterChecklist":     pick("masterChecklist"),
		"habitBreakChecklist": pick("habitBreakChecklist"),
		"workoutChecklist":    pick("workoutChecklist"),
		"timeBlocks":          pick("timeBlocks"),
	})
	if err != nil {
		return nil, false, fmt.Errorf("merge template document: %w", err)
	}

	// Round-trip through the typed form so field order and item shape come
	// out identical to what the write path produces.
	var content store.TemplateContent
	if err := json.Unmarshal(merged, &content); err != nil {
		return nil, false, fmt.Errorf("template document does not match schema: %w", err)
	}
	normalized, err := json.Marshal(content)
	if err != nil {
		return nil, false, err
	}
	return normalized, true, nil
}

func isCanonicalKey(key string) bool {
	for _, k := range canonicalKeys {
		if key == k {
			return true
		}
	}
	return false
}
