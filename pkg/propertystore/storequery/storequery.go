// Package storequery exposes a read-only JSON projection of a
// PropertyKind's entity/value table and lets a caller select a subset of
// it with a JSONPath expression, instead of walking the Go map directly.
package storequery

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/propertystore/pkg/propertystore"
)

// Stringify renders a Property as a JSON-marshalable value. Kinds with
// structured properties supply their own; kinds whose Property is
// already a JSON-friendly scalar can pass a function that returns it
// unchanged.
type Stringify func(propertystore.Property) any

// Project builds a JSON document for kind k: one entry per entity
// currently known to store for that kind, keyed by the entity's string
// form.
func Project(store *propertystore.Store, k propertystore.PropertyKind, stringify Stringify) ([]byte, error) {
	snapshot := store.Snapshot(k)
	doc := make(map[string]any, len(snapshot))
	for _, v := range snapshot {
		key := fmt.Sprint(v.E)
		if !v.HasValue() {
			doc[key] = nil
			continue
		}
		doc[key] = map[string]any{
			"final": v.IsFinal(),
			"value": stringify(v.UB()),
		}
	}
	return json.Marshal(doc)
}

// QueryPath evaluates a JSONPath expression (e.g. "$..[?(@.final==true)]")
// against a projection produced by Project.
func QueryPath(doc []byte, expr string) (any, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("storequery: decode projection: %w", err)
	}
	result, err := jsonpath.Get(expr, v)
	if err != nil {
		return nil, fmt.Errorf("storequery: evaluate %q: %w", expr, err)
	}
	return result, nil
}

// QueryGJSON evaluates a gjson path expression directly against the raw
// projection bytes, for callers that only need a cheap single-field
// lookup and want to skip QueryPath's decode step.
func QueryGJSON(doc []byte, path string) gjson.Result {
	return gjson.GetBytes(doc, path)
}
