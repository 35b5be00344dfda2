// Package kindscript lets a PropertyKind's Fallback or ResolveCycle be
// expressed as a small ECMAScript snippet evaluated in a goja VM instead
// of a Go-compiled constant, for kinds whose default value is a
// deployment-tunable policy.
package kindscript

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/R3E-Network/propertystore/pkg/propertystore"
)

// Decode turns the value an ECMAScript entry point returned into a
// concrete Property. Callers own this translation since only they know
// the target PropertyKind's concrete Property type.
type Decode func(raw any) (propertystore.Property, error)

// Scripted holds the two optional script bodies for a single
// PropertyKind, each defining a top-level function matching its entry
// point name ("fallback" or "resolveCycle").
type Scripted struct {
	FallbackScript     string
	ResolveCycleScript string
	Decode             Decode
}

// RunFallback evaluates FallbackScript's fallback(input) function for e.
func (s *Scripted) RunFallback(e propertystore.Entity) (propertystore.Property, error) {
	return s.run(s.FallbackScript, "fallback", map[string]any{
		"entity": fmt.Sprint(e),
	})
}

// RunResolveCycle evaluates ResolveCycleScript's resolveCycle(input)
// function for current's entity. The script's input carries only the
// entity (as a string) and whether a value is on file, not the bound
// pair itself.
func (s *Scripted) RunResolveCycle(current propertystore.EOptionP) (propertystore.Property, error) {
	return s.run(s.ResolveCycleScript, "resolveCycle", map[string]any{
		"entity":   fmt.Sprint(current.E),
		"hasValue": current.HasValue(),
	})
}

// run executes script in a fresh VM — one per call, for isolation
// between concurrent Fallback/ResolveCycle invocations on different
// entities — and decodes the entry point's return value.
func (s *Scripted) run(script, entryPoint string, input map[string]any) (propertystore.Property, error) {
	if script == "" {
		return nil, fmt.Errorf("kindscript: no %s script configured", entryPoint)
	}
	if s.Decode == nil {
		return nil, fmt.Errorf("kindscript: no Decode function configured")
	}

	vm := goja.New()
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("kindscript: set input: %w", err)
	}
	if _, err := vm.RunString(script); err != nil {
		return nil, fmt.Errorf("kindscript: load script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entryPoint))
	if !ok {
		return nil, fmt.Errorf("kindscript: entry point %q is not a function", entryPoint)
	}
	result, err := fn(goja.Undefined(), vm.Get("input"))
	if err != nil {
		return nil, fmt.Errorf("kindscript: call %s: %w", entryPoint, err)
	}
	return s.Decode(result.Export())
}
