package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolMap is the per-turn bijection between external tool types and the
// virtualized function names declared upstream, plus the parameter schema of
// every declared tool. Plain function tools occupy a name but carry no
// external mapping.
type ToolMap struct {
	functionToExternal map[string]string
	externalToFunction map[string]string
	schemas            map[string]json.RawMessage
}

// NewToolMap returns an empty map.
func NewToolMap() *ToolMap {
	return &ToolMap{
		functionToExternal: make(map[string]string),
		externalToFunction: make(map[string]string),
		schemas:            make(map[string]json.RawMessage),
	}
}

// NewToolMapFromFunctionMap rebuilds a map from its persisted form, the
// virtualized-name-to-external-type entries of a stored turn.
func NewToolMapFromFunctionMap(functions map[string]string) *ToolMap {
	tm := NewToolMap()
	for name, externalType := range functions {
		tm.functionToExternal[name] = externalType
		tm.externalToFunction[externalType] = name
		tm.schemas[name] = nil
	}
	return tm
}

// MergeFunctionMap folds the persisted entries of a prior turn into the map
// so tool calls replayed across turns still un-virtualize. Names declared by
// the current turn win.
func (tm *ToolMap) MergeFunctionMap(functions map[string]string) {
	for name, externalType := range functions {
		if tm.Has(name) {
			continue
		}
		tm.functionToExternal[name] = externalType
		tm.externalToFunction[externalType] = name
		tm.schemas[name] = nil
	}
}

// declare records a tool name, failing on duplicates.
func (tm *ToolMap) declare(name string, schema json.RawMessage) error {
	if _, exists := tm.schemas[name]; exists {
		return fmt.Errorf("duplicate tool name: %q", name)
	}
	tm.schemas[name] = schema
	return nil
}

// mapExternal links an external type to its virtualized function name.
func (tm *ToolMap) mapExternal(externalType, name string) {
	tm.functionToExternal[name] = externalType
	tm.externalToFunction[externalType] = name
}

// Has reports whether a function name is already declared.
func (tm *ToolMap) Has(name string) bool {
	_, ok := tm.schemas[name]
	return ok
}

// ExternalForFunction returns the external type behind a virtualized
// function name. Plain function tools return false.
func (tm *ToolMap) ExternalForFunction(name string) (string, bool) {
	externalType, ok := tm.functionToExternal[name]
	return externalType, ok
}

// FunctionForExternal returns the virtualized function name declared for an
// external type.
func (tm *ToolMap) FunctionForExternal(externalType string) (string, bool) {
	name, ok := tm.externalToFunction[externalType]
	return name, ok
}

// Schema returns the declared parameter schema for a function name.
func (tm *ToolMap) Schema(name string) (json.RawMessage, bool) {
	schema, ok := tm.schemas[name]
	return schema, ok && len(schema) > 0
}

// FunctionMap returns a copy of the virtualized-name-to-external-type
// entries, the shape persisted with a stored turn.
func (tm *ToolMap) FunctionMap() map[string]string {
	out := make(map[string]string, len(tm.functionToExternal))
	for name, externalType := range tm.functionToExternal {
		out[name] = externalType
	}
	return out
}

// ResolveUpstreamName translates an upstream tool-call name back to the
// Responses item shape: the external type and the `<type>_call` item type
// for virtualized tools, or a plain function_call otherwise.
func (tm *ToolMap) ResolveUpstreamName(name string) (itemType, externalType string) {
	if tm != nil {
		if ext, ok := tm.functionToExternal[name]; ok {
			return ext + "_call", ext
		}
	}
	return "function_call", ""
}

// IsCallItemType reports whether an input item type denotes a tool call
// (`function_call` or an external `*_call` variant).
func IsCallItemType(itemType string) bool {
	return itemType == "function_call" ||
		(strings.HasSuffix(itemType, "_call") && itemType != "_call")
}

// IsCallOutputItemType reports whether an input item type denotes a tool
// result (`function_call_output` or an external `*_call_output` variant).
func IsCallOutputItemType(itemType string) bool {
	return itemType == "function_call_output" ||
		(strings.HasSuffix(itemType, "_call_output") && itemType != "_call_output")
}

// ExternalTypeFromItemType strips the call suffixes from an item type:
// "shell_call" and "shell_call_output" both yield "shell". The second result
// is false for item types without a call suffix.
func ExternalTypeFromItemType(itemType string) (string, bool) {
	if ext, ok := strings.CutSuffix(itemType, "_call_output"); ok && ext != "" {
		return ext, true
	}
	if ext, ok := strings.CutSuffix(itemType, "_call"); ok && ext != "" {
		return ext, true
	}
	return "", false
}
