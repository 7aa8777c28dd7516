package tools

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

// ValidateSchema checks that a client-supplied block (tool parameters, a
// text.format json_schema) is itself a valid JSON Schema. Compilation
// results are cached by schema text because clients resend the same
// declarations every turn.
func ValidateSchema(schema []byte) error {
	if len(schema) == 0 {
		return nil
	}
	key := string(schema)
	if _, ok := schemaCache.Load(key); ok {
		return nil
	}
	compiled, err := jsonschema.CompileString("inline.schema.json", key)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	schemaCache.Store(key, compiled)
	return nil
}
