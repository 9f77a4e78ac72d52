// Package toolparams validates a tool call's parameters against its
// ToolDescriptor's JSON Schema before the call reaches rate limiting or
// execution (spec §7's invalid_params policy: "LLM produced malformed tool
// arguments... Feed a structured error back to the LLM; retry allowed").
// Grounded on the teacher's pkg/pluginsdk/validation.go, which compiles and
// caches a github.com/santhosh-tekuri/jsonschema/v5 schema the same way.
package toolparams

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

func compile(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Validate checks params against schema (raw JSON Schema bytes). A nil or
// empty schema is treated as "anything goes" — not every registered tool
// declares one.
func Validate(schema []byte, params map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compile(schema)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode tool parameters: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode tool parameters: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("tool parameters invalid: %w", err)
	}
	return nil
}
