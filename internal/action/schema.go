package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed search_tool_schema.json
var searchToolSchemaJSON string

//go:embed retrieve_tool_schema.json
var retrieveToolSchemaJSON string

var (
	compileOnce   sync.Once
	toolSchemas   map[string]*jsonschema.Schema
	compileErr    error
)

// toolSchema returns the compiled schema for a known tool name, compiling
// every schema exactly once on first use.
func toolSchema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		toolSchemas = make(map[string]*jsonschema.Schema, 2)
		sources := map[string]string{
			"search":   searchToolSchemaJSON,
			"retrieve": retrieveToolSchemaJSON,
		}
		for tool, src := range sources {
			compiler := jsonschema.NewCompiler()
			res := tool + "_tool_schema.json"
			if err := compiler.AddResource(res, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("add %s schema resource: %w", tool, err)
				return
			}
			schema, err := compiler.Compile(res)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", tool, err)
				return
			}
			toolSchemas[tool] = schema
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	schema, ok := toolSchemas[name]
	if !ok {
		return nil, fmt.Errorf("no schema registered for tool %q", name)
	}
	return schema, nil
}

// ValidateToolCall validates a ToolCall's Arguments against the compiled
// schema for its Name before a caller unmarshals them further. An unknown
// tool name is not a schema error here — dispatch sites already reject
// unrecognized names with their own observation text.
func ValidateToolCall(call ToolCall) error {
	schema, err := toolSchema(call.Name)
	if err != nil {
		return nil
	}
	var doc any
	if uerr := json.Unmarshal(call.Arguments, &doc); uerr != nil {
		return fmt.Errorf("tool_call arguments are not valid JSON: %w", uerr)
	}
	if verr := schema.Validate(doc); verr != nil {
		return fmt.Errorf("tool_call arguments do not match schema: %w", verr)
	}
	return nil
}
