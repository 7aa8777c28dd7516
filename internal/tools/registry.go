// Package tools maps Responses tool declarations onto upstream function
// tools and back. Built-in tool types (apply_patch, shell, local_shell) and
// unknown external types are "virtualized": declared upstream as plain
// functions whose calls are translated back into typed Responses items.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// ReservedPrefix marks upstream function names owned by the bridge. Client
// tools may not use it; unknown external types are virtualized under it.
const ReservedPrefix = "ob_"

// Builtin is one virtualized built-in tool: a canonical upstream function
// name equal to its external type, plus the schema sent upstream.
type Builtin struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

var applyPatchParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"input": {
			"type": "string",
			"description": "The entire contents of the apply_patch command."
		}
	},
	"required": ["input"],
	"additionalProperties": false
}`)

var shellParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string"},
		"timeout_ms": {"type": "integer", "minimum": 0},
		"cwd": {"type": "string"}
	},
	"required": ["command"]
}`)

// genericParameters is the schema declared for unknown external tool types.
var genericParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"payload": {"type": "string"}
	},
	"required": ["payload"],
	"additionalProperties": false
}`)

// Registry is the process-wide catalog of virtualized built-ins. It is
// immutable after construction and read concurrently without locking.
type Registry struct {
	builtins map[string]Builtin
}

// Option configures registry construction.
type Option func(*Registry)

// WithBuiltin registers an extra virtualized built-in for an external tool
// type. An empty definition name defaults to the external type.
func WithBuiltin(externalType string, def Builtin) Option {
	return func(r *Registry) {
		if def.Name == "" {
			def.Name = externalType
		}
		r.builtins[externalType] = def
	}
}

// NewRegistry returns the registry with the standard built-ins plus any
// options. Every builtin parameter block must compile as a JSON Schema;
// drift in these package constants panics here rather than failing requests.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		builtins: map[string]Builtin{
			"apply_patch": {
				Name:        "apply_patch",
				Description: "Use the `apply_patch` tool to edit files. Return the entire apply_patch patch as a string in `input`.",
				Parameters:  applyPatchParameters,
			},
			"shell": {
				Name:        "shell",
				Description: "Return a shell command to run locally.",
				Parameters:  shellParameters,
			},
			"local_shell": {
				Name:        "local_shell",
				Description: "Return a shell command to run locally.",
				Parameters:  shellParameters,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	for externalType, b := range r.builtins {
		if err := ValidateSchema(b.Parameters); err != nil {
			panic(fmt.Sprintf("builtin %q parameters: %v", externalType, err))
		}
	}
	return r
}

// FunctionNameForExternalType returns the upstream function name an external
// type virtualizes to: the built-in canonical name, or the reserved prefix
// plus the type. The result is deterministic so replayed `*_call` items
// resolve the same name the declaration would.
func (r *Registry) FunctionNameForExternalType(externalType string) string {
	if b, ok := r.builtins[externalType]; ok {
		return b.Name
	}
	return ReservedPrefix + externalType
}

// DefinitionForExternalType returns the upstream declaration an external
// type virtualizes to: the built-in definition, or a generic payload schema
// under the reserved prefix.
func (r *Registry) DefinitionForExternalType(externalType string) openrouter.ChatTool {
	if b, ok := r.builtins[externalType]; ok {
		return openrouter.ChatTool{
			Type: "function",
			Function: openrouter.ChatToolFunction{
				Name:        b.Name,
				Description: b.Description,
				Parameters:  b.Parameters,
			},
		}
	}
	return openrouter.ChatTool{
		Type: "function",
		Function: openrouter.ChatToolFunction{
			Name:        ReservedPrefix + externalType,
			Description: fmt.Sprintf("Return a JSON payload for %s.", externalType),
			Parameters:  genericParameters,
		},
	}
}

// VirtualizeTools converts declared Responses tools into upstream function
// tools, recording virtualized names in a fresh ToolMap. Function tools keep
// their own names; built-ins use their canonical names; any other type is
// declared as a reserved-prefix function with a generic payload schema.
// Name collisions and reserved-prefix use fail before any upstream call.
func (r *Registry) VirtualizeTools(declared []api.Tool) ([]openrouter.ChatTool, *ToolMap, error) {
	toolMap := NewToolMap()
	chatTools := make([]openrouter.ChatTool, 0, len(declared))

	for _, tool := range declared {
		switch {
		case tool.Type == "function" || (tool.Type == "" && tool.Function != nil):
			chatTool, ok := normalizeFunctionTool(tool)
			if !ok {
				// Nameless function declarations carry nothing usable.
				continue
			}
			name := chatTool.Function.Name
			if strings.HasPrefix(name, ReservedPrefix) {
				return nil, nil, fmt.Errorf("function tool name must not start with reserved prefix %q: %q", ReservedPrefix, name)
			}
			if err := ValidateSchema(chatTool.Function.Parameters); err != nil {
				return nil, nil, fmt.Errorf("tool %q: %w", name, err)
			}
			if err := toolMap.declare(name, chatTool.Function.Parameters); err != nil {
				return nil, nil, err
			}
			chatTools = append(chatTools, chatTool)

		case tool.Type == "":
			return nil, nil, fmt.Errorf("tool declaration missing type")

		default:
			def := r.DefinitionForExternalType(tool.Type)
			if toolMap.Has(def.Function.Name) {
				return nil, nil, fmt.Errorf("tool name collision for external type %q", tool.Type)
			}
			if err := toolMap.declare(def.Function.Name, def.Function.Parameters); err != nil {
				return nil, nil, err
			}
			toolMap.mapExternal(tool.Type, def.Function.Name)
			chatTools = append(chatTools, def)
		}
	}

	return chatTools, toolMap, nil
}

// normalizeFunctionTool accepts both the flat {type,name,parameters} and the
// nested {type:"function",function:{...}} declaration shapes. The second
// result is false when the declaration names nothing.
func normalizeFunctionTool(tool api.Tool) (openrouter.ChatTool, bool) {
	name := tool.Name
	description := tool.Description
	parameters := tool.Parameters
	if tool.Function != nil {
		if name == "" {
			name = tool.Function.Name
		}
		if description == "" {
			description = tool.Function.Description
		}
		if len(parameters) == 0 {
			parameters = tool.Function.Parameters
		}
	}
	if name == "" {
		return openrouter.ChatTool{}, false
	}
	return openrouter.ChatTool{
		Type: "function",
		Function: openrouter.ChatToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}, true
}
