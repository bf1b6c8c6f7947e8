package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/domain"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
)

// ParamConfirmedActionID marks a resubmitted call as pre-approved: it
// names the AgentAction the user already confirmed, so the dispatcher
// executes instead of raising another dialog.
const ParamConfirmedActionID = "confirmed_action_id"

var entities = []domain.EntityType{
	domain.EntityProduct,
	domain.EntityFeature,
	domain.EntityRequirement,
	domain.EntityRelease,
	domain.EntityRoadmap,
}

// Functions returns the tool definitions offered to the assistant, one
// per operation and entity kind.
func Functions() []provider.FunctionDefinition {
	var defs []provider.FunctionDefinition
	for _, entity := range entities {
		e := string(entity)
		defs = append(defs,
			provider.FunctionDefinition{
				Name:        fmt.Sprintf("create_%s", e),
				Description: fmt.Sprintf("Create a new %s in the workspace. Requires user confirmation.", e),
				Parameters:  createSchema(),
			},
			provider.FunctionDefinition{
				Name:        fmt.Sprintf("update_%s", e),
				Description: fmt.Sprintf("Update an existing %s by id. Requires user confirmation.", e),
				Parameters:  updateSchema(),
			},
			provider.FunctionDefinition{
				Name:        fmt.Sprintf("delete_%s", e),
				Description: fmt.Sprintf("Delete a %s by id. Requires user confirmation.", e),
				Parameters:  idSchema(),
			},
			provider.FunctionDefinition{
				Name:        fmt.Sprintf("get_%s", e),
				Description: fmt.Sprintf("Fetch one %s by id.", e),
				Parameters:  idSchema(),
			},
			provider.FunctionDefinition{
				Name:        fmt.Sprintf("list_%ss", e),
				Description: fmt.Sprintf("List all %ss in the workspace.", e),
				Parameters:  emptySchema(),
			},
		)
	}
	return defs
}

func createSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":               map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"status":             map[string]any{"type": "string"},
			ParamConfirmedActionID: map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	}
}

func updateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":                 map[string]any{"type": "string"},
			"name":               map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"status":             map[string]any{"type": "string"},
			ParamConfirmedActionID: map[string]any{"type": "string"},
		},
		"required": []any{"id"},
	}
}

func idSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":                 map[string]any{"type": "string"},
			ParamConfirmedActionID: map[string]any{"type": "string"},
		},
		"required": []any{"id"},
	}
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func schemaFor(functionName string) (map[string]any, error) {
	op, _, err := action.ParseFunction(functionName)
	if err != nil {
		return nil, err
	}
	switch op {
	case action.OpCreate:
		return createSchema(), nil
	case action.OpUpdate:
		return updateSchema(), nil
	case action.OpDelete, action.OpGet:
		return idSchema(), nil
	case action.OpList:
		return emptySchema(), nil
	}
	return nil, featlyErrors.Validation("unknown function " + functionName)
}

// validateParams checks the call parameters against the function's
// schema. Type mismatches and missing required fields are reported with
// the offending field name so the model can self-correct.
func validateParams(functionName string, params json.RawMessage) (map[string]any, error) {
	schema, err := schemaFor(functionName)
	if err != nil {
		return nil, err
	}

	decoded := map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &decoded); err != nil {
			return nil, featlyErrors.Validation("parameters are not a JSON object: " + err.Error())
		}
	}

	if required, ok := schema["required"].([]any); ok {
		var missing []string
		for _, field := range required {
			name, ok := field.(string)
			if !ok {
				continue
			}
			if _, exists := decoded[name]; !exists {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, featlyErrors.Validation("missing required field: " + missing[0])
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, value := range decoded {
		propSchema, defined := properties[key]
		if !defined {
			// Extra fields pass through to the domain layer untouched.
			continue
		}
		prop, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}
		if err := validateType(key, prop, value); err != nil {
			return nil, err
		}
	}
	return decoded, nil
}

func validateType(field string, schema map[string]any, value any) error {
	expected, ok := schema["type"].(string)
	if !ok || value == nil {
		return nil
	}
	switch expected {
	case "string":
		if _, ok := value.(string); !ok {
			return featlyErrors.Validation(fmt.Sprintf("field %s expects string, got %T", field, value))
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return featlyErrors.Validation(fmt.Sprintf("field %s expects number, got %T", field, value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return featlyErrors.Validation(fmt.Sprintf("field %s expects boolean, got %T", field, value))
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return featlyErrors.Validation(fmt.Sprintf("field %s expects array, got %T", field, value))
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return featlyErrors.Validation(fmt.Sprintf("field %s expects object, got %T", field, value))
		}
	}
	return nil
}
