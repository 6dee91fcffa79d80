package llms

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Tool is a function the model may call during a response. Parameters is
// the JSON schema advertised to the model; Execute receives the raw
// arguments JSON the model produced.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	execute func(argumentsJSON string) (string, error)
}

// NewTool builds a Tool whose parameter schema is reflected from the
// argument struct type.
func NewTool[T any](name, description string, execute func(arguments T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var zero T
	var schema *jsonschema.Schema
	if t := reflect.TypeOf(zero); t != nil && t.Kind() == reflect.Ptr {
		schema = reflector.ReflectFromType(t.Elem())
	} else {
		schema = reflector.Reflect(zero)
	}
	schema.Version = ""

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		execute: func(argumentsJSON string) (string, error) {
			var arguments T
			if argumentsJSON != "" {
				if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
					return "", fmt.Errorf("failed to parse arguments for tool %q: %w", name, err)
				}
			}
			return execute(arguments)
		},
	}
}

func (t Tool) Execute(argumentsJSON string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no executor", t.Name)
	}
	return t.execute(argumentsJSON)
}

// ToolCall is a function-invocation request assembled from a model
// response.
type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments string

	// Response is filled in after the tool executes.
	Response string
}
