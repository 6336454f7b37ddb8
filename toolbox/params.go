package toolbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/martinemde/taskrouter/agentloop"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, which is what the model sees.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// schemaFor reflects the JSON schema of a parameter struct into the plain
// map form carried by agentloop.ToolDescriptor.
func schemaFor[T any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	b, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// bind decodes an action input into T and validates it. Raw text input is
// handed to fromRaw, which maps it onto the tool's primary parameter.
func bind[T any](input agentloop.ActionInput, fromRaw func(string) T) (T, error) {
	var p T
	switch {
	case input.IsStructured():
		if err := input.Decode(&p); err != nil {
			return p, fmt.Errorf("decode parameters: %w", err)
		}
	case fromRaw != nil:
		p = fromRaw(strings.TrimSpace(input.Raw))
	}
	if err := validate.Struct(p); err != nil {
		return p, describeValidation(err)
	}
	return p, nil
}

func describeValidation(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "url", "http_url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		case "gte", "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "lte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func failure(format string, args ...any) agentloop.ToolOutcome {
	return agentloop.ToolOutcome{Success: false, Error: fmt.Sprintf(format, args...)}
}
