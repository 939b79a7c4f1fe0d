package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ToolFunc is the body of a tool. It receives normalized arguments and returns
// text that is fed back to the model.
type ToolFunc func(ctx context.Context, in Input) (string, error)

// ToolDescriptor describes a tool that can be requested by the model.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
	Func        ToolFunc           `json:"-"`
}

// NewTool builds a descriptor from a typed function. In must be a struct; its
// JSON schema is advertised to the model. A positional argument is assigned to
// the first exported string field of In.
func NewTool[In any](name, description string, fn func(context.Context, In) (string, error)) (ToolDescriptor, error) {
	inType := reflect.TypeOf((*In)(nil)).Elem()
	if inType.Kind() != reflect.Struct {
		return ToolDescriptor{}, errors.Errorf("tool %s: input type must be a struct, got %s", name, inType.Kind())
	}

	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(reflect.New(inType).Interface())
	if schema.Type == "" {
		schema.Type = "object"
	}
	schema.Version = ""
	schema.ID = ""

	positional := positionalField(inType)

	f := func(ctx context.Context, in Input) (string, error) {
		var v In
		if in.IsKeyword() {
			b, err := json.Marshal(in.Keyword)
			if err != nil {
				return "", errors.Wrap(err, "encode arguments")
			}
			if err := json.Unmarshal(b, &v); err != nil {
				return "", errors.Wrap(err, "decode arguments")
			}
			return fn(ctx, v)
		}
		if positional < 0 {
			return "", errors.New("tool does not accept a positional argument")
		}
		reflect.ValueOf(&v).Elem().Field(positional).SetString(in.Positional)
		return fn(ctx, v)
	}

	return ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Func:        f,
	}, nil
}

// MustNewTool panics if the descriptor cannot be built.
func MustNewTool[In any](name, description string, fn func(context.Context, In) (string, error)) ToolDescriptor {
	d, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return d
}

func positionalField(t reflect.Type) int {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.String {
			continue
		}
		if tag := f.Tag.Get("json"); strings.HasPrefix(tag, "-") && !strings.HasPrefix(tag, "-,") {
			continue
		}
		return i
	}
	return -1
}
