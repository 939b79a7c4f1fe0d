package tools

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateArguments checks keyword arguments against the tool's parameter schema.
// Tools without a schema accept anything.
func ValidateArguments(desc ToolDescriptor, args map[string]any) error {
	if desc.Parameters == nil {
		return nil
	}
	schema := *desc.Parameters
	schema.Version = ""
	schema.ID = ""
	schemaJSON, err := json.Marshal(&schema)
	if err != nil {
		return errors.Wrap(err, "encode parameter schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return errors.Wrap(err, "validate arguments")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}
