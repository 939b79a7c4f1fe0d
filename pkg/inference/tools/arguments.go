package tools

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ConvenienceKey is the single-value key some providers use to wrap a
// positional argument inside a mapping.
const ConvenienceKey = "__arg1"

// Input is a normalized tool argument list: either one positional string or a
// set of keyword arguments.
type Input struct {
	Positional string
	Keyword    map[string]any
}

func (in Input) IsKeyword() bool {
	return in.Keyword != nil
}

// String returns the keyword argument name as a string, or the positional
// argument when the call was positional.
func (in Input) String(name string) (string, error) {
	if !in.IsKeyword() {
		return in.Positional, nil
	}
	v, ok := in.Keyword[name]
	if !ok {
		return "", errors.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("argument %q must be a string, got %T", name, v)
	}
	return s, nil
}

// NormalizeArguments maps raw request arguments onto an Input:
//
//  1. a mapping containing ConvenienceKey becomes the positional string of the wrapped value
//  2. any other mapping becomes keyword arguments
//  3. anything else becomes a positional string
func NormalizeArguments(raw any) Input {
	switch v := raw.(type) {
	case nil:
		return Input{}
	case string:
		return Input{Positional: v}
	case map[string]any:
		if wrapped, ok := v[ConvenienceKey]; ok {
			return Input{Positional: scalarString(wrapped)}
		}
		kw := make(map[string]any, len(v))
		for k, val := range v {
			kw[k] = val
		}
		return Input{Keyword: kw}
	case map[string]string:
		if wrapped, ok := v[ConvenienceKey]; ok {
			return Input{Positional: wrapped}
		}
		kw := make(map[string]any, len(v))
		for k, val := range v {
			kw[k] = val
		}
		return Input{Keyword: kw}
	default:
		return Input{Positional: scalarString(v)}
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case json.RawMessage:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	}
}
