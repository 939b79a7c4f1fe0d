package serde

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/alfred/pkg/turns"
)

type document struct {
	Version int                `yaml:"version"`
	Turns   turns.Conversation `yaml:"turns"`
}

const currentVersion = 1

// ToYAML marshals a conversation into a versioned YAML document.
func ToYAML(c turns.Conversation) ([]byte, error) {
	return yaml.Marshal(document{Version: currentVersion, Turns: c})
}

// FromYAML unmarshals a conversation written by ToYAML.
func FromYAML(b []byte) (turns.Conversation, error) {
	var d document
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "decode conversation yaml")
	}
	if d.Version > currentVersion {
		return nil, errors.Errorf("unsupported conversation version %d", d.Version)
	}
	return d.Turns, nil
}

// ToJSON and FromJSON are used by session stores.
func ToJSON(c turns.Conversation) ([]byte, error) {
	if c == nil {
		c = turns.Conversation{}
	}
	return json.Marshal(c)
}

func FromJSON(b []byte) (turns.Conversation, error) {
	var c turns.Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "decode conversation json")
	}
	return c, nil
}

func SaveYAML(path string, c turns.Conversation) error {
	data, err := ToYAML(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadYAML(path string) (turns.Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(b)
}
