package role

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Roles []Role `yaml:"roles"`
}

// LoadFile reads a YAML role catalog that replaces the built-in one.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("role: read %s: %w", path, err)
	}
	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("role: %s: %w", path, err)
	}
	return registry, nil
}

// Parse decodes and validates a YAML role catalog.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("role: parse catalog: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("role: catalog declares no roles")
	}
	return NewRegistry(file.Roles...)
}

// Marshal renders roles in the catalog file format.
func Marshal(roles []Role) ([]byte, error) {
	return yaml.Marshal(catalogFile{Roles: roles})
}
