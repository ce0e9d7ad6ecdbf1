package nodes

import (
	"errors"
	"fmt"
)

// Category classifies a node type's behavior.
type Category string

const (
	CategoryBroker Category = "broker" // publish to a message broker
	CategoryFile   Category = "file"   // transfer a file/object
	CategoryAPI    Category = "api"    // call an HTTP API
	CategoryPlugin Category = "plugin" // third-party installed node type
)

var validCategories = map[Category]bool{
	CategoryBroker: true,
	CategoryFile:   true,
	CategoryAPI:    true,
	CategoryPlugin: true,
}

var (
	// ErrInvalidDefinition marks a node definition document that fails
	// schema validation.
	ErrInvalidDefinition = errors.New("invalid node definition")

	// ErrNotLoaded is returned by lookups before an explicit Load.
	ErrNotLoaded = errors.New("node catalog not loaded")

	// ErrNotFound is returned when no definition has the requested id.
	ErrNotFound = errors.New("node definition not found")
)

// Definition describes one workflow node type: its identity, category and
// declared configuration schema. Immutable after load.
type Definition struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Category     Category       `yaml:"category" json:"category"`
	ConfigSchema map[string]any `yaml:"config_schema" json:"config_schema"`
	SourceFile   string         `yaml:"-" json:"source_file,omitempty"`
}

// Validate checks a definition against the fixed admission schema.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if !validCategories[d.Category] {
		return fmt.Errorf("%w: unknown category %q for node %s", ErrInvalidDefinition, d.Category, d.ID)
	}
	if len(d.ConfigSchema) == 0 {
		return fmt.Errorf("%w: config_schema is required for node %s", ErrInvalidDefinition, d.ID)
	}
	return nil
}
