package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/open-edge-platform/artifactory-fetch/internal/config/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const configSchemaName = "artifactory-fetch-config.schema.json"

// Validator holds a JSON schema that is compiled once, on first use, and
// shared afterwards.
type Validator struct {
	name    string
	compile func() (*jsonschema.Schema, error)
}

// NewValidator returns a Validator for schemaBytes. The name identifies the
// schema in errors.
func NewValidator(name string, schemaBytes []byte) *Validator {
	return &Validator{
		name: name,
		compile: sync.OnceValues(func() (*jsonschema.Schema, error) {
			return compileSchema(name, schemaBytes)
		}),
	}
}

// Validate runs the schema against an already decoded document.
func (v *Validator) Validate(doc interface{}) error {
	sch, err := v.compile()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation against %q failed: %w", v.name, err)
	}
	return nil
}

// ValidateJSON decodes data and runs the schema against it.
func (v *Validator) ValidateJSON(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", v.name, err)
	}
	return v.Validate(doc)
}

func compileSchema(name string, schemaBytes []byte) (*jsonschema.Schema, error) {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, bytes.NewReader(schemaBytes)); err != nil {
		return nil, fmt.Errorf("loading schema %q: %w", name, err)
	}
	sch, err := comp.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %q: %w", name, err)
	}
	return sch, nil
}

// ValidateAgainstSchema compiles the given schema bytes and runs it against
// the JSON in data. Use a Validator for schemas checked repeatedly.
func ValidateAgainstSchema(name string, schemaBytes, data []byte) error {
	return NewValidator(name, schemaBytes).ValidateJSON(data)
}

var configValidator = NewValidator(configSchemaName, schema.ConfigSchema)

// ValidateConfigJSON runs the global config schema against data
func ValidateConfigJSON(data []byte) error {
	return configValidator.ValidateJSON(data)
}
