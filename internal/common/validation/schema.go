// Package validation checks job variables against the input schemas in the
// activity registry.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"certification-workers/internal/common/errors"
	"certification-workers/pkg/registry"

	"github.com/xeipuuv/gojsonschema"
)

// Validator holds one compiled input schema per task type. A nil Validator
// accepts everything.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewValidator(reg *registry.ActivityRegistry) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	if reg == nil {
		return v, nil
	}
	for _, activity := range reg.Activities {
		schema, err := registry.CompileSchema(activity.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("compile input schema for %s: %w", activity.TaskType, err)
		}
		if schema != nil {
			v.schemas[activity.TaskType] = schema
		}
	}
	return v, nil
}

// Load reads the registry at path and compiles its schemas.
func Load(path string) (*Validator, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load activity registry: %w", err)
	}
	return NewValidator(reg)
}

// ValidateInput returns a VALIDATION_FAILED error listing every schema
// violation. Task types without a registered schema always pass.
func (v *Validator) ValidateInput(taskType string, variables map[string]interface{}) error {
	if v == nil {
		return nil
	}
	schema, ok := v.schemas[taskType]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(variables))
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("schema validation error: %v", err))
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	sort.Strings(msgs)
	return errors.NewValidationError(strings.Join(msgs, "; "))
}

// Has reports whether taskType has a registered input schema.
func (v *Validator) Has(taskType string) bool {
	if v == nil {
		return false
	}
	_, ok := v.schemas[taskType]
	return ok
}
