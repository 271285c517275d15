// Package schema turns an ordered list of field definitions into a runtime
// validator. Schemas are recompiled per request from the current definitions;
// compilation is cheap, deterministic and side-effect free.
package schema

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/forms"
)

// ErrorDetail is one per-field validation failure. Failures accumulate
// across all fields so a single validation pass reports every problem.
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

type compiledField struct {
	def  forms.Field
	desc *fieldtype.Descriptor
	rule fieldtype.Rule
}

// Schema is the compiled validator for one form's current field list.
type Schema struct {
	FormName string
	fields   []compiledField
	check    *vm.Program
	checkSrc string
}

// Compile builds a Schema from a form and its ordered fields. Each field's
// type descriptor is resolved and its rule closure built once; a form-level
// check expression, if present, is compiled here so malformed expressions
// surface before any validation runs.
func Compile(reg *fieldtype.Registry, form *forms.Form, fields []forms.Field) (*Schema, error) {
	s := &Schema{FormName: form.Name, checkSrc: form.CheckExpr}

	for _, f := range fields {
		desc, err := reg.Resolve(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		rule, err := desc.NewRule(f.Config)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		s.fields = append(s.fields, compiledField{def: f, desc: desc, rule: rule})
	}

	if form.CheckExpr != "" {
		prog, err := expr.Compile(form.CheckExpr, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: check expression: %v", fieldtype.ErrInvalidConfig, err)
		}
		s.check = prog
	}
	return s, nil
}

// Validate checks raw submitted values against every field rule in position
// order and returns the canonical values plus all accumulated failures.
//
//   - A missing required field records a "required" failure; so does a
//     required field submitted as an empty string or empty list.
//   - A missing or explicitly-null optional field produces no entry.
//   - A present value that fails its rule records an "invalid" failure.
//   - Keys not matching any field name are ignored (schema evolution policy).
//
// The submission is valid iff the returned details slice is empty.
func (s *Schema) Validate(raw map[string]any) (map[string]any, []ErrorDetail) {
	validated := make(map[string]any)
	var details []ErrorDetail

	for _, cf := range s.fields {
		name := cf.def.Name
		value, present := raw[name]
		if !present || value == nil {
			if cf.def.Required {
				details = append(details, ErrorDetail{
					Field:   name,
					Rule:    "required",
					Message: "this field is required",
				})
			}
			continue
		}

		canonical, err := cf.rule(value)
		if err != nil {
			details = append(details, ErrorDetail{
				Field:   name,
				Rule:    "invalid",
				Message: err.Error(),
			})
			continue
		}
		// An empty string or empty list counts as missing for a required
		// field, even though the value itself is well-formed.
		if cf.def.Required && isEmptyValue(canonical) {
			details = append(details, ErrorDetail{
				Field:   name,
				Rule:    "required",
				Message: "this field is required",
			})
			continue
		}
		validated[name] = canonical
	}

	// The cross-field check only runs on otherwise valid submissions.
	if len(details) == 0 && s.check != nil {
		env := map[string]any{"values": validated}
		result, err := expr.Run(s.check, env)
		if err != nil {
			details = append(details, ErrorDetail{
				Rule:    "check",
				Message: fmt.Sprintf("check expression error: %v", err),
			})
		} else if ok, _ := result.(bool); !ok {
			details = append(details, ErrorDetail{
				Rule:    "check",
				Message: fmt.Sprintf("submission violates form check: %s", s.checkSrc),
			})
		}
	}

	return validated, details
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// Fields returns the compiled field definitions in validation order.
func (s *Schema) Fields() []forms.Field {
	out := make([]forms.Field, len(s.fields))
	for i, cf := range s.fields {
		out[i] = cf.def
	}
	return out
}

// Descriptor returns the type descriptor for the named field, used by the
// persistence layer to encode values. Duplicate field names are allowed; the
// last definition wins, matching Validate, where later rules overwrite the
// canonical value for a shared name.
func (s *Schema) Descriptor(name string) (*fieldtype.Descriptor, bool) {
	var found *fieldtype.Descriptor
	for _, cf := range s.fields {
		if cf.def.Name == name {
			found = cf.desc
		}
	}
	return found, found != nil
}
