package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema marks an outgoing record that does not match its datasource
// schema. It is a programming defect, never a transient condition.
var ErrSchema = errors.New("schema mismatch")

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// SchemaError lists every field error of one record.
type SchemaError struct {
	Datasource string
	Errors     []FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("%s: datasource %q: %s", ErrSchema, e.Datasource, strings.Join(parts, "; "))
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ValidateRecord checks rec against the schema registered for datasource.
func ValidateRecord(datasource string, rec Record) error {
	s, ok := SchemaFor(datasource)
	if !ok {
		return &SchemaError{Datasource: datasource, Errors: []FieldError{{"datasource", "no schema registered"}}}
	}
	return s.Validate(rec)
}

// Validate performs strict checks: required fields, kinds, no unknown
// fields, and a type owned by the schema's family.
func (s *Schema) Validate(rec Record) error {
	var errs []FieldError

	for name, f := range s.Fields {
		if _, ok := rec[name]; !ok && f.Required {
			errs = append(errs, FieldError{name, "required"})
		}
	}

	for name, v := range rec {
		f, ok := s.Fields[name]
		if !ok {
			errs = append(errs, FieldError{name, "unknown field"})
			continue
		}
		if !f.Kind.accepts(v) {
			errs = append(errs, FieldError{name, fmt.Sprintf("expected %s, got %T", f.Kind, v)})
		}
	}

	if raw, ok := rec["type"].(string); ok {
		if fam, known := FamilyOf(EventType(raw)); !known {
			errs = append(errs, FieldError{"type", "unknown event type"})
		} else if fam != s.Family {
			errs = append(errs, FieldError{"type", fmt.Sprintf("belongs to family %s, not %s", fam, s.Family)})
		}
	}

	if len(errs) > 0 {
		sortFieldErrors(errs)
		return &SchemaError{Datasource: s.Name, Errors: errs}
	}
	return nil
}
