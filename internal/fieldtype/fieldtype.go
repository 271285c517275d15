package fieldtype

import (
	"errors"
	"fmt"
)

var ErrDuplicateType = errors.New("field type already registered")
var ErrUnknownType = errors.New("unknown field type")
var ErrInvalidConfig = errors.New("invalid field configuration")

// Choice is one selectable option of a choice or multiple-choice field.
type Choice struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// Config carries the per-field configuration a definition stores alongside
// its type tag. Only the keys relevant to the type are consulted; the rule
// builder rejects configuration that makes no sense for its type.
type Config struct {
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Choices   []Choice `json:"choices,omitempty"`
}

// Rule validates a raw submitted value and returns its canonical form.
// The error message is what the caller surfaces next to the field.
type Rule func(value any) (any, error)

// Descriptor defines one field type: how to build a validation rule from a
// field's configuration, and how its canonical values round-trip through
// the persistence layer.
type Descriptor struct {
	ID              string
	SupportsChoices bool

	// NewRule builds the validation closure for one field definition.
	// It fails with ErrInvalidConfig when the configuration is malformed.
	NewRule func(cfg Config) (Rule, error)

	// Encode converts a canonical value to its stored text form.
	Encode func(v any) (string, error)

	// Decode converts the stored text form back to the canonical value.
	Decode func(s string) (any, error)
}

func (d *Descriptor) checkChoices(cfg Config) error {
	if !d.SupportsChoices {
		if len(cfg.Choices) > 0 {
			return fmt.Errorf("%w: type %s does not accept choices", ErrInvalidConfig, d.ID)
		}
		return nil
	}
	if len(cfg.Choices) == 0 {
		return fmt.Errorf("%w: type %s requires at least one choice", ErrInvalidConfig, d.ID)
	}
	seen := make(map[string]bool, len(cfg.Choices))
	for _, c := range cfg.Choices {
		if seen[c.Value] {
			return fmt.Errorf("%w: duplicate choice value %q", ErrInvalidConfig, c.Value)
		}
		seen[c.Value] = true
	}
	return nil
}

func checkBounds(cfg Config) error {
	if cfg.Min != nil && cfg.Max != nil && *cfg.Min > *cfg.Max {
		return fmt.Errorf("%w: min %g greater than max %g", ErrInvalidConfig, *cfg.Min, *cfg.Max)
	}
	return nil
}
