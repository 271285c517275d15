package forms

import "metaform-backend/internal/fieldtype"

// Form is a named, ordered collection of field definitions. Identity is the
// name; the id is internal storage identity.
type Form struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// CheckExpr is an optional cross-field expression evaluated against the
	// validated values; it must yield true for a submission to pass.
	CheckExpr string `json:"check_expr,omitempty"`
}

// Field is one typed, positioned definition within a form.
type Field struct {
	ID       string           `json:"id"`
	FormID   string           `json:"form_id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Label    string           `json:"label,omitempty"`
	Required bool             `json:"required"`
	Position int              `json:"position"`
	Config   fieldtype.Config `json:"config"`
}

// FieldDef is the input for adding a field to a form.
type FieldDef struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Label    string           `json:"label,omitempty"`
	Required bool             `json:"required"`
	Position int              `json:"position"`
	Config   fieldtype.Config `json:"config"`
}
