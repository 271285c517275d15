package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/store"
)

// Store persists form and field definitions.
type Store struct {
	db    *store.Store
	types *fieldtype.Registry
}

func NewStore(db *store.Store, types *fieldtype.Registry) *Store {
	return &Store{db: db, types: types}
}

// CreateForm creates an empty form. The check expression, if any, must
// compile; a malformed expression is a definition-time error.
func (s *Store) CreateForm(ctx context.Context, name, description, checkExpr string) (*Form, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: form name is required", fieldtype.ErrInvalidConfig)
	}
	if checkExpr != "" {
		if _, err := expr.Compile(checkExpr, expr.AsBool()); err != nil {
			return nil, fmt.Errorf("%w: check expression: %v", fieldtype.ErrInvalidConfig, err)
		}
	}

	form := &Form{ID: uuid.New().String(), Name: name, Description: description, CheckExpr: checkExpr}

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _forms (id, name, description, check_expr) VALUES (%s, %s, %s, %s)",
		pb.Add(form.ID), pb.Add(form.Name), pb.Add(form.Description), pb.Add(form.CheckExpr))
	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return nil, s.db.Dialect.MapError(err)
	}
	return form, nil
}

// GetForm looks a form up by name.
func (s *Store) GetForm(ctx context.Context, name string) (*Form, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"SELECT id, name, description, check_expr FROM _forms WHERE name = %s", pb.Add(name))
	row, err := store.QueryRow(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return formFromRow(row), nil
}

// ListForms returns all forms ordered by name.
func (s *Store) ListForms(ctx context.Context) ([]Form, error) {
	rows, err := store.QueryRows(ctx, s.db.DB,
		"SELECT id, name, description, check_expr FROM _forms ORDER BY name")
	if err != nil {
		return nil, err
	}
	forms := make([]Form, 0, len(rows))
	for _, row := range rows {
		forms = append(forms, *formFromRow(row))
	}
	return forms, nil
}

// DeleteForm removes a form; fields and their choices cascade. Metadata
// rows are keyed by field name only and are deliberately left untouched.
func (s *Store) DeleteForm(ctx context.Context, name string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _forms WHERE name = %s", pb.Add(name))
	affected, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// addFieldRetries bounds the seq collision retries under concurrent inserts.
const addFieldRetries = 3

// AddField validates the definition against its field type and persists the
// field plus its choice list in one transaction. Nothing is persisted when
// the type is unknown or the configuration is rejected.
func (s *Store) AddField(ctx context.Context, formID string, def FieldDef) (string, error) {
	desc, err := s.types.Resolve(def.Type)
	if err != nil {
		return "", err
	}
	// Building the rule runs every type-level config check.
	if _, err := desc.NewRule(def.Config); err != nil {
		return "", err
	}

	// Choices live in their own table; the config blob keeps the rest.
	stripped := def.Config
	choices := stripped.Choices
	stripped.Choices = nil
	cfgJSON, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	// Two concurrent inserts into the same form can compute the same seq;
	// the UNIQUE(form_id, seq) constraint rejects the loser, which retries
	// with a fresh snapshot.
	for attempt := 0; ; attempt++ {
		fieldID, err := s.insertField(ctx, formID, def, choices, string(cfgJSON))
		if err == nil {
			return fieldID, nil
		}
		if errors.Is(err, store.ErrUniqueViolation) && attempt < addFieldRetries {
			continue
		}
		return "", err
	}
}

func (s *Store) insertField(ctx context.Context, formID string, def FieldDef, choices []fieldtype.Choice, cfgJSON string) (string, error) {
	fieldID := uuid.New().String()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _fields (id, form_id, name, type, label, required, position, config, seq)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s,
		         (SELECT COALESCE(MAX(f.seq), 0) + 1 FROM _fields f WHERE f.form_id = %s))`,
		pb.Add(fieldID), pb.Add(formID), pb.Add(def.Name), pb.Add(def.Type), pb.Add(def.Label),
		pb.Add(def.Required), pb.Add(def.Position), pb.Add(cfgJSON), pb.Add(formID))
	if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
		return "", s.db.Dialect.MapError(err)
	}

	for i, c := range choices {
		cpb := s.db.Dialect.NewParamBuilder()
		cSQL := fmt.Sprintf(
			"INSERT INTO _choices (id, field_id, value, display, position) VALUES (%s, %s, %s, %s, %s)",
			cpb.Add(uuid.New().String()), cpb.Add(fieldID), cpb.Add(c.Value), cpb.Add(c.Display), cpb.Add(i))
		if _, err := store.Exec(ctx, tx, cSQL, cpb.Params()...); err != nil {
			return "", s.db.Dialect.MapError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return fieldID, nil
}

// RemoveField deletes a field definition; its choices cascade.
func (s *Store) RemoveField(ctx context.Context, fieldID string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _fields WHERE id = %s", pb.Add(fieldID))
	affected, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Reorder rewrites field positions to match the given id order. Every id
// must belong to the form; the whole reorder is one transaction.
func (s *Store) Reorder(ctx context.Context, formID string, orderedFieldIDs []string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, id := range orderedFieldIDs {
		pb := s.db.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf("UPDATE _fields SET position = %s WHERE id = %s AND form_id = %s",
			pb.Add(i), pb.Add(id), pb.Add(formID))
		affected, err := store.Exec(ctx, tx, sqlStr, pb.Params()...)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("reorder: field %s not found in form: %w", id, store.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListFields returns a form's fields ordered by position, insertion order
// breaking ties. The order is stable and deterministic.
func (s *Store) ListFields(ctx context.Context, formID string) ([]Field, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`SELECT id, form_id, name, type, label, required, position, config
		 FROM _fields WHERE form_id = %s ORDER BY position, seq`, pb.Add(formID))
	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	if s.db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, []string{"required"})
	}

	fields := make([]Field, 0, len(rows))
	for _, row := range rows {
		f, err := fieldFromRow(row)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}

	if err := s.loadChoices(ctx, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Store) loadChoices(ctx context.Context, fields []Field) error {
	byID := make(map[string]*Field, len(fields))
	ids := make([]any, 0, len(fields))
	for i := range fields {
		desc, err := s.types.Resolve(fields[i].Type)
		if err != nil || !desc.SupportsChoices {
			continue
		}
		byID[fields[i].ID] = &fields[i]
		ids = append(ids, fields[i].ID)
	}
	if len(ids) == 0 {
		return nil
	}

	pb := s.db.Dialect.NewParamBuilder()
	cond := s.db.Dialect.InExpr("field_id", pb, ids)
	sqlStr := fmt.Sprintf(
		"SELECT field_id, value, display FROM _choices WHERE %s ORDER BY field_id, position", cond)
	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	for _, row := range rows {
		f := byID[asStr(row["field_id"])]
		if f == nil {
			continue
		}
		f.Config.Choices = append(f.Config.Choices, fieldtype.Choice{
			Value:   asStr(row["value"]),
			Display: asStr(row["display"]),
		})
	}
	return nil
}

func formFromRow(row map[string]any) *Form {
	return &Form{
		ID:          asStr(row["id"]),
		Name:        asStr(row["name"]),
		Description: asStr(row["description"]),
		CheckExpr:   asStr(row["check_expr"]),
	}
}

func fieldFromRow(row map[string]any) (*Field, error) {
	f := &Field{
		ID:       asStr(row["id"]),
		FormID:   asStr(row["form_id"]),
		Name:     asStr(row["name"]),
		Type:     asStr(row["type"]),
		Label:    asStr(row["label"]),
		Position: asInt(row["position"]),
	}
	if b, ok := row["required"].(bool); ok {
		f.Required = b
	}
	if cfgRaw := asStr(row["config"]); cfgRaw != "" {
		if err := json.Unmarshal([]byte(cfgRaw), &f.Config); err != nil {
			return nil, fmt.Errorf("field %s: decode config: %w", f.ID, err)
		}
	}
	return f, nil
}

func asStr(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
