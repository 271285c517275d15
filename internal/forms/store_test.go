package forms

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"metaform-backend/internal/config"
	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	types := fieldtype.NewRegistry()
	if err := fieldtype.RegisterBuiltins(types); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return NewStore(db, types)
}

func TestCreateAndGetForm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateForm(ctx, "person", "People facts", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	got, err := s.GetForm(ctx, "person")
	if err != nil {
		t.Fatalf("get form: %v", err)
	}
	if got.ID != created.ID || got.Name != "person" || got.Description != "People facts" {
		t.Fatalf("unexpected form: %+v", got)
	}
}

func TestGetFormNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetForm(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateFormDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateForm(ctx, "person", "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateForm(ctx, "person", "", "")
	if !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestCreateFormRejectsBadCheckExpr(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateForm(context.Background(), "person", "", "values.age >=")
	if !errors.Is(err, fieldtype.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAddFieldUnknownType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	_, err = s.AddField(ctx, form.ID, FieldDef{Name: "x", Type: "no_such_type"})
	if !errors.Is(err, fieldtype.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("rejected field was persisted: %v", fields)
	}
}

func TestAddFieldInvalidConfigPersistsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	// A choice field with no choices is rejected before any write.
	_, err = s.AddField(ctx, form.ID, FieldDef{Name: "country", Type: fieldtype.TypeChoice})
	if !errors.Is(err, fieldtype.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("rejected field was persisted: %v", fields)
	}
}

func TestListFieldsOrderedByPositionThenInsertion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	// Same position: insertion order breaks the tie.
	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.AddField(ctx, form.ID, FieldDef{Name: name, Type: fieldtype.TypeSingleLineText}); err != nil {
			t.Fatalf("add field %s: %v", name, err)
		}
	}
	if _, err := s.AddField(ctx, form.ID, FieldDef{Name: "header", Type: fieldtype.TypeSingleLineText, Position: -1}); err != nil {
		t.Fatalf("add field header: %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	got := fieldNames(fields)
	want := []string{"header", "first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestReorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id, err := s.AddField(ctx, form.ID, FieldDef{Name: name, Type: fieldtype.TypeSingleLineText})
		if err != nil {
			t.Fatalf("add field %s: %v", name, err)
		}
		ids = append(ids, id)
	}

	if err := s.Reorder(ctx, form.ID, []string{ids[2], ids[0], ids[1]}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	got := fieldNames(fields)
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestReorderUnknownFieldRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	aID, err := s.AddField(ctx, form.ID, FieldDef{Name: "a", Type: fieldtype.TypeSingleLineText})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	if _, err := s.AddField(ctx, form.ID, FieldDef{Name: "b", Type: fieldtype.TypeSingleLineText}); err != nil {
		t.Fatalf("add field: %v", err)
	}

	err = s.Reorder(ctx, form.ID, []string{"bogus-id", aID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	got := fieldNames(fields)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("order changed despite failed reorder: %v", got)
	}
}

func TestDuplicateSeqRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	insert := func(id string) error {
		pb := s.db.Dialect.NewParamBuilder()
		sqlStr := "INSERT INTO _fields (id, form_id, name, type, seq) VALUES (" +
			pb.Add(id) + ", " + pb.Add(form.ID) + ", " + pb.Add("f") + ", " +
			pb.Add(fieldtype.TypeSingleLineText) + ", " + pb.Add(1) + ")"
		_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
		return s.db.Dialect.MapError(err)
	}

	if err := insert("field-1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// The same seq within a form must be rejected so AddField can detect
	// the race and retry.
	if err := insert("field-2"); !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestChoicesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	choices := []fieldtype.Choice{
		{Value: "UK", Display: "United Kingdom"},
		{Value: "FR", Display: "France"},
	}
	_, err = s.AddField(ctx, form.ID, FieldDef{
		Name:   "country",
		Type:   fieldtype.TypeChoice,
		Config: fieldtype.Config{Choices: choices},
	})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if !reflect.DeepEqual(fields[0].Config.Choices, choices) {
		t.Fatalf("choices = %v, want %v", fields[0].Config.Choices, choices)
	}
}

func TestRequiredFlagSurvivesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if _, err := s.AddField(ctx, form.ID, FieldDef{Name: "age", Type: fieldtype.TypeInteger, Required: true}); err != nil {
		t.Fatalf("add field: %v", err)
	}

	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 1 || !fields[0].Required {
		t.Fatalf("required flag lost: %+v", fields)
	}
}

func TestDeleteFormCascadesToFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if _, err := s.AddField(ctx, form.ID, FieldDef{Name: "age", Type: fieldtype.TypeInteger}); err != nil {
		t.Fatalf("add field: %v", err)
	}

	if err := s.DeleteForm(ctx, "person"); err != nil {
		t.Fatalf("delete form: %v", err)
	}

	if _, err := s.GetForm(ctx, "person"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("form still present: %v", err)
	}
	fields, err := s.ListFields(ctx, form.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("fields survived form delete: %v", fields)
	}
}

func TestDeleteFormNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteForm(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	form, err := s.CreateForm(ctx, "person", "", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	id, err := s.AddField(ctx, form.ID, FieldDef{Name: "age", Type: fieldtype.TypeInteger})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}

	if err := s.RemoveField(ctx, id); err != nil {
		t.Fatalf("remove field: %v", err)
	}
	if err := s.RemoveField(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func fieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
