package fieldtype

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustRule(t *testing.T, id string, cfg Config) Rule {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	desc, err := r.Resolve(id)
	if err != nil {
		t.Fatalf("resolve %s: %v", id, err)
	}
	rule, err := desc.NewRule(cfg)
	if err != nil {
		t.Fatalf("build rule for %s: %v", id, err)
	}
	return rule
}

func mustDescriptor(t *testing.T, id string) *Descriptor {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	desc, err := r.Resolve(id)
	if err != nil {
		t.Fatalf("resolve %s: %v", id, err)
	}
	return desc
}

func TestBooleanRule(t *testing.T) {
	rule := mustRule(t, TypeBoolean, Config{})
	v, err := rule(true)
	if err != nil || v != true {
		t.Fatalf("rule(true) = %v, %v", v, err)
	}
	if _, err := rule("yes"); err == nil {
		t.Fatal("expected string to be rejected")
	}
}

func TestTextRules(t *testing.T) {
	cases := []struct {
		typeID string
		ok     []string
		bad    []string
	}{
		{TypeSingleLineText, []string{"anything", ""}, nil},
		{TypeEmail, []string{"user@example.com"}, []string{"not-an-email", "a@b"}},
		{TypeSlug, []string{"my-slug_01"}, []string{"has space", "bad/slug"}},
		{TypeIPv4, []string{"192.168.1.1", "8.8.8.8"}, []string{"999.0.0.1", "::1", "nope"}},
		{TypeURL, []string{"https://example.com/x"}, []string{"example.com", "not a url"}},
	}
	for _, tc := range cases {
		rule := mustRule(t, tc.typeID, Config{})
		for _, s := range tc.ok {
			if v, err := rule(s); err != nil || v != s {
				t.Fatalf("%s: rule(%q) = %v, %v", tc.typeID, s, v, err)
			}
		}
		for _, s := range tc.bad {
			if _, err := rule(s); err == nil {
				t.Fatalf("%s: expected %q to be rejected", tc.typeID, s)
			}
		}
		if _, err := rule(42); err == nil {
			t.Fatalf("%s: expected non-string to be rejected", tc.typeID)
		}
	}
}

func TestMaxLength(t *testing.T) {
	rule := mustRule(t, TypeSingleLineText, Config{MaxLength: 3})
	if _, err := rule("abc"); err != nil {
		t.Fatalf("length at limit rejected: %v", err)
	}
	if _, err := rule("abcd"); err == nil {
		t.Fatal("expected over-limit string to be rejected")
	}
}

func TestRegexRule(t *testing.T) {
	rule := mustRule(t, TypeRegex, Config{Pattern: `^[A-Z]{2}\d{4}$`})
	if _, err := rule("AB1234"); err != nil {
		t.Fatalf("matching value rejected: %v", err)
	}
	if _, err := rule("ab1234"); err == nil {
		t.Fatal("expected non-matching value to be rejected")
	}
}

func TestRegexInvalidConfig(t *testing.T) {
	desc := mustDescriptor(t, TypeRegex)
	if _, err := desc.NewRule(Config{Pattern: `([`}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for bad pattern, got %v", err)
	}
	if _, err := desc.NewRule(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing pattern, got %v", err)
	}
}

func TestIntegerRule(t *testing.T) {
	min, max := 0.0, 150.0
	rule := mustRule(t, TypeInteger, Config{Min: &min, Max: &max})

	v, err := rule(float64(42))
	if err != nil {
		t.Fatalf("rule(42): %v", err)
	}
	if v != int64(42) {
		t.Fatalf("expected int64(42), got %T(%v)", v, v)
	}

	if _, err := rule(float64(-5)); err == nil {
		t.Fatal("expected value below min to be rejected")
	}
	if _, err := rule(float64(151)); err == nil {
		t.Fatal("expected value above max to be rejected")
	}
	if _, err := rule(3.14); err == nil {
		t.Fatal("expected fractional value to be rejected")
	}
	if _, err := rule("42"); err == nil {
		t.Fatal("expected string to be rejected")
	}
}

func TestFloatRule(t *testing.T) {
	min := 0.5
	rule := mustRule(t, TypeFloat, Config{Min: &min})
	v, err := rule(1.25)
	if err != nil || v != 1.25 {
		t.Fatalf("rule(1.25) = %v, %v", v, err)
	}
	if _, err := rule(0.25); err == nil {
		t.Fatal("expected value below min to be rejected")
	}
}

func TestBoundsInvalidConfig(t *testing.T) {
	min, max := 10.0, 1.0
	desc := mustDescriptor(t, TypeInteger)
	if _, err := desc.NewRule(Config{Min: &min, Max: &max}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for min > max, got %v", err)
	}
}

func TestChoiceRule(t *testing.T) {
	cfg := Config{Choices: []Choice{{Value: "UK"}, {Value: "FR", Display: "France"}}}
	rule := mustRule(t, TypeChoice, cfg)
	if v, err := rule("FR"); err != nil || v != "FR" {
		t.Fatalf("rule(FR) = %v, %v", v, err)
	}
	if _, err := rule("DE"); err == nil {
		t.Fatal("expected non-member value to be rejected")
	}
}

func TestChoiceConfigValidation(t *testing.T) {
	choiceDesc := mustDescriptor(t, TypeChoice)
	if _, err := choiceDesc.NewRule(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty choice list, got %v", err)
	}
	dup := Config{Choices: []Choice{{Value: "a"}, {Value: "a"}}}
	if _, err := choiceDesc.NewRule(dup); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for duplicate values, got %v", err)
	}

	textDesc := mustDescriptor(t, TypeSingleLineText)
	withChoices := Config{Choices: []Choice{{Value: "a"}}}
	if _, err := textDesc.NewRule(withChoices); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for choices on text type, got %v", err)
	}
}

func TestMultipleChoicePreservesOrder(t *testing.T) {
	cfg := Config{Choices: []Choice{{Value: "a"}, {Value: "b"}, {Value: "c"}}}
	rule := mustRule(t, TypeMultipleChoice, cfg)

	v, err := rule([]any{"c", "a"})
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if !reflect.DeepEqual(v, []string{"c", "a"}) {
		t.Fatalf("expected submitted order kept, got %v", v)
	}

	if _, err := rule([]any{"a", "z"}); err == nil {
		t.Fatal("expected non-member entry to be rejected")
	}
	if _, err := rule("a"); err == nil {
		t.Fatal("expected scalar to be rejected")
	}
}

func TestDateRule(t *testing.T) {
	rule := mustRule(t, TypeDate, Config{})
	v, err := rule("2026-08-31")
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	got, ok := v.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", v)
	}
	want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err := rule("31/08/2026"); err == nil {
		t.Fatal("expected wrong layout to be rejected")
	}
}

func TestTimeRule(t *testing.T) {
	rule := mustRule(t, TypeTime, Config{})
	if v, err := rule("09:30"); err != nil || v != "09:30:00" {
		t.Fatalf("rule(09:30) = %v, %v", v, err)
	}
	if v, err := rule("23:59:59"); err != nil || v != "23:59:59" {
		t.Fatalf("rule(23:59:59) = %v, %v", v, err)
	}
	if _, err := rule("25:00"); err == nil {
		t.Fatal("expected out-of-range hour to be rejected")
	}
}

func TestUUIDRule(t *testing.T) {
	rule := mustRule(t, TypeUUID, Config{})
	v, err := rule("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	// Canonical form is lowercase.
	if v != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("expected canonical lowercase form, got %v", v)
	}
	if _, err := rule("not-a-uuid"); err == nil {
		t.Fatal("expected invalid UUID to be rejected")
	}
}

func TestCodecRoundTrips(t *testing.T) {
	cases := []struct {
		typeID string
		value  any
	}{
		{TypeBoolean, true},
		{TypeSingleLineText, `quotes "and" newlines` + "\n"},
		{TypeInteger, int64(-7)},
		{TypeFloat, 2.5},
		{TypeMultipleChoice, []string{"b", "a"}},
		{TypeTime, "09:30:00"},
		{TypeUUID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	}
	for _, tc := range cases {
		desc := mustDescriptor(t, tc.typeID)
		encoded, err := desc.Encode(tc.value)
		if err != nil {
			t.Fatalf("%s: encode: %v", tc.typeID, err)
		}
		decoded, err := desc.Decode(encoded)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.typeID, err)
		}
		if !reflect.DeepEqual(decoded, tc.value) {
			t.Fatalf("%s: round trip %v -> %q -> %v", tc.typeID, tc.value, encoded, decoded)
		}
	}
}

func TestDateTimeCodecRoundTrip(t *testing.T) {
	desc := mustDescriptor(t, TypeDateTime)
	want := time.Date(2026, 8, 31, 14, 30, 0, 123456789, time.UTC)

	encoded, err := desc.Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := desc.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(time.Time)
	if !ok || !got.Equal(want) {
		t.Fatalf("round trip %v -> %q -> %v", want, encoded, decoded)
	}
}
