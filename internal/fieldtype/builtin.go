package fieldtype

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Builtin type identifiers.
const (
	TypeBoolean        = "boolean"
	TypeSingleLineText = "single_line_text"
	TypeMultiLineText  = "multi_line_text"
	TypeEmail          = "email"
	TypeIPv4           = "ipv4"
	TypeRegex          = "regex"
	TypeSlug           = "slug"
	TypeURL            = "url"
	TypeInteger        = "integer"
	TypeFloat          = "float"
	TypeChoice         = "choice"
	TypeMultipleChoice = "multiple_choice"
	TypeDate           = "date"
	TypeDateTime       = "datetime"
	TypeTime           = "time"
	TypeUUID           = "uuid"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339Nano
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	slugPattern  = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
)

// RegisterBuiltins registers every builtin field type. Call once at startup.
func RegisterBuiltins(r *Registry) error {
	for _, d := range builtins() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func builtins() []*Descriptor {
	return []*Descriptor{
		booleanType(),
		textType(TypeSingleLineText, nil, ""),
		textType(TypeMultiLineText, nil, ""),
		textType(TypeEmail, emailPattern, "must be a valid email address"),
		ipv4Type(),
		regexType(),
		textType(TypeSlug, slugPattern, "must contain only letters, numbers, hyphens and underscores"),
		urlType(),
		integerType(),
		floatType(),
		choiceType(),
		multipleChoiceType(),
		dateType(TypeDate, dateLayout),
		dateType(TypeDateTime, dateTimeLayout),
		timeType(),
		uuidType(),
	}
}

// --- rule helpers ---

// toFloat64 converts numeric types to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("must be a string")
	}
	return s, nil
}

func checkMaxLength(s string, cfg Config) error {
	if cfg.MaxLength > 0 && len(s) > cfg.MaxLength {
		return fmt.Errorf("must be at most %d characters", cfg.MaxLength)
	}
	return nil
}

// --- codec helpers ---

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(b), nil
}

func decodeInto[T any](s string) (any, error) {
	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// --- type descriptors ---

func booleanType() *Descriptor {
	d := &Descriptor{ID: TypeBoolean}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			b, ok := v.(bool)
			if !ok {
				return nil, errors.New("must be true or false")
			}
			return b, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[bool]
	return d
}

// textType covers plain text fields and text fields constrained by a fixed
// pattern (email, slug). A nil pattern means any string.
func textType(id string, pattern *regexp.Regexp, msg string) *Descriptor {
	d := &Descriptor{ID: id}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			if err := checkMaxLength(s, cfg); err != nil {
				return nil, err
			}
			if pattern != nil && !pattern.MatchString(s) {
				return nil, errors.New(msg)
			}
			return s, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

// regexType validates against a per-field pattern from configuration.
func regexType() *Descriptor {
	d := &Descriptor{ID: TypeRegex}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		if cfg.Pattern == "" {
			return nil, fmt.Errorf("%w: regex field requires a pattern", ErrInvalidConfig)
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q: %v", ErrInvalidConfig, cfg.Pattern, err)
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			if err := checkMaxLength(s, cfg); err != nil {
				return nil, err
			}
			if !re.MatchString(s) {
				return nil, fmt.Errorf("must match pattern %s", cfg.Pattern)
			}
			return s, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

func ipv4Type() *Descriptor {
	d := &Descriptor{ID: TypeIPv4}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			ip := net.ParseIP(s)
			if ip == nil || ip.To4() == nil {
				return nil, errors.New("must be a valid IPv4 address")
			}
			return s, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

func urlType() *Descriptor {
	d := &Descriptor{ID: TypeURL}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, errors.New("must be a valid URL")
			}
			return s, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

func integerType() *Descriptor {
	d := &Descriptor{ID: TypeInteger}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		if err := checkBounds(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			f, ok := toFloat64(v)
			if !ok || f != float64(int64(f)) {
				return nil, errors.New("must be an integer")
			}
			n := int64(f)
			if cfg.Min != nil && f < *cfg.Min {
				return nil, fmt.Errorf("must be at least %d", int64(*cfg.Min))
			}
			if cfg.Max != nil && f > *cfg.Max {
				return nil, fmt.Errorf("must be at most %d", int64(*cfg.Max))
			}
			return n, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[int64]
	return d
}

func floatType() *Descriptor {
	d := &Descriptor{ID: TypeFloat}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		if err := checkBounds(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			f, ok := toFloat64(v)
			if !ok {
				return nil, errors.New("must be a number")
			}
			if cfg.Min != nil && f < *cfg.Min {
				return nil, fmt.Errorf("must be at least %g", *cfg.Min)
			}
			if cfg.Max != nil && f > *cfg.Max {
				return nil, fmt.Errorf("must be at most %g", *cfg.Max)
			}
			return f, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[float64]
	return d
}

func choiceType() *Descriptor {
	d := &Descriptor{ID: TypeChoice, SupportsChoices: true}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		allowed := choiceSet(cfg.Choices)
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			if !allowed[s] {
				return nil, fmt.Errorf("%q is not a valid choice", s)
			}
			return s, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

func multipleChoiceType() *Descriptor {
	d := &Descriptor{ID: TypeMultipleChoice, SupportsChoices: true}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		allowed := choiceSet(cfg.Choices)
		return func(v any) (any, error) {
			items, err := asStringSlice(v)
			if err != nil {
				return nil, err
			}
			// Validated subset preserves submitted order.
			out := make([]string, 0, len(items))
			for _, s := range items {
				if !allowed[s] {
					return nil, fmt.Errorf("%q is not a valid choice", s)
				}
				out = append(out, s)
			}
			return out, nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[[]string]
	return d
}

func choiceSet(choices []Choice) map[string]bool {
	set := make(map[string]bool, len(choices))
	for _, c := range choices {
		set[c.Value] = true
	}
	return set
}

func asStringSlice(v any) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("must be a list of strings")
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.New("must be a list of strings")
	}
}

// dateType covers date and datetime fields; canonical values are time.Time.
func dateType(id string, layout string) *Descriptor {
	d := &Descriptor{ID: id}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			switch t := v.(type) {
			case time.Time:
				return t, nil
			case string:
				parsed, err := time.Parse(layout, t)
				if err != nil {
					return nil, fmt.Errorf("must be a valid %s value (%s)", id, layout)
				}
				return parsed, nil
			default:
				return nil, fmt.Errorf("must be a valid %s value (%s)", id, layout)
			}
		}, nil
	}
	d.Encode = func(v any) (string, error) {
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("encode %s: expected time.Time, got %T", id, v)
		}
		return t.Format(layout), nil
	}
	d.Decode = func(s string) (any, error) {
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		return t, nil
	}
	return d
}

// timeType stores a time of day; canonical value is the "15:04:05" string.
func timeType() *Descriptor {
	d := &Descriptor{ID: TypeTime}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			if t, err := time.Parse("15:04:05", s); err == nil {
				return t.Format("15:04:05"), nil
			}
			if t, err := time.Parse("15:04", s); err == nil {
				return t.Format("15:04:05"), nil
			}
			return nil, errors.New("must be a valid time of day (HH:MM or HH:MM:SS)")
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}

func uuidType() *Descriptor {
	d := &Descriptor{ID: TypeUUID}
	d.NewRule = func(cfg Config) (Rule, error) {
		if err := d.checkChoices(cfg); err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			parsed, err := uuid.Parse(s)
			if err != nil {
				return nil, errors.New("must be a valid UUID")
			}
			return parsed.String(), nil
		}, nil
	}
	d.Encode = encodeJSON
	d.Decode = decodeInto[string]
	return d
}
