package schema

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"github.com/lyzr/workflowengine/pkg/wferrors"
)

var dateTimeFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)

// Validate checks value against s and returns every violation found — it
// never stops at the first failure, per the spec's compile-time aggregation
// policy (also reused at runtime for task input/output checks).
func Validate(value interface{}, s *Schema) []wferrors.Violation {
	return validateAt(value, s, "$")
}

func validateAt(value interface{}, s *Schema, path string) []wferrors.Violation {
	if s.Kind == KindAny {
		return nil
	}

	if value == nil {
		return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch, Detail: "value is null"}}
	}

	switch s.Kind {
	case KindObject:
		return validateObject(value, s, path)
	case KindArray:
		return validateArray(value, s, path)
	case KindString:
		return validateString(value, s, path)
	case KindNumber:
		return validateNumber(value, s, path, false)
	case KindInteger:
		return validateNumber(value, s, path, true)
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch,
				Detail: fmt.Sprintf("expected boolean, got %T", value)}}
		}
		return nil
	}
	return nil
}

func validateObject(value interface{}, s *Schema, path string) []wferrors.Violation {
	m, ok := value.(map[string]interface{})
	if !ok {
		return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch,
			Detail: fmt.Sprintf("expected object, got %T", value)}}
	}

	var violations []wferrors.Violation

	for _, req := range s.Required {
		if _, present := m[req]; !present {
			violations = append(violations, wferrors.Violation{
				Path: path + "." + req, Kind: wferrors.ViolationMissingRequired,
				Detail: fmt.Sprintf("missing required property %q", req),
			})
		}
	}

	for name, propSchema := range s.Properties {
		v, present := m[name]
		if !present {
			continue
		}
		violations = append(violations, validateAt(v, propSchema, path+"."+name)...)
	}

	if s.Strict {
		for name := range m {
			if _, declared := s.Properties[name]; !declared {
				violations = append(violations, wferrors.Violation{
					Path: path + "." + name, Kind: wferrors.ViolationExtraProperty,
					Detail: fmt.Sprintf("property %q is not declared by a strict schema", name),
				})
			}
		}
	}

	return violations
}

func validateArray(value interface{}, s *Schema, path string) []wferrors.Violation {
	arr, ok := value.([]interface{})
	if !ok {
		return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch,
			Detail: fmt.Sprintf("expected array, got %T", value)}}
	}
	var violations []wferrors.Violation
	for i, item := range arr {
		violations = append(violations, validateAt(item, s.Items, fmt.Sprintf("%s[%d]", path, i))...)
	}
	return violations
}

func validateString(value interface{}, s *Schema, path string) []wferrors.Violation {
	str, ok := value.(string)
	if !ok {
		return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch,
			Detail: fmt.Sprintf("expected string, got %T", value)}}
	}

	var violations []wferrors.Violation

	if len(s.Enum) > 0 {
		found := false
		for _, e := range s.Enum {
			if e == str {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, wferrors.Violation{
				Path: path, Kind: wferrors.ViolationEnumMismatch,
				Detail: fmt.Sprintf("%q is not one of the allowed enum values", str),
			})
		}
	}

	if s.Format != "" {
		if err := validateFormat(str, s.Format); err != nil {
			violations = append(violations, wferrors.Violation{
				Path: path, Kind: wferrors.ViolationFormatMismatch, Detail: err.Error(),
			})
		}
	}

	return violations
}

// validateFormat implements the closed set of string formats by hand: no
// pack dependency exposes format validation against this schema's own
// descriptor shape (the pack's JSON-schema libraries validate full JSON
// Schema documents via reflection, a heavier and mismatched fit for this
// intentionally small subset) — see DESIGN.md.
func validateFormat(str, format string) error {
	switch format {
	case "email":
		if _, err := mail.ParseAddress(str); err != nil {
			return fmt.Errorf("%q is not a valid email address", str)
		}
	case "uri":
		u, err := url.Parse(str)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%q is not a valid URI", str)
		}
	case "date-time":
		if !dateTimeFormat.MatchString(str) {
			return fmt.Errorf("%q is not a valid RFC3339 date-time", str)
		}
		if _, err := time.Parse(time.RFC3339Nano, str); err != nil {
			return fmt.Errorf("%q is not a valid RFC3339 date-time: %v", str, err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

func validateNumber(value interface{}, s *Schema, path string, integer bool) []wferrors.Violation {
	num, ok := value.(float64)
	if !ok {
		label := "number"
		if integer {
			label = "integer"
		}
		return []wferrors.Violation{{Path: path, Kind: wferrors.ViolationTypeMismatch,
			Detail: fmt.Sprintf("expected %s, got %T", label, value)}}
	}

	var violations []wferrors.Violation

	if integer && num != float64(int64(num)) {
		violations = append(violations, wferrors.Violation{
			Path: path, Kind: wferrors.ViolationTypeMismatch,
			Detail: fmt.Sprintf("%v is not an integer", num),
		})
	}

	if s.Min != nil && num < *s.Min {
		violations = append(violations, wferrors.Violation{
			Path: path, Kind: wferrors.ViolationOutOfRange,
			Detail: fmt.Sprintf("%v is below minimum %v", num, *s.Min),
		})
	}
	if s.Max != nil && num > *s.Max {
		violations = append(violations, wferrors.Violation{
			Path: path, Kind: wferrors.ViolationOutOfRange,
			Detail: fmt.Sprintf("%v is above maximum %v", num, *s.Max),
		})
	}

	return violations
}
