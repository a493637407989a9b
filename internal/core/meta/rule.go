package meta

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// =============================================================================
// Format Matchers
// =============================================================================

// Matchers are compiled once and only read afterwards.
var (
	// LettersOnly accepts ASCII letters.
	LettersOnly = regexp.MustCompile(`^[a-zA-Z]+$`)

	// WordCharacters accepts letters, digits and underscores, ignoring case.
	WordCharacters = regexp.MustCompile(`(?i)^\w+$`)
)

// =============================================================================
// Checks
// =============================================================================

// Check verifies the format of a present value. On success it returns the
// value as it is written into the environment.
type Check func(value any) (string, bool)

// MatchPattern returns a Check accepting strings fully matched by re.
// The pattern must be anchored.
func MatchPattern(re *regexp.Regexp) Check {
	return func(value any) (string, bool) {
		s, ok := value.(string)
		if !ok || !re.MatchString(s) {
			return "", false
		}
		return s, true
	}
}

// IsInteger accepts integral numbers and renders them in decimal.
// Numeric strings are rejected even when they spell an integer.
func IsInteger(value any) (string, bool) {
	switch v := value.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case json.Number:
		// Integer literals are kept as written, whatever their size.
		if integerLiteral.MatchString(string(v)) {
			return string(v), true
		}
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return wholeFloat(f)
	default:
		return "", false
	}
}

var integerLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)

// wholeFloat accepts finite floats without a fractional part, the way
// Number.isInteger does, and renders them without exponent.
func wholeFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return "", false
	}
	if math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// =============================================================================
// FieldRule
// =============================================================================

// FieldRule declares how one required field is validated.
type FieldRule struct {
	// Field is the parameter key and the environment variable name.
	Field string

	// Check is the format predicate, evaluated only when the field is present.
	Check Check

	// Message builds the InvalidFormat message from the offending value.
	// When nil, "<Field> has an invalid format : [<value>]" is used.
	Message func(field string, value any) string
}

// Apply checks presence then format. Presence is key existence: empty strings
// and zero values count as present.
func (r FieldRule) Apply(params Params) (string, error) {
	value, ok := params[r.Field]
	if !ok {
		return "", NewMissingFieldError(r.Field)
	}
	out, ok := r.Check(value)
	if !ok {
		return "", NewInvalidFormatError(r.Field, value, r.message(value))
	}
	return out, nil
}

func (r FieldRule) message(value any) string {
	if r.Message != nil {
		return r.Message(r.Field, value)
	}
	return fmt.Sprintf("%s has an invalid format : [%v]", r.Field, value)
}

// StaticMessage returns a message builder that ignores the value.
func StaticMessage(text string) func(string, any) string {
	return func(string, any) string {
		return text
	}
}

// BracketMessage returns a message builder of the form "<field> <text> : [<value>]".
func BracketMessage(text string) func(string, any) string {
	return func(field string, value any) string {
		return fmt.Sprintf("%s %s : [%v]", field, text, value)
	}
}
