// Package sanitize turns raw model output into typed JSON values.
//
// Models frequently wrap JSON in Markdown code fences or prefix it with a
// language tag. Clean strips those markers and, for array payloads, cuts the
// span between the first '[' and the last ']' before decoding.
package sanitize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Shape selects the kind of JSON payload expected in the model output.
type Shape int

const (
	// ShapeArray expects a JSON array somewhere in the output.
	ShapeArray Shape = iota
	// ShapeObject expects the cleaned output to be a JSON object.
	ShapeObject
)

// String returns the lower-case name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeObject:
		return "object"
	default:
		return "unknown"
	}
}

// Options configures one sanitizing contract.
type Options struct {
	Shape Shape

	// IgnoreCase strips "json" markers regardless of letter case.
	IgnoreCase bool
}

// Array is the contract for generated question lists: case-sensitive marker
// stripping followed by array span extraction.
var Array = Options{Shape: ShapeArray}

// Object is the contract for grading results: case-insensitive marker
// stripping and no span extraction.
var Object = Options{Shape: ShapeObject, IgnoreCase: true}

var (
	// ErrNoPayload is returned when an array payload cannot be located.
	ErrNoPayload = errors.New("No JSON array found in response") //nolint:staticcheck // user-facing message

	// ErrInvalidFormat matches every *FormatError.
	ErrInvalidFormat = errors.New("invalid JSON format")
)

var (
	markers     = regexp.MustCompile("(json|```|`)")
	markersFold = regexp.MustCompile("(?i)(json|```|`)")
	arraySpan   = regexp.MustCompile(`(?s)\[.*\]`)
)

// FormatError reports that the cleaned text is not valid JSON for the target type.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "Invalid JSON format: " + e.Err.Error() }

func (e *FormatError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidFormat) match any FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrInvalidFormat }

// Clean applies the marker stripping and span extraction of opts to raw and
// returns the text that will be handed to the JSON decoder.
func Clean(raw string, opts Options) (string, error) {
	re := markers
	if opts.IgnoreCase {
		re = markersFold
	}
	s := re.ReplaceAllString(strings.TrimSpace(raw), "")

	if opts.Shape == ShapeArray {
		span := arraySpan.FindString(s)
		if span == "" {
			return "", ErrNoPayload
		}
		return span, nil
	}
	return strings.TrimSpace(s), nil
}

// Parse cleans raw with opts and decodes the result into a T. Decoding is
// all-or-nothing: on any error the zero T is returned.
func Parse[T any](raw string, opts Options) (T, error) {
	var zero T
	cleaned, err := Clean(raw, opts)
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return zero, &FormatError{Err: err}
	}
	return v, nil
}
