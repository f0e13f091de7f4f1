package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Field is a tri-state input value: absent (leave stored value alone), explicit null (clear), or a value.
type Field[T any] struct {
	Set   bool
	Value *T
}

// Some returns a field explicitly set to v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Null returns a field explicitly cleared.
func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

// Present reports whether the field carries a non-null value.
func (f Field[T]) Present() bool {
	return f.Set && f.Value != nil
}

// Merge returns the field's value when set, otherwise current.
func (f Field[T]) Merge(current *T) *T {
	if !f.Set {
		return current
	}
	return f.Value
}

// UnmarshalJSON is only invoked for keys present in the payload, which is what marks the field as set.
// Numeric and boolean values also accept their string form, as multipart forms submit them that way.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		f.Value = nil
		return nil
	}

	var v T
	err := json.Unmarshal(trimmed, &v)
	if err == nil {
		f.Value = &v
		return nil
	}

	var raw string
	if json.Unmarshal(trimmed, &raw) != nil {
		return err
	}
	coerced, ok, cerr := coerceString[T](raw)
	if !ok {
		return typeError[T](err)
	}
	if cerr != nil {
		return typeError[T](cerr)
	}
	f.Value = coerced
	return nil
}

// MarshalJSON renders absent and null fields as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

// CoercionError reports an optional value that could not be converted from its string form.
type CoercionError struct {
	Input string
	Type  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot use %q as %s", e.Input, e.Type)
}

// typeError reports a failed coercion as a *json.UnmarshalTypeError so the decoder fills in the
// path of the offending field.
func typeError[T any](err error) error {
	var ce *CoercionError
	if !errors.As(err, &ce) {
		return err
	}
	return &json.UnmarshalTypeError{Value: "string " + strconv.Quote(ce.Input), Type: reflect.TypeFor[T]()}
}

// coerceString converts raw into T for the scalar kinds forms submit as text.
// ok is false when T has no string form.
func coerceString[T any](raw string) (*T, bool, error) {
	var zero T
	raw = strings.TrimSpace(raw)
	switch any(zero).(type) {
	case int:
		if raw == "" {
			return nil, true, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, true, &CoercionError{Input: raw, Type: "integer"}
		}
		v := any(n).(T)
		return &v, true, nil
	case float64:
		if raw == "" {
			return nil, true, nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, true, &CoercionError{Input: raw, Type: "number"}
		}
		v := any(n).(T)
		return &v, true, nil
	case bool:
		if raw == "" {
			return nil, true, nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, true, &CoercionError{Input: raw, Type: "boolean"}
		}
		v := any(b).(T)
		return &v, true, nil
	}
	return nil, false, nil
}

// Date is a calendar date that accepts either YYYY-MM-DD or RFC 3339 input.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, &CoercionError{Input: s, Type: "date"}
	}
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}, nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// StringList accepts a JSON array of strings or a string holding a JSON-encoded array.
// An unparseable string decodes to an empty list.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	*l = ParseStringList(encoded)
	return nil
}

// ParseStringList decodes a JSON-encoded array of strings, yielding an empty list on malformed input.
func ParseStringList(encoded string) StringList {
	var items []string
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return StringList{}
	}
	return items
}
