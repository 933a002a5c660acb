package clarity

import (
	"errors"
	"fmt"
)

// ErrWrongType is returned when a value does not have the expected shape.
var ErrWrongType = errors.New("clarity: unexpected value type")

// UnwrapResponse returns the inner value of a response and whether it was ok.
// Non-response values are returned unchanged with ok=true.
func UnwrapResponse(v Value) (Value, bool) {
	switch t := v.(type) {
	case Ok:
		return t.V, true
	case Err:
		return t.V, false
	default:
		return v, true
	}
}

// UnwrapOptional returns the inner value of (some v), or false for none.
// Non-optional values are returned unchanged with true.
func UnwrapOptional(v Value) (Value, bool) {
	switch t := v.(type) {
	case Some:
		return t.V, true
	case None:
		return nil, false
	default:
		return v, true
	}
}

// AsUint64 extracts an unsigned integer, unwrapping an ok response.
func AsUint64(v Value) (uint64, error) {
	v, _ = UnwrapResponse(v)
	u, ok := v.(Uint)
	if !ok {
		return 0, fmt.Errorf("%w: want uint, got %s", ErrWrongType, typeName(v))
	}
	if !u.V.IsUint64() {
		return 0, fmt.Errorf("clarity: uint %s overflows uint64", u.V.Dec())
	}
	return u.V.Uint64(), nil
}

// AsBool extracts a boolean, unwrapping an ok response.
func AsBool(v Value) (bool, error) {
	v, _ = UnwrapResponse(v)
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("%w: want bool, got %s", ErrWrongType, typeName(v))
	}
	return bool(b), nil
}

// AsString extracts string content, unwrapping ok responses and optionals.
func AsString(v Value) (string, error) {
	v, _ = UnwrapResponse(v)
	v, present := UnwrapOptional(v)
	if !present {
		return "", nil
	}
	switch t := v.(type) {
	case StringUTF8:
		return string(t), nil
	case StringASCII:
		return string(t), nil
	default:
		return "", fmt.Errorf("%w: want string, got %s", ErrWrongType, typeName(v))
	}
}

// AsPrincipal returns the address or contract id of a principal value.
func AsPrincipal(v Value) (string, error) {
	v, _ = UnwrapResponse(v)
	switch t := v.(type) {
	case StandardPrincipal:
		return t.Address(), nil
	case ContractPrincipal:
		return t.ID(), nil
	default:
		return "", fmt.Errorf("%w: want principal, got %s", ErrWrongType, typeName(v))
	}
}

// AsTuple extracts a tuple, unwrapping ok responses and optionals.
func AsTuple(v Value) (Tuple, error) {
	v, _ = UnwrapResponse(v)
	v, present := UnwrapOptional(v)
	if !present {
		return nil, fmt.Errorf("%w: want tuple, got none", ErrWrongType)
	}
	t, ok := v.(Tuple)
	if !ok {
		return nil, fmt.Errorf("%w: want tuple, got %s", ErrWrongType, typeName(v))
	}
	return t, nil
}

// Field returns a named tuple field.
func (t Tuple) Field(name string) (Value, error) {
	v, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("%w: tuple has no field %q", ErrWrongType, name)
	}
	return v, nil
}

// UintField returns a named uint field as uint64.
func (t Tuple) UintField(name string) (uint64, error) {
	v, err := t.Field(name)
	if err != nil {
		return 0, err
	}
	n, err := AsUint64(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return n, nil
}

// PrincipalField returns a named principal field.
func (t Tuple) PrincipalField(name string) (string, error) {
	v, err := t.Field(name)
	if err != nil {
		return "", err
	}
	p, err := AsPrincipal(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", name, err)
	}
	return p, nil
}

// OptionalPrincipalField returns a named (optional principal) field; an
// absent field or none yields "".
func (t Tuple) OptionalPrincipalField(name string) (string, error) {
	v, ok := t[name]
	if !ok {
		return "", nil
	}
	inner, present := UnwrapOptional(v)
	if !present {
		return "", nil
	}
	p, err := AsPrincipal(inner)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", name, err)
	}
	return p, nil
}

func typeName(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.Type().String()
}
