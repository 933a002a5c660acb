package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// ArgKind tags a typed call argument.
type ArgKind string

const (
	KindUint      ArgKind = "uint"
	KindInt       ArgKind = "int"
	KindPrincipal ArgKind = "principal"
	KindText      ArgKind = "text"
	KindASCII     ArgKind = "ascii"
	KindBool      ArgKind = "bool"
	KindOption    ArgKind = "optional"
	KindBuffer    ArgKind = "buffer"
	KindTuple     ArgKind = "tuple"
)

// Arg is an explicitly typed contract-call argument. Call sites state the
// Clarity type they mean instead of leaving it to inference.
type Arg struct {
	Kind   ArgKind
	Str    string // uint, int, principal, text, ascii, buffer (hex)
	Flag   bool   // bool
	Inner  *Arg   // optional; nil means none
	Fields map[string]Arg
}

// Uint is an unsigned integer argument.
func Uint(n uint64) Arg { return Arg{Kind: KindUint, Str: fmt.Sprintf("%d", n)} }

// UintString is an unsigned integer argument given in base 10.
func UintString(s string) Arg { return Arg{Kind: KindUint, Str: s} }

// Principal is a standard or contract principal argument.
func Principal(s string) Arg { return Arg{Kind: KindPrincipal, Str: s} }

// Text is a string-utf8 argument.
func Text(s string) Arg { return Arg{Kind: KindText, Str: s} }

// Bool is a boolean argument.
func Bool(b bool) Arg { return Arg{Kind: KindBool, Flag: b} }

// Some wraps a in an optional.
func Some(a Arg) Arg { return Arg{Kind: KindOption, Inner: &a} }

// None is the empty optional.
func None() Arg { return Arg{Kind: KindOption} }

// OptionalPrincipal is (some principal) or none when s is empty.
func OptionalPrincipal(s string) Arg {
	if s == "" {
		return None()
	}
	return Some(Principal(s))
}

// Buffer is a byte-buffer argument.
func Buffer(b []byte) Arg { return Arg{Kind: KindBuffer, Str: hex.EncodeToString(b)} }

// Tuple is a record argument.
func Tuple(fields map[string]Arg) Arg { return Arg{Kind: KindTuple, Fields: fields} }

// Encode converts the descriptor into a Clarity value.
func (a Arg) Encode() (clarity.Value, error) {
	switch a.Kind {
	case KindUint:
		v, err := clarity.ParseUint(strings.TrimSpace(a.Str))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return v, nil
	case KindInt:
		v, err := clarity.ParseInt(strings.TrimSpace(a.Str))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return v, nil
	case KindPrincipal:
		v, err := clarity.ParsePrincipal(strings.TrimSpace(a.Str))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return v, nil
	case KindText:
		return clarity.StringUTF8(a.Str), nil
	case KindASCII:
		return clarity.StringASCII(a.Str), nil
	case KindBool:
		return clarity.Bool(a.Flag), nil
	case KindOption:
		if a.Inner == nil {
			return clarity.None{}, nil
		}
		inner, err := a.Inner.Encode()
		if err != nil {
			return nil, err
		}
		return clarity.Some{V: inner}, nil
	case KindBuffer:
		b, err := hex.DecodeString(strings.TrimPrefix(a.Str, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: buffer hex: %v", domain.ErrInvalidInput, err)
		}
		return clarity.Buffer(b), nil
	case KindTuple:
		t := make(clarity.Tuple, len(a.Fields))
		for name, f := range a.Fields {
			v, err := f.Encode()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			t[name] = v
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unknown argument type %q", domain.ErrInvalidInput, a.Kind)
	}
}

// EncodeArgs encodes every descriptor in order.
func EncodeArgs(args []Arg) ([]clarity.Value, error) {
	out := make([]clarity.Value, len(args))
	for i, a := range args {
		v, err := a.Encode()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// --------------------------------------------------------------------------
// JSON form: {"type": "uint", "value": "42"}
// --------------------------------------------------------------------------

type argJSON struct {
	Type  ArgKind         `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON renders the descriptor in its wire form.
func (a Arg) MarshalJSON() ([]byte, error) {
	var value any
	switch a.Kind {
	case KindBool:
		value = a.Flag
	case KindOption:
		if a.Inner != nil {
			value = *a.Inner
		}
	case KindTuple:
		value = a.Fields
	default:
		value = a.Str
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(argJSON{Type: a.Kind, Value: raw})
}

// UnmarshalJSON parses the wire form.
func (a *Arg) UnmarshalJSON(data []byte) error {
	var w argJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Arg{Kind: w.Type}
	isNull := len(w.Value) == 0 || string(w.Value) == "null"

	switch w.Type {
	case KindBool:
		if isNull {
			return fmt.Errorf("%w: bool argument without value", domain.ErrInvalidInput)
		}
		return json.Unmarshal(w.Value, &a.Flag)
	case KindOption:
		if isNull {
			return nil
		}
		var inner Arg
		if err := json.Unmarshal(w.Value, &inner); err != nil {
			return err
		}
		a.Inner = &inner
		return nil
	case KindTuple:
		return json.Unmarshal(w.Value, &a.Fields)
	case KindUint, KindInt, KindPrincipal, KindText, KindASCII, KindBuffer:
		if isNull {
			return fmt.Errorf("%w: %s argument without value", domain.ErrInvalidInput, w.Type)
		}
		// Numbers may arrive unquoted.
		var s string
		if err := json.Unmarshal(w.Value, &s); err == nil {
			a.Str = s
			return nil
		}
		var n json.Number
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return fmt.Errorf("%w: %s argument value: %v", domain.ErrInvalidInput, w.Type, err)
		}
		a.Str = n.String()
		return nil
	default:
		return fmt.Errorf("%w: unknown argument type %q", domain.ErrInvalidInput, w.Type)
	}
}

// String renders the descriptor for logs.
func (a Arg) String() string {
	switch a.Kind {
	case KindBool:
		return fmt.Sprintf("bool(%t)", a.Flag)
	case KindOption:
		if a.Inner == nil {
			return "none"
		}
		return "some(" + a.Inner.String() + ")"
	case KindTuple:
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + a.Fields[k].String()
		}
		return "tuple{" + strings.Join(parts, " ") + "}"
	default:
		return string(a.Kind) + "(" + a.Str + ")"
	}
}
