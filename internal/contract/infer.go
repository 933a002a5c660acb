package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// minAddressLen is the shortest string treated as an address.
const minAddressLen = 39

var addressPrefixes = []string{"SP", "ST", "SM", "SN"}

// InferArg guesses the Clarity type of an untyped value:
//
//	number or all-digit string  -> uint
//	SP/ST/SM/SN string >= 39    -> principal
//	bool                        -> bool
//	nil                         -> none
//	anything else               -> string-utf8
//
// Address-shaped strings that fail checksum validation are rejected rather
// than falling through to text. Prefer typed Args wherever the caller knows
// the type.
func InferArg(v any) (clarity.Value, error) {
	switch t := v.(type) {
	case nil:
		return clarity.None{}, nil
	case clarity.Value:
		return t, nil
	case Arg:
		return t.Encode()
	case bool:
		return clarity.Bool(t), nil
	case int:
		return intToUint(int64(t))
	case int64:
		return intToUint(t)
	case uint64:
		return clarity.NewUint(t), nil
	case float64:
		if t < 0 || t != math.Trunc(t) || t > math.MaxUint64 {
			return nil, fmt.Errorf("%w: %v is not an unsigned integer", domain.ErrInvalidInput, t)
		}
		return clarity.NewUint(uint64(t)), nil
	case json.Number:
		return inferString(t.String())
	case string:
		return inferString(t)
	default:
		return clarity.StringUTF8(fmt.Sprint(v)), nil
	}
}

// InferArgs applies InferArg to every element.
func InferArgs(values []any) ([]clarity.Value, error) {
	out := make([]clarity.Value, len(values))
	for i, v := range values {
		cv, err := InferArg(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = cv
	}
	return out, nil
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LooksLikeAddress reports whether s has an address prefix and length.
func LooksLikeAddress(s string) bool {
	if len(s) < minAddressLen {
		return false
	}
	for _, p := range addressPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func inferString(s string) (clarity.Value, error) {
	switch {
	case IsNumeric(s):
		return clarity.ParseUint(s)
	case LooksLikeAddress(s):
		v, err := clarity.ParsePrincipal(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return v, nil
	default:
		return clarity.StringUTF8(s), nil
	}
}

func intToUint(n int64) (clarity.Value, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %s is negative", domain.ErrInvalidInput, strconv.FormatInt(n, 10))
	}
	return clarity.NewUint(uint64(n)), nil
}
