package clarity

import "encoding/hex"

// ToNative converts v into plain Go values suitable for JSON encoding.
// Unsigned and signed integers become decimal strings so u128 values
// survive a round trip through JavaScript clients. Principals become
// their address or contract id, buffers become 0x-prefixed hex, none
// becomes nil, and some is unwrapped. Responses become
// {"ok": true|false, "value": ...}.
func ToNative(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Uint:
		return t.V.Dec()
	case Int:
		return t.V.String()
	case Bool:
		return bool(t)
	case Buffer:
		return "0x" + hex.EncodeToString(t)
	case StandardPrincipal:
		return t.Address()
	case ContractPrincipal:
		return t.ID()
	case StringASCII:
		return string(t)
	case StringUTF8:
		return string(t)
	case None:
		return nil
	case Some:
		return ToNative(t.V)
	case Ok:
		return map[string]any{"ok": true, "value": ToNative(t.V)}
	case Err:
		return map[string]any{"ok": false, "value": ToNative(t.V)}
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToNative(e)
		}
		return out
	case Tuple:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToNative(e)
		}
		return out
	default:
		return v.String()
	}
}
