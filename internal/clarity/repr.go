package clarity

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseRepr parses the textual form produced by Value.String back into a
// value tree. It accepts ints, uints, bools, none, buffers, principals,
// strings, and the (some …), (ok …), (err …), (list …) and (tuple …) forms.
func ParseRepr(s string) (Value, error) {
	p := &reprParser{src: s}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type reprParser struct {
	src string
	pos int
}

func (p *reprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("clarity: repr at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *reprParser) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *reprParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// atom reads up to the next delimiter.
func (p *reprParser) atom() string {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n()", p.src[p.pos]) < 0 {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *reprParser) value() (Value, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '(':
		return p.form()
	case c == '"':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return StringASCII(s), nil
	case c == 'u' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '"':
		p.pos++
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return StringUTF8(s), nil
	case c == '\'':
		p.pos++
		return ParsePrincipal(p.atom())
	}

	tok := p.atom()
	switch {
	case tok == "true":
		return Bool(true), nil
	case tok == "false":
		return Bool(false), nil
	case tok == "none":
		return None{}, nil
	case strings.HasPrefix(tok, "0x"):
		b, err := hex.DecodeString(tok[2:])
		if err != nil {
			return nil, p.errorf("invalid buffer %q", tok)
		}
		return Buffer(b), nil
	case strings.HasPrefix(tok, "u"):
		return ParseUint(tok[1:])
	case tok != "":
		return ParseInt(tok)
	default:
		return nil, p.errorf("unexpected %q", p.peek())
	}
}

func (p *reprParser) quoted() (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			sb.WriteByte(p.src[p.pos])
			p.pos++
		case '"':
			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *reprParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *reprParser) form() (Value, error) {
	p.pos++ // '('
	p.skipSpace()
	head := p.atom()

	var out Value
	switch head {
	case "some", "ok", "err":
		inner, err := p.value()
		if err != nil {
			return nil, err
		}
		switch head {
		case "some":
			out = Some{V: inner}
		case "ok":
			out = Ok{V: inner}
		default:
			out = Err{V: inner}
		}
	case "list":
		list := List{}
		for {
			p.skipSpace()
			if p.peek() == ')' || p.peek() == 0 {
				break
			}
			item, err := p.value()
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		out = list
	case "tuple":
		tuple := Tuple{}
		for {
			p.skipSpace()
			if p.peek() != '(' {
				break
			}
			p.pos++
			p.skipSpace()
			name := p.atom()
			if name == "" {
				return nil, p.errorf("tuple field without name")
			}
			field, err := p.value()
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
			tuple[name] = field
		}
		out = tuple
	default:
		return nil, p.errorf("unknown form %q", head)
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return out, nil
}
