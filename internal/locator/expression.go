package locator

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type argKind int

const (
	argString argKind = iota
	argNumber
	argRegex
	argBool
	argObject
)

type arg struct {
	kind  argKind
	str   string
	flags string
	num   int
	b     bool
	obj   map[string]arg
}

type exprParser struct {
	src string
	pos int
}

// parseExpression parses a chain of locator calls such as
// page.getByRole('button', { name: 'Save' }).first().
func parseExpression(src string) ([]Part, error) {
	p := &exprParser{src: strings.TrimSpace(src)}
	if strings.HasPrefix(p.src, "page.") {
		p.pos = len("page.")
	}

	var parts []Part
	for {
		p.skipSpace()
		name := p.ident()
		if name == "" {
			return nil, p.errorf("expected method name")
		}
		p.skipSpace()
		if !p.consume('(') {
			return nil, p.errorf("expected ( after %s", name)
		}
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		call, err := buildCall(name, args)
		if err != nil {
			return nil, err
		}
		parts = append(parts, call...)

		p.skipSpace()
		if p.eof() {
			return parts, nil
		}
		if !p.consume('.') {
			return nil, p.errorf("unexpected %q", p.src[p.pos])
		}
	}
}

func buildCall(name string, args []arg) ([]Part, error) {
	switch name {
	case "getByRole":
		if len(args) == 0 || args[0].kind != argString {
			return nil, fmt.Errorf("getByRole expects a role string")
		}
		p := Part{Engine: EngineRole, Selector: args[0].str}
		if len(args) > 1 && args[1].kind == argObject {
			opts := args[1].obj
			if n, ok := opts["name"]; ok {
				m := matchFromArg(n)
				if e, ok := opts["exact"]; ok && e.kind == argBool && n.kind == argString {
					m.Exact = e.b
				}
				p.Match = &m
			}
		}
		return []Part{p}, nil
	case "getByText", "getByLabel", "getByPlaceholder", "getByAltText", "getByTitle":
		if len(args) == 0 || (args[0].kind != argString && args[0].kind != argRegex) {
			return nil, fmt.Errorf("%s expects a string or regular expression", name)
		}
		m := matchFromArg(args[0])
		if len(args) > 1 && args[1].kind == argObject {
			if e, ok := args[1].obj["exact"]; ok && e.kind == argBool && !m.Regex {
				m.Exact = e.b
			}
		}
		return []Part{{Engine: textEngines[name], Match: &m}}, nil
	case "getByTestId":
		if len(args) == 0 || args[0].kind != argString {
			return nil, fmt.Errorf("getByTestId expects a string")
		}
		return []Part{{Engine: EngineAttr, Attr: "data-testid", Match: &Match{Value: args[0].str, Exact: true}}}, nil
	case "locator":
		if len(args) == 0 || args[0].kind != argString {
			return nil, fmt.Errorf("locator expects a selector string")
		}
		return parseSelector(args[0].str)
	case "frameLocator":
		if len(args) == 0 || args[0].kind != argString {
			return nil, fmt.Errorf("frameLocator expects a selector string")
		}
		parts, err := parseSelector(args[0].str)
		if err != nil {
			return nil, err
		}
		return append(parts, Part{Engine: EngineFrame}), nil
	case "contentFrame":
		return []Part{{Engine: EngineFrame}}, nil
	case "first":
		return []Part{{Engine: EngineNth, Index: 0}}, nil
	case "last":
		return []Part{{Engine: EngineNth, Index: -1}}, nil
	case "nth":
		if len(args) == 0 || args[0].kind != argNumber {
			return nil, fmt.Errorf("nth expects a number")
		}
		return []Part{{Engine: EngineNth, Index: args[0].num}}, nil
	default:
		return nil, fmt.Errorf("unsupported locator method %q", name)
	}
}

var textEngines = map[string]Engine{
	"getByText":        EngineText,
	"getByLabel":       EngineLabel,
	"getByPlaceholder": EnginePlaceholder,
	"getByAltText":     EngineAltText,
	"getByTitle":       EngineTitle,
}

func matchFromArg(a arg) Match {
	if a.kind == argRegex {
		return Match{Value: a.str, Regex: true, Flags: a.flags}
	}
	return Match{Value: a.str}
}

func (p *exprParser) args() ([]arg, error) {
	var out []arg
	for {
		p.skipSpace()
		if p.consume(')') {
			return out, nil
		}
		if len(out) > 0 {
			if !p.consume(',') {
				return nil, p.errorf("expected , or )")
			}
			p.skipSpace()
			if p.consume(')') {
				return out, nil
			}
		}
		a, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
}

func (p *exprParser) value() (arg, error) {
	p.skipSpace()
	if p.eof() {
		return arg{}, p.errorf("unexpected end of expression")
	}
	c := p.src[p.pos]
	switch {
	case c == '\'' || c == '"' || c == '`':
		s, err := p.quoted()
		return arg{kind: argString, str: s}, err
	case c == '/':
		return p.regex()
	case c == '{':
		return p.object()
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		p.pos++
		for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil {
			return arg{}, p.errorf("invalid number")
		}
		return arg{kind: argNumber, num: n}, nil
	default:
		switch id := p.ident(); id {
		case "true", "false":
			return arg{kind: argBool, b: id == "true"}, nil
		default:
			return arg{}, p.errorf("unexpected value %q", id)
		}
	}
}

func (p *exprParser) object() (arg, error) {
	p.pos++ // {
	obj := map[string]arg{}
	for {
		p.skipSpace()
		if p.consume('}') {
			return arg{kind: argObject, obj: obj}, nil
		}
		if len(obj) > 0 {
			if !p.consume(',') {
				return arg{}, p.errorf("expected , or }")
			}
			p.skipSpace()
			if p.consume('}') {
				return arg{kind: argObject, obj: obj}, nil
			}
		}
		var key string
		if c := p.peek(); c == '\'' || c == '"' {
			k, err := p.quoted()
			if err != nil {
				return arg{}, err
			}
			key = k
		} else {
			key = p.ident()
		}
		if key == "" {
			return arg{}, p.errorf("expected object key")
		}
		p.skipSpace()
		if !p.consume(':') {
			return arg{}, p.errorf("expected : after %s", key)
		}
		v, err := p.value()
		if err != nil {
			return arg{}, err
		}
		obj[key] = v
	}
}

func (p *exprParser) regex() (arg, error) {
	p.pos++ // /
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\\' && p.pos+1 < len(p.src) {
			b.WriteByte(c)
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
			continue
		}
		if c == '/' {
			p.pos++
			start := p.pos
			for !p.eof() && unicode.IsLetter(rune(p.src[p.pos])) {
				p.pos++
			}
			return arg{kind: argRegex, str: b.String(), flags: p.src[start:p.pos]}, nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return arg{}, p.errorf("unterminated regular expression")
}

func (p *exprParser) quoted() (string, error) {
	v, rest, err := readQuoted(p.src[p.pos:])
	if err != nil {
		return "", err
	}
	p.pos = len(p.src) - len(rest)
	return v, nil
}

func (p *exprParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := rune(p.src[p.pos])
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '$') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *exprParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) consume(c byte) bool {
	if !p.eof() && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) eof() bool { return p.pos >= len(p.src) }

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("locator expression %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}
