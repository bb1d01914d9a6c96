package locator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var engineRe = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)=(.*)$`)

// parseSelector handles selector-engine chains separated by >>.
func parseSelector(selector string) ([]Part, error) {
	var parts []Part
	for _, seg := range splitChain(selector) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		p, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p...)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty selector %q", selector)
	}
	return parts, nil
}

func parseSegment(seg string) ([]Part, error) {
	if strings.HasPrefix(seg, "internal:") {
		return parseInternal(strings.TrimPrefix(seg, "internal:"))
	}
	if strings.HasPrefix(seg, "//") || strings.HasPrefix(seg, "..") || strings.HasPrefix(seg, "(//") {
		return []Part{{Engine: EngineXPath, Selector: seg}}, nil
	}
	if seg[0] == '"' || seg[0] == '\'' {
		m, err := parseTextBody(seg, true)
		if err != nil {
			return nil, err
		}
		return []Part{{Engine: EngineText, Match: &m}}, nil
	}

	sub := engineRe.FindStringSubmatch(seg)
	if sub == nil {
		return []Part{{Engine: EngineCSS, Selector: seg}}, nil
	}
	engine, body := strings.ToLower(sub[1]), strings.TrimSpace(sub[2])
	switch engine {
	case "css":
		return []Part{{Engine: EngineCSS, Selector: body}}, nil
	case "xpath":
		return []Part{{Engine: EngineXPath, Selector: body}}, nil
	case "text":
		m, err := parseTextBody(body, false)
		if err != nil {
			return nil, err
		}
		return []Part{{Engine: EngineText, Match: &m}}, nil
	case "id":
		return []Part{{Engine: EngineAttr, Attr: "id", Match: &Match{Value: unquote(body), Exact: true}}}, nil
	case "data-testid", "data-test-id", "data-test":
		return []Part{{Engine: EngineAttr, Attr: engine, Match: &Match{Value: unquote(body), Exact: true}}}, nil
	case "role":
		p, err := parseRole(body)
		if err != nil {
			return nil, err
		}
		return []Part{p}, nil
	case "nth":
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, fmt.Errorf("invalid nth %q", body)
		}
		return []Part{{Engine: EngineNth, Index: n}}, nil
	default:
		return nil, fmt.Errorf("unsupported selector engine %q", engine)
	}
}

func parseInternal(body string) ([]Part, error) {
	name, value, ok := strings.Cut(body, "=")
	if !ok {
		return nil, fmt.Errorf("invalid internal selector %q", body)
	}
	switch name {
	case "control":
		if value == "enter-frame" {
			return []Part{{Engine: EngineFrame}}, nil
		}
		return nil, fmt.Errorf("unsupported internal control %q", value)
	case "role":
		p, err := parseRole(value)
		if err != nil {
			return nil, err
		}
		return []Part{p}, nil
	case "text", "label":
		m, err := parseTextBody(value, false)
		if err != nil {
			return nil, err
		}
		engine := EngineText
		if name == "label" {
			engine = EngineLabel
		}
		return []Part{{Engine: engine, Match: &m}}, nil
	case "testid", "attr":
		_, attrs, err := parseAttrs(value)
		if err != nil {
			return nil, err
		}
		if len(attrs) != 1 {
			return nil, fmt.Errorf("internal:%s expects one attribute, got %q", name, value)
		}
		a := attrs[0]
		m := a.match
		switch a.key {
		case "placeholder":
			return []Part{{Engine: EnginePlaceholder, Match: &m}}, nil
		case "alt":
			return []Part{{Engine: EngineAltText, Match: &m}}, nil
		case "title":
			return []Part{{Engine: EngineTitle, Match: &m}}, nil
		default:
			return []Part{{Engine: EngineAttr, Attr: a.key, Match: &m}}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported internal selector %q", name)
	}
}

func parseRole(body string) (Part, error) {
	i := 0
	for i < len(body) && body[i] != '[' {
		i++
	}
	role := strings.TrimSpace(body[:i])
	if role == "" {
		return Part{}, fmt.Errorf("role selector %q has no role", body)
	}
	p := Part{Engine: EngineRole, Selector: role}
	_, attrs, err := parseAttrs(body[i:])
	if err != nil {
		return Part{}, err
	}
	for _, a := range attrs {
		if a.key == "name" {
			m := a.match
			p.Match = &m
		}
	}
	return p, nil
}

type attr struct {
	key   string
	match Match
}

// parseAttrs reads a run of [key=value] or [key] brackets.
func parseAttrs(s string) (string, []attr, error) {
	var out []attr
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "[") {
		end := closingBracket(s)
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated attribute in %q", s)
		}
		inner := s[1:end]
		s = strings.TrimSpace(s[end+1:])
		key, value, hasValue := strings.Cut(inner, "=")
		key = strings.TrimSpace(key)
		if !hasValue {
			out = append(out, attr{key: key})
			continue
		}
		m, err := parseTextBody(strings.TrimSpace(value), false)
		if err != nil {
			return "", nil, err
		}
		out = append(out, attr{key: key, match: m})
	}
	return s, out, nil
}

func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

// parseTextBody reads a text predicate. "x" and "x"s are exact, "x"i is a
// case-insensitive substring, /re/flags is a regular expression and a bare
// value is a substring unless quotedExact forces exactness.
func parseTextBody(body string, quotedExact bool) (Match, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Match{}, fmt.Errorf("empty text selector")
	}
	if body[0] == '/' {
		if end := strings.LastIndexByte(body, '/'); end > 0 {
			return Match{Value: body[1:end], Regex: true, Flags: body[end+1:]}, nil
		}
	}
	if body[0] == '"' || body[0] == '\'' {
		value, rest, err := readQuoted(body)
		if err != nil {
			return Match{}, err
		}
		switch strings.TrimSpace(rest) {
		case "i":
			return Match{Value: value}, nil
		case "s", "":
			return Match{Value: value, Exact: true}, nil
		default:
			return Match{}, fmt.Errorf("unexpected text after quoted value in %q", body)
		}
	}
	return Match{Value: body, Exact: quotedExact}, nil
}

func readQuoted(s string) (string, string, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		if c == q {
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
	}
	return "", "", fmt.Errorf("unterminated string in %q", s)
}

func unquote(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		if v, _, err := readQuoted(s); err == nil {
			return v
		}
	}
	return s
}

// splitChain splits on >> outside quotes and brackets.
func splitChain(s string) []string {
	var (
		out   []string
		quote byte
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == '>' && i+1 < len(s) && s[i+1] == '>':
			out = append(out, s[start:i])
			start = i + 2
			i++
		}
	}
	return append(out, s[start:])
}
