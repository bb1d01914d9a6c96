// Package locator turns recorded locator strings into a Query the in-page
// resolver can evaluate. It understands locator expressions
// (getByRole(...).nth(1)), selector-engine chains (text=Save >> nth=0),
// internal selectors, and raw css or xpath.
package locator

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/uitest/internal/steps"
)

type Engine string

const (
	EngineCSS         Engine = "css"
	EngineXPath       Engine = "xpath"
	EngineText        Engine = "text"
	EngineRole        Engine = "role"
	EngineLabel       Engine = "label"
	EnginePlaceholder Engine = "placeholder"
	EngineAltText     Engine = "alt"
	EngineTitle       Engine = "title"
	EngineAttr        Engine = "attr"
	EngineNth         Engine = "nth"
	// EngineFrame replaces the current elements with their iframe documents.
	EngineFrame Engine = "frame"
)

// Match is a text predicate. Non-exact matches are case-insensitive substring
// matches over whitespace-normalized text.
type Match struct {
	Value string `json:"value"`
	Exact bool   `json:"exact,omitempty"`
	Regex bool   `json:"regex,omitempty"`
	Flags string `json:"flags,omitempty"`
}

// Part is one step of element resolution, applied to the elements produced
// by the previous part.
type Part struct {
	Engine   Engine `json:"engine"`
	Selector string `json:"selector,omitempty"`
	Attr     string `json:"attr,omitempty"`
	Match    *Match `json:"match,omitempty"`
	Index    int    `json:"index,omitempty"`
}

// Query is the serializable form of a Target.
type Query struct {
	Parts []Part `json:"parts"`
	// Raw is the target value the query was parsed from.
	Raw string `json:"-"`
}

func (q Query) String() string {
	return q.Raw
}

// Parse converts a target into a query. Frame path entries become frame
// boundaries in front of the target's own parts.
func Parse(t steps.Target) (Query, error) {
	q := Query{Raw: t.Value}
	for _, frame := range t.FramePath {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		parts, err := parseAny(frame, steps.ClassifySelector(frame))
		if err != nil {
			return Query{}, fmt.Errorf("frame %q: %w", frame, err)
		}
		q.Parts = append(q.Parts, parts...)
		q.Parts = append(q.Parts, Part{Engine: EngineFrame})
	}

	value := strings.TrimSpace(t.Value)
	if value == "" {
		return Query{}, steps.ErrEmptyTarget
	}
	kind := t.Kind
	if kind == "" || kind == steps.KindUnknown {
		kind = steps.ClassifySelector(value)
	}
	parts, err := parseAny(value, kind)
	if err != nil {
		return Query{}, err
	}
	q.Parts = append(q.Parts, parts...)
	return q, nil
}

func parseAny(value string, kind steps.Kind) ([]Part, error) {
	switch kind {
	case steps.KindLocatorExpression:
		return parseExpression(value)
	case steps.KindCSS:
		return []Part{{Engine: EngineCSS, Selector: value}}, nil
	case steps.KindXPath:
		return []Part{{Engine: EngineXPath, Selector: value}}, nil
	default:
		return parseSelector(value)
	}
}
