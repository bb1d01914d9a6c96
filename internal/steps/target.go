package steps

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the syntax family a locator value belongs to.
type Kind string

const (
	KindCSS                Kind = "css"
	KindXPath              Kind = "xpath"
	KindLocatorExpression  Kind = "locatorExpression"
	KindPlaywrightSelector Kind = "playwrightSelector"
	KindInternal           Kind = "internal"
	KindUnknown            Kind = "unknown"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCSS, KindXPath, KindLocatorExpression, KindPlaywrightSelector, KindInternal, KindUnknown:
		return true
	default:
		return false
	}
}

// Target identifies the element a step acts on. FramePath lists the
// frame-boundary selectors from the top document down; empty means the
// top-level document.
type Target struct {
	Value      string   `yaml:"value" json:"value"`
	Kind       Kind     `yaml:"kind" json:"kind"`
	Source     string   `yaml:"source,omitempty" json:"source,omitempty"`
	FramePath  []string `yaml:"framePath,omitempty" json:"framePath,omitempty"`
	Confidence *float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	Warning    string   `yaml:"warning,omitempty" json:"warning,omitempty"`
}

var ErrEmptyTarget = errors.New("target value must not be empty")

// Validate checks the target invariants and returns a normalized copy. A
// missing kind is filled from the classifier; a kind that disagrees with the
// classifier is kept but recorded in Warning.
func (t Target) Validate() (Target, error) {
	if strings.TrimSpace(t.Value) == "" {
		return t, ErrEmptyTarget
	}
	out := t.Clone()
	classified := ClassifySelector(t.Value)
	switch {
	case out.Kind == "":
		out.Kind = classified
	case !out.Kind.Valid():
		return t, fmt.Errorf("unknown target kind %q", out.Kind)
	case out.Kind != classified && out.Warning == "":
		out.Warning = fmt.Sprintf("kind %q does not match classified kind %q", out.Kind, classified)
	}
	return out, nil
}

// Clone returns a deep copy so stages never share frame path slices.
func (t Target) Clone() Target {
	out := t
	if t.FramePath != nil {
		out.FramePath = append([]string(nil), t.FramePath...)
	}
	if t.Confidence != nil {
		c := *t.Confidence
		out.Confidence = &c
	}
	return out
}

// Derive returns a target for value in the same frame context as t.
func (t Target) Derive(value string, kind Kind, source string) Target {
	out := Target{Value: value, Kind: kind, Source: source}
	if len(t.FramePath) > 0 {
		out.FramePath = append([]string(nil), t.FramePath...)
	}
	return out
}
