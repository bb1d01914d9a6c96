package steps

import "fmt"

// Action is the tag of a step variant as written in test files.
type Action string

const (
	ActionNavigate      Action = "navigate"
	ActionClick         Action = "click"
	ActionFill          Action = "fill"
	ActionPress         Action = "press"
	ActionCheck         Action = "check"
	ActionUncheck       Action = "uncheck"
	ActionHover         Action = "hover"
	ActionSelect        Action = "select"
	ActionAssertVisible Action = "assertVisible"
	ActionAssertText    Action = "assertText"
	ActionAssertValue   Action = "assertValue"
	ActionAssertChecked Action = "assertChecked"
	ActionAssertEnabled Action = "assertEnabled"
	ActionAssertURL     Action = "assertUrl"
	ActionAssertTitle   Action = "assertTitle"
)

// AllActions lists every step variant. Tests range over it to keep type
// switches exhaustive.
var AllActions = []Action{
	ActionNavigate, ActionClick, ActionFill, ActionPress, ActionCheck,
	ActionUncheck, ActionHover, ActionSelect, ActionAssertVisible,
	ActionAssertText, ActionAssertValue, ActionAssertChecked,
	ActionAssertEnabled, ActionAssertURL, ActionAssertTitle,
}

// Meta holds the fields shared by every step.
type Meta struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Timeout overrides the run's step timeout, in milliseconds.
	Timeout  int  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
}

func (m Meta) StepMeta() Meta { return m }

// Step is one entry of a test. The variants are closed: only this package
// implements it.
type Step interface {
	Action() Action
	StepMeta() Meta
	WithMeta(Meta) Step
	isStep()
}

// Targeted is implemented by every step that acts on an element.
type Targeted interface {
	Step
	StepTarget() Target
	WithTarget(Target) Step
}

type Navigate struct {
	URL  string `yaml:"url" json:"url"`
	Meta `yaml:",inline"`
}

type Click struct {
	Target Target `yaml:"target" json:"target"`
	Meta   `yaml:",inline"`
}

type Fill struct {
	Target Target `yaml:"target" json:"target"`
	Text   string `yaml:"text" json:"text"`
	Meta   `yaml:",inline"`
}

type Press struct {
	Target Target `yaml:"target" json:"target"`
	Key    string `yaml:"key" json:"key"`
	Meta   `yaml:",inline"`
}

type Check struct {
	Target Target `yaml:"target" json:"target"`
	Meta   `yaml:",inline"`
}

type Uncheck struct {
	Target Target `yaml:"target" json:"target"`
	Meta   `yaml:",inline"`
}

type Hover struct {
	Target Target `yaml:"target" json:"target"`
	Meta   `yaml:",inline"`
}

type Select struct {
	Target Target `yaml:"target" json:"target"`
	Value  string `yaml:"value" json:"value"`
	Meta   `yaml:",inline"`
}

type AssertVisible struct {
	Target Target `yaml:"target" json:"target"`
	Meta   `yaml:",inline"`
}

type AssertText struct {
	Target Target `yaml:"target" json:"target"`
	Text   string `yaml:"text" json:"text"`
	Meta   `yaml:",inline"`
}

type AssertValue struct {
	Target Target `yaml:"target" json:"target"`
	Value  string `yaml:"value" json:"value"`
	Meta   `yaml:",inline"`
}

// AssertChecked expects the element to be checked unless Checked is false.
type AssertChecked struct {
	Target  Target `yaml:"target" json:"target"`
	Checked *bool  `yaml:"checked,omitempty" json:"checked,omitempty"`
	Meta    `yaml:",inline"`
}

func (s AssertChecked) Expected() bool { return s.Checked == nil || *s.Checked }

// AssertEnabled expects the element to be enabled unless Enabled is false.
type AssertEnabled struct {
	Target  Target `yaml:"target" json:"target"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Meta    `yaml:",inline"`
}

func (s AssertEnabled) Expected() bool { return s.Enabled == nil || *s.Enabled }

type AssertURL struct {
	URL  string `yaml:"url" json:"url"`
	Meta `yaml:",inline"`
}

type AssertTitle struct {
	Title string `yaml:"title" json:"title"`
	Meta  `yaml:",inline"`
}

func (Navigate) Action() Action      { return ActionNavigate }
func (Click) Action() Action         { return ActionClick }
func (Fill) Action() Action          { return ActionFill }
func (Press) Action() Action         { return ActionPress }
func (Check) Action() Action         { return ActionCheck }
func (Uncheck) Action() Action       { return ActionUncheck }
func (Hover) Action() Action         { return ActionHover }
func (Select) Action() Action        { return ActionSelect }
func (AssertVisible) Action() Action { return ActionAssertVisible }
func (AssertText) Action() Action    { return ActionAssertText }
func (AssertValue) Action() Action   { return ActionAssertValue }
func (AssertChecked) Action() Action { return ActionAssertChecked }
func (AssertEnabled) Action() Action { return ActionAssertEnabled }
func (AssertURL) Action() Action     { return ActionAssertURL }
func (AssertTitle) Action() Action   { return ActionAssertTitle }

func (Navigate) isStep()      {}
func (Click) isStep()         {}
func (Fill) isStep()          {}
func (Press) isStep()         {}
func (Check) isStep()         {}
func (Uncheck) isStep()       {}
func (Hover) isStep()         {}
func (Select) isStep()        {}
func (AssertVisible) isStep() {}
func (AssertText) isStep()    {}
func (AssertValue) isStep()   {}
func (AssertChecked) isStep() {}
func (AssertEnabled) isStep() {}
func (AssertURL) isStep()     {}
func (AssertTitle) isStep()   {}

func (s Navigate) WithMeta(m Meta) Step      { s.Meta = m; return s }
func (s Click) WithMeta(m Meta) Step         { s.Meta = m; return s }
func (s Fill) WithMeta(m Meta) Step          { s.Meta = m; return s }
func (s Press) WithMeta(m Meta) Step         { s.Meta = m; return s }
func (s Check) WithMeta(m Meta) Step         { s.Meta = m; return s }
func (s Uncheck) WithMeta(m Meta) Step       { s.Meta = m; return s }
func (s Hover) WithMeta(m Meta) Step         { s.Meta = m; return s }
func (s Select) WithMeta(m Meta) Step        { s.Meta = m; return s }
func (s AssertVisible) WithMeta(m Meta) Step { s.Meta = m; return s }
func (s AssertText) WithMeta(m Meta) Step    { s.Meta = m; return s }
func (s AssertValue) WithMeta(m Meta) Step   { s.Meta = m; return s }
func (s AssertChecked) WithMeta(m Meta) Step { s.Meta = m; return s }
func (s AssertEnabled) WithMeta(m Meta) Step { s.Meta = m; return s }
func (s AssertURL) WithMeta(m Meta) Step     { s.Meta = m; return s }
func (s AssertTitle) WithMeta(m Meta) Step   { s.Meta = m; return s }

func (s Click) StepTarget() Target         { return s.Target }
func (s Fill) StepTarget() Target          { return s.Target }
func (s Press) StepTarget() Target         { return s.Target }
func (s Check) StepTarget() Target         { return s.Target }
func (s Uncheck) StepTarget() Target       { return s.Target }
func (s Hover) StepTarget() Target         { return s.Target }
func (s Select) StepTarget() Target        { return s.Target }
func (s AssertVisible) StepTarget() Target { return s.Target }
func (s AssertText) StepTarget() Target    { return s.Target }
func (s AssertValue) StepTarget() Target   { return s.Target }
func (s AssertChecked) StepTarget() Target { return s.Target }
func (s AssertEnabled) StepTarget() Target { return s.Target }

func (s Click) WithTarget(t Target) Step         { s.Target = t; return s }
func (s Fill) WithTarget(t Target) Step          { s.Target = t; return s }
func (s Press) WithTarget(t Target) Step         { s.Target = t; return s }
func (s Check) WithTarget(t Target) Step         { s.Target = t; return s }
func (s Uncheck) WithTarget(t Target) Step       { s.Target = t; return s }
func (s Hover) WithTarget(t Target) Step         { s.Target = t; return s }
func (s Select) WithTarget(t Target) Step        { s.Target = t; return s }
func (s AssertVisible) WithTarget(t Target) Step { s.Target = t; return s }
func (s AssertText) WithTarget(t Target) Step    { s.Target = t; return s }
func (s AssertValue) WithTarget(t Target) Step   { s.Target = t; return s }
func (s AssertChecked) WithTarget(t Target) Step { s.Target = t; return s }
func (s AssertEnabled) WithTarget(t Target) Step { s.Target = t; return s }

// TargetOf returns the step's target, if the variant has one.
func TargetOf(s Step) (Target, bool) {
	if t, ok := s.(Targeted); ok {
		return t.StepTarget(), true
	}
	return Target{}, false
}

// IsAssertion reports whether s only verifies page state.
func IsAssertion(s Step) bool {
	switch s.Action() {
	case ActionAssertVisible, ActionAssertText, ActionAssertValue,
		ActionAssertChecked, ActionAssertEnabled, ActionAssertURL, ActionAssertTitle:
		return true
	default:
		return false
	}
}

// Zero returns an empty value of the variant tagged by a.
func Zero(a Action) (Step, error) {
	switch a {
	case ActionNavigate:
		return Navigate{}, nil
	case ActionClick:
		return Click{}, nil
	case ActionFill:
		return Fill{}, nil
	case ActionPress:
		return Press{}, nil
	case ActionCheck:
		return Check{}, nil
	case ActionUncheck:
		return Uncheck{}, nil
	case ActionHover:
		return Hover{}, nil
	case ActionSelect:
		return Select{}, nil
	case ActionAssertVisible:
		return AssertVisible{}, nil
	case ActionAssertText:
		return AssertText{}, nil
	case ActionAssertValue:
		return AssertValue{}, nil
	case ActionAssertChecked:
		return AssertChecked{}, nil
	case ActionAssertEnabled:
		return AssertEnabled{}, nil
	case ActionAssertURL:
		return AssertURL{}, nil
	case ActionAssertTitle:
		return AssertTitle{}, nil
	default:
		return nil, fmt.Errorf("unsupported action %q", a)
	}
}

// Describe renders a short human label for logs and reports.
func Describe(s Step) string {
	switch v := s.(type) {
	case Navigate:
		return fmt.Sprintf("navigate %s", v.URL)
	case AssertURL:
		return fmt.Sprintf("assertUrl %s", v.URL)
	case AssertTitle:
		return fmt.Sprintf("assertTitle %q", v.Title)
	case Targeted:
		return fmt.Sprintf("%s %s", v.Action(), v.StepTarget().Value)
	default:
		return string(s.Action())
	}
}

// Validate checks the required fields of a step.
func Validate(s Step) error {
	switch v := s.(type) {
	case Navigate:
		if v.URL == "" {
			return fmt.Errorf("navigate requires url")
		}
	case AssertURL:
		if v.URL == "" {
			return fmt.Errorf("assertUrl requires url")
		}
	case AssertTitle:
		if v.Title == "" {
			return fmt.Errorf("assertTitle requires title")
		}
	case Press:
		if v.Key == "" {
			return fmt.Errorf("press requires key")
		}
		if _, err := v.Target.Validate(); err != nil {
			return fmt.Errorf("press: %w", err)
		}
	case Targeted:
		if _, err := v.StepTarget().Validate(); err != nil {
			return fmt.Errorf("%s: %w", v.Action(), err)
		}
	default:
		return fmt.Errorf("unsupported action %q", s.Action())
	}
	return nil
}
