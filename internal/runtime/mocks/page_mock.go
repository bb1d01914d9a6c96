package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
)

var _ runtime.Page = (*MockPage)(nil)
var _ runtime.Tracer = (*MockPage)(nil)

// MockElement is what a locator value resolves to on a MockPage.
type MockElement struct {
	Count    int
	State    runtime.ElementState
	Attrs    map[string]string
	HTML     string
	Snapshot string
	// Err, when set, is returned by every operation on the element.
	Err error
}

// Call records one operation performed on the page.
type Call struct {
	Op    string
	Raw   string
	Value string
}

// MockPage implements runtime.Page in memory. Elements are keyed by the raw
// target value of the query.
type MockPage struct {
	mu           sync.Mutex
	url          string
	title        string
	pageSnapshot string
	elements     map[string]*MockElement
	effects      map[string]func(*MockPage)
	calls        []Call
	navigateErr  error
	tracing      bool
	traceStops   []string
}

func NewMockPage() *MockPage {
	return &MockPage{
		url:      "about:blank",
		elements: make(map[string]*MockElement),
		effects:  make(map[string]func(*MockPage)),
	}
}

// SetElement registers the element a locator value resolves to.
func (m *MockPage) SetElement(raw string, el *MockElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elements[raw] = el
}

// SetVisible registers a single visible, enabled element.
func (m *MockPage) SetVisible(raw string) {
	m.SetElement(raw, &MockElement{Count: 1, State: runtime.ElementState{Visible: true, Enabled: true}})
}

// OnAction runs fn after any mutating action on raw, or after navigating to
// raw when raw is a URL.
func (m *MockPage) OnAction(raw string, fn func(*MockPage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.effects[raw] = fn
}

// SetPage sets the page URL, title and whole-page snapshot.
func (m *MockPage) SetPage(url, title, snapshot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url, m.title, m.pageSnapshot = url, title, snapshot
}

func (m *MockPage) SetNavigateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigateErr = err
}

// Calls returns the recorded operations.
func (m *MockPage) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ActionCalls returns only the mutating operations.
func (m *MockPage) ActionCalls() []Call {
	var out []Call
	for _, c := range m.Calls() {
		switch c.Op {
		case "navigate", "click", "fill", "press", "check", "uncheck", "hover", "select":
			out = append(out, c)
		}
	}
	return out
}

func (m *MockPage) TraceStops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.traceStops...)
}

func (m *MockPage) record(op, raw, value string) {
	m.calls = append(m.calls, Call{Op: op, Raw: raw, Value: value})
}

func (m *MockPage) element(raw string) (*MockElement, error) {
	el, ok := m.elements[raw]
	if !ok || el.Count == 0 {
		return nil, fmt.Errorf("no element for %q", raw)
	}
	if el.Err != nil {
		return nil, el.Err
	}
	return el, nil
}

func (m *MockPage) act(op string, q locator.Query, value string, apply func(*MockElement)) error {
	m.mu.Lock()
	m.record(op, q.Raw, value)
	el, err := m.element(q.Raw)
	if err == nil && apply != nil {
		apply(el)
	}
	effect := m.effects[q.Raw]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if effect != nil {
		effect(m)
	}
	return nil
}

func (m *MockPage) Navigate(_ context.Context, url string) error {
	m.mu.Lock()
	m.record("navigate", url, "")
	if m.navigateErr != nil {
		err := m.navigateErr
		m.mu.Unlock()
		return err
	}
	m.url = url
	effect := m.effects[url]
	m.mu.Unlock()
	if effect != nil {
		effect(m)
	}
	return nil
}

func (m *MockPage) URL(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url, nil
}

func (m *MockPage) Title(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.title, nil
}

func (m *MockPage) Count(_ context.Context, q locator.Query) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("count", q.Raw, "")
	el, ok := m.elements[q.Raw]
	if !ok {
		return 0, nil
	}
	if el.Err != nil {
		return 0, el.Err
	}
	return el.Count, nil
}

func (m *MockPage) Inspect(_ context.Context, q locator.Query) (runtime.ElementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, err := m.element(q.Raw)
	if err != nil {
		return runtime.ElementState{}, err
	}
	return el.State, nil
}

func (m *MockPage) Attribute(_ context.Context, q locator.Query, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, err := m.element(q.Raw)
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

func (m *MockPage) OuterHTML(_ context.Context, q locator.Query) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, err := m.element(q.Raw)
	if err != nil {
		return "", err
	}
	return el.HTML, nil
}

func (m *MockPage) Click(_ context.Context, q locator.Query) error {
	return m.act("click", q, "", nil)
}

func (m *MockPage) Fill(_ context.Context, q locator.Query, text string) error {
	return m.act("fill", q, text, func(el *MockElement) { el.State.Value = text })
}

func (m *MockPage) Press(_ context.Context, q locator.Query, key string) error {
	return m.act("press", q, key, nil)
}

func (m *MockPage) SetChecked(_ context.Context, q locator.Query, checked bool) error {
	op := "uncheck"
	if checked {
		op = "check"
	}
	return m.act(op, q, "", func(el *MockElement) { el.State.Checked = checked })
}

func (m *MockPage) Hover(_ context.Context, q locator.Query) error {
	return m.act("hover", q, "", nil)
}

func (m *MockPage) SelectOption(_ context.Context, q locator.Query, value string) error {
	return m.act("select", q, value, func(el *MockElement) { el.State.Value = value })
}

func (m *MockPage) AriaSnapshot(_ context.Context, q *locator.Query) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q == nil {
		m.record("snapshot", "", "")
		return m.pageSnapshot, nil
	}
	m.record("snapshot", q.Raw, "")
	el, err := m.element(q.Raw)
	if err != nil {
		return "", err
	}
	return el.Snapshot, nil
}

func (m *MockPage) WaitForNetworkIdle(context.Context, time.Duration) error {
	return nil
}

func (m *MockPage) StartTracing(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracing = true
	return nil
}

func (m *MockPage) StopTracing(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracing {
		return fmt.Errorf("tracing not started")
	}
	m.tracing = false
	m.traceStops = append(m.traceStops, path)
	return nil
}
