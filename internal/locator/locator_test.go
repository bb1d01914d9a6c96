package locator

import (
	"encoding/json"
	"testing"

	"github.com/copyleftdev/uitest/internal/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, value string, framePath ...string) []Part {
	t.Helper()
	q, err := Parse(steps.Target{Value: value, FramePath: framePath})
	require.NoError(t, err)
	assert.Equal(t, value, q.Raw)
	return q.Parts
}

func TestParse_LocatorExpressions(t *testing.T) {
	parts := parse(t, "getByRole('button', { name: 'Save', exact: true })")
	require.Len(t, parts, 1)
	assert.Equal(t, EngineRole, parts[0].Engine)
	assert.Equal(t, "button", parts[0].Selector)
	assert.Equal(t, &Match{Value: "Save", Exact: true}, parts[0].Match)

	parts = parse(t, `page.getByText("Welcome back").first()`)
	require.Len(t, parts, 2)
	assert.Equal(t, EngineText, parts[0].Engine)
	assert.False(t, parts[0].Match.Exact)
	assert.Equal(t, Part{Engine: EngineNth, Index: 0}, parts[1])

	parts = parse(t, "getByTestId('checkout')")
	assert.Equal(t, []Part{{Engine: EngineAttr, Attr: "data-testid", Match: &Match{Value: "checkout", Exact: true}}}, parts)

	parts = parse(t, "getByLabel(/e-?mail/i)")
	assert.Equal(t, &Match{Value: "e-?mail", Regex: true, Flags: "i"}, parts[0].Match)

	parts = parse(t, "locator('#list').locator('li').nth(2)")
	require.Len(t, parts, 3)
	assert.Equal(t, Part{Engine: EngineCSS, Selector: "#list"}, parts[0])
	assert.Equal(t, Part{Engine: EngineNth, Index: 2}, parts[2])

	parts = parse(t, "frameLocator('iframe#pay').getByPlaceholder(`Card number`)")
	require.Len(t, parts, 3)
	assert.Equal(t, EngineFrame, parts[1].Engine)
	assert.Equal(t, EnginePlaceholder, parts[2].Engine)
}

func TestParse_SelectorEngines(t *testing.T) {
	tests := []struct {
		value string
		want  []Part
	}{
		{"text=Save", []Part{{Engine: EngineText, Match: &Match{Value: "Save"}}}},
		{`text="Save"`, []Part{{Engine: EngineText, Match: &Match{Value: "Save", Exact: true}}}},
		{"data-testid=checkout", []Part{{Engine: EngineAttr, Attr: "data-testid", Match: &Match{Value: "checkout", Exact: true}}}},
		{"id=main", []Part{{Engine: EngineAttr, Attr: "id", Match: &Match{Value: "main", Exact: true}}}},
		{`role=button[name="Save"]`, []Part{{Engine: EngineRole, Selector: "button", Match: &Match{Value: "Save", Exact: true}}}},
		{"css=.card >> text=Buy >> nth=1", []Part{
			{Engine: EngineCSS, Selector: ".card"},
			{Engine: EngineText, Match: &Match{Value: "Buy"}},
			{Engine: EngineNth, Index: 1},
		}},
		{`internal:role=button[name="Save"i]`, []Part{{Engine: EngineRole, Selector: "button", Match: &Match{Value: "Save"}}}},
		{`internal:testid=[data-testid="cart"s]`, []Part{{Engine: EngineAttr, Attr: "data-testid", Match: &Match{Value: "cart", Exact: true}}}},
		{`internal:attr=[placeholder="Search"i]`, []Part{{Engine: EnginePlaceholder, Match: &Match{Value: "Search"}}}},
		{`iframe >> internal:control=enter-frame >> internal:label="Email"i`, []Part{
			{Engine: EngineCSS, Selector: "iframe"},
			{Engine: EngineFrame},
			{Engine: EngineLabel, Match: &Match{Value: "Email"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(t, tt.value))
		})
	}
}

func TestParse_RawCSSAndXPath(t *testing.T) {
	assert.Equal(t, []Part{{Engine: EngineCSS, Selector: "a[href=\"/x >> y\"]"}}, parse(t, "a[href=\"/x >> y\"]"))
	assert.Equal(t, []Part{{Engine: EngineXPath, Selector: "//button[1]"}}, parse(t, "//button[1]"))
}

func TestParse_FramePath(t *testing.T) {
	parts := parse(t, "#email", `iframe[name="app"]`, "iframe.inner")
	require.Len(t, parts, 5)
	assert.Equal(t, EngineFrame, parts[1].Engine)
	assert.Equal(t, EngineFrame, parts[3].Engine)
	assert.Equal(t, Part{Engine: EngineCSS, Selector: "#email"}, parts[4])
}

func TestParse_Errors(t *testing.T) {
	for _, value := range []string{
		"getByRole(",
		"getByRole(42)",
		"getByText('x').filter({ hasText: 'y' })",
		"unknown=engine",
		"getByText('unterminated)",
	} {
		_, err := Parse(steps.Target{Value: value})
		assert.Error(t, err, value)
	}
	_, err := Parse(steps.Target{Value: ""})
	assert.ErrorIs(t, err, steps.ErrEmptyTarget)
}

func TestQueryJSON(t *testing.T) {
	q, err := Parse(steps.Target{Value: "getByRole('link', { name: 'Docs' })"})
	require.NoError(t, err)

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"parts":[{"engine":"role","selector":"link","match":{"value":"Docs"}}]}`, string(data))
}

func TestBuilders_RoundTrip(t *testing.T) {
	value := ByRole("button", "It's \\ done")
	assert.Equal(t, `getByRole('button', { name: 'It\'s \\ done' })`, value)

	parts := parse(t, value)
	require.Len(t, parts, 1)
	assert.Equal(t, EngineRole, parts[0].Engine)
	assert.Equal(t, "button", parts[0].Selector)
	assert.Equal(t, `It's \ done`, parts[0].Match.Value)

	assert.Equal(t, "getByRole('main')", ByRole("main", ""))
	assert.Equal(t, "getByTestId('checkout')", ByTestID("checkout"))
	assert.Equal(t, "locator('#submit')", BySelector("#submit"))
}
