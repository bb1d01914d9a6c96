package locator

import "strings"

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)

// Quote renders s as a single-quoted string literal for a locator
// expression.
func Quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

func ByRole(role, name string) string {
	if name == "" {
		return "getByRole(" + Quote(role) + ")"
	}
	return "getByRole(" + Quote(role) + ", { name: " + Quote(name) + " })"
}

func ByText(text string) string        { return "getByText(" + Quote(text) + ")" }
func ByLabel(label string) string      { return "getByLabel(" + Quote(label) + ")" }
func ByPlaceholder(text string) string { return "getByPlaceholder(" + Quote(text) + ")" }
func ByTestID(id string) string        { return "getByTestId(" + Quote(id) + ")" }
func ByAltText(text string) string     { return "getByAltText(" + Quote(text) + ")" }
func ByTitle(text string) string       { return "getByTitle(" + Quote(text) + ")" }

// BySelector wraps a css selector, or an xpath= selector, in locator().
func BySelector(selector string) string { return "locator(" + Quote(selector) + ")" }
