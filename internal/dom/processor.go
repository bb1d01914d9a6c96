// Package dom reduces element markup to the parts that help pick a selector:
// a simplified excerpt for ranking context and the root element's
// attributes for candidate generation.
package dom

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrNoElement = errors.New("markup contains no element")

var droppedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "meta": true, "link": true, "template": true,
}

// Tags rendered with their markup; other elements contribute only their
// children.
var keptTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "div": true, "span": true, "br": true, "hr": true,
	"ul": true, "ol": true, "li": true, "nav": true, "main": true, "header": true, "footer": true,
	"section": true, "article": true, "aside": true, "dialog": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true, "th": true, "td": true,
	"a": true, "button": true, "input": true, "textarea": true, "select": true, "option": true, "label": true,
	"form": true, "fieldset": true, "legend": true, "img": true, "iframe": true,
	"pre": true, "code": true, "strong": true, "em": true, "b": true, "i": true,
}

var voidTags = map[string]bool{"br": true, "hr": true, "input": true, "img": true}

var keptAttrs = map[string]bool{
	"href": true, "src": true, "alt": true, "title": true,
	"id": true, "class": true, "for": true,
	"type": true, "value": true, "placeholder": true, "name": true,
	"selected": true, "checked": true, "disabled": true, "readonly": true,
	"role": true, "data-testid": true, "data-test-id": true, "data-test": true,
}

var flagAttrs = map[string]bool{"value": true, "selected": true, "checked": true, "disabled": true, "readonly": true}

// Simplify strips scripts, comments and presentational attributes from an
// HTML fragment, keeping structure, text, aria-* and test-id attributes.
func Simplify(htmlContent string) (string, error) {
	nodes, err := parseFragment(htmlContent)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := simplifyNode(&buf, n); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// Excerpt simplifies htmlContent and truncates the result to at most max
// bytes without splitting a rune.
func Excerpt(htmlContent string, max int) (string, error) {
	simplified, err := Simplify(htmlContent)
	if err != nil {
		return "", err
	}
	if max <= 0 || len(simplified) <= max {
		return simplified, nil
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(simplified[cut]) {
		cut--
	}
	return simplified[:cut], nil
}

// RootAttributes returns the tag name and attributes of the first element in
// the fragment.
func RootAttributes(htmlContent string) (string, map[string]string, error) {
	nodes, err := parseFragment(htmlContent)
	if err != nil {
		return "", nil, err
	}
	for _, n := range nodes {
		if el := firstElement(n); el != nil {
			attrs := make(map[string]string, len(el.Attr))
			for _, a := range el.Attr {
				attrs[a.Key] = a.Val
			}
			return el.Data, attrs, nil
		}
	}
	return "", nil, ErrNoElement
}

func firstElement(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if el := firstElement(c); el != nil {
			return el
		}
	}
	return nil
}

// parseFragment parses element markup in a <body> context. Full documents
// parse as documents.
func parseFragment(htmlContent string) ([]*html.Node, error) {
	trimmed := strings.TrimSpace(strings.ToLower(htmlContent))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		doc, err := html.Parse(strings.NewReader(htmlContent))
		if err != nil {
			return nil, err
		}
		return []*html.Node{doc}, nil
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(htmlContent), body)
}

func simplifyNode(w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.ErrorNode, html.CommentNode, html.DoctypeNode:
		return nil
	case html.TextNode:
		trimmed := strings.Join(strings.Fields(n.Data), " ")
		if trimmed != "" {
			if _, err := io.WriteString(w, html.EscapeString(trimmed)+" "); err != nil {
				return err
			}
		}
		return nil
	case html.ElementNode:
		if droppedTags[n.Data] {
			return nil
		}
		if !keptTags[n.Data] {
			return simplifyChildren(w, n)
		}
		if err := writeStartTag(w, n); err != nil {
			return err
		}
		if voidTags[n.Data] {
			return nil
		}
		if err := simplifyChildren(w, n); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</"+n.Data+">")
		return err
	default:
		return simplifyChildren(w, n)
	}
}

func simplifyChildren(w io.Writer, n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := simplifyNode(w, c); err != nil {
			return err
		}
	}
	return nil
}

func writeStartTag(w io.Writer, n *html.Node) error {
	if _, err := io.WriteString(w, "<"+n.Data); err != nil {
		return err
	}
	for _, a := range n.Attr {
		if !keptAttrs[a.Key] && !strings.HasPrefix(a.Key, "aria-") {
			continue
		}
		val := strings.TrimSpace(a.Val)
		if val == "" && !flagAttrs[a.Key] {
			continue
		}
		if _, err := io.WriteString(w, " "+a.Key+"=\""+html.EscapeString(val)+"\""); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, ">")
	return err
}
