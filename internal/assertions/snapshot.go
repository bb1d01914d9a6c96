// Package assertions proposes assertion steps for a replayed test: from the
// accessibility-snapshot delta around each action and from deterministic
// rules over the step sequence.
package assertions

import (
	"regexp"
	"strings"
)

// Node is one parsed line of an accessibility snapshot.
type Node struct {
	Role     string
	Name     string
	Text     string
	Ref      string
	Visible  bool
	Enabled  bool
	Expanded *bool
	RawLine  string
}

var (
	roleRe     = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9_-]*)`)
	refRe      = regexp.MustCompile(`\[ref=([^\]]+)\]`)
	expandedRe = regexp.MustCompile(`\[expanded=(true|false)\]`)
)

// ParseSnapshot parses "- role "name" [attr] [ref=eN]: text" lines. Lines
// that do not look like nodes are skipped.
func ParseSnapshot(snapshot string) []Node {
	var nodes []Node
	for _, line := range strings.Split(snapshot, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		content := trimmed[2:]
		if strings.HasPrefix(content, "/") {
			continue
		}
		role := roleRe.FindStringSubmatch(content)
		if role == nil {
			continue
		}

		n := Node{
			Role:    role[1],
			Visible: !strings.Contains(content, "[hidden]"),
			Enabled: !strings.Contains(content, "[disabled]"),
			RawLine: trimmed,
		}
		if m := refRe.FindStringSubmatch(content); m != nil {
			n.Ref = m[1]
		}
		n.Name, n.Text = nameAndText(content[len(role[1]):])
		if m := expandedRe.FindStringSubmatch(content); m != nil {
			expanded := m[1] == "true"
			n.Expanded = &expanded
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// nameAndText reads the optional quoted name and the trailing ": text" of a
// node header, skipping the [attr] groups between them. Colons and quotes
// inside the name or the text stay where they are.
func nameAndText(rest string) (name, text string) {
	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, `"`) {
		if end := closingQuote(rest); end > 0 {
			name = strings.TrimSpace(strings.ReplaceAll(rest[1:end], `\"`, `"`))
			rest = rest[end+1:]
		}
	}
	for {
		rest = strings.TrimLeft(rest, " ")
		if !strings.HasPrefix(rest, "[") {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return name, ""
		}
		rest = rest[end+1:]
	}
	if strings.HasPrefix(rest, ":") {
		text = strings.TrimSpace(rest[1:])
	}
	return name, text
}

// closingQuote returns the index of the quote ending the string that opens
// at s[0], or -1.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// Meaningful drops structural "generic" containers.
func Meaningful(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Role != "generic" {
			out = append(out, n)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// signature identifies a node by everything visible about it.
func (n Node) signature() string {
	return strings.Join([]string{
		n.Role, normalize(n.Name), normalize(n.Text), flag(n.Visible, "v", "h"), flag(n.Enabled, "e", "d"),
	}, "|")
}

// identityKey tracks a node across snapshots: by ref when present,
// otherwise by role and name.
func (n Node) identityKey() string {
	if n.Ref != "" {
		return "ref:" + normalize(n.Ref)
	}
	return n.Role + "|" + normalize(n.Name)
}

// content is the node's text, falling back to its name.
func (n Node) content() string {
	if n.Text != "" {
		return strings.TrimSpace(n.Text)
	}
	return strings.TrimSpace(n.Name)
}

func flag(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
