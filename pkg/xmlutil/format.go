package xmlutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ResponseRoot is the root element produced by SerializeResponse.
const ResponseRoot = "agent-response"

const indentUnit = "  "

// Field is one named value passed to SerializeResponse. Fields keep the
// order in which the caller supplies them.
type Field struct {
	Name  string
	Value any
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five reserved XML characters with named entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeText escapes character data; quotes only need escaping in attributes.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// SerializeResponse builds an <agent-response> document from fields and
// returns it pretty printed. String values that look like a complete element
// are parsed and attached as-is; anything unparsable or scalar becomes a
// text child named after the field. Empty values are omitted.
func SerializeResponse(fields ...Field) string {
	root := etree.NewElement(ResponseRoot)
	for _, f := range fields {
		text, ok := fieldText(f.Value)
		if !ok {
			continue
		}
		if looksLikeElement(text) {
			if el, err := ParseElement(strings.TrimSpace(text)); err == nil {
				root.AddChild(el.Copy())
				continue
			}
		}
		root.CreateElement(f.Name).SetText(text)
	}
	var b strings.Builder
	writePretty(&b, root, 0)
	return strings.TrimRight(b.String(), "\n")
}

func fieldText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, strings.TrimSpace(val) != ""
	case fmt.Stringer:
		s := val.String()
		return s, s != ""
	case bool, int, int64, float64:
		return fmt.Sprint(val), true
	case []string:
		if len(val) == 0 {
			return "", false
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		s := fmt.Sprint(v)
		return s, s != ""
	}
	s := string(data)
	if s == "null" || s == "{}" || s == "[]" || s == `""` {
		return "", false
	}
	return s, true
}

func looksLikeElement(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">")
}

// PrettyPrint re-indents a well-formed XML document with two spaces per
// level. Comments and processing instructions are dropped. If s does not
// parse it is returned unchanged.
func PrettyPrint(s string) string {
	root, err := ParseElement(s)
	if err != nil {
		return s
	}
	var b strings.Builder
	writePretty(&b, root, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writePretty(b *strings.Builder, el *etree.Element, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	lead, children, tails := splitContent(el)

	b.WriteString(indent)
	b.WriteString("<")
	b.WriteString(el.FullTag())
	writeAttrs(b, el)
	b.WriteString(">")

	if len(children) == 0 && strings.TrimSpace(lead) == "" {
		b.WriteString("</" + el.FullTag() + ">\n")
		return
	}
	b.WriteString("\n")
	writeTextBlock(b, lead, depth+1)
	for i, child := range children {
		writePretty(b, child, depth+1)
		writeTextBlock(b, tails[i], depth+1)
	}
	b.WriteString(indent)
	b.WriteString("</" + el.FullTag() + ">\n")
}

// splitContent separates the text before the first child element from the
// child elements and the text following each of them.
func splitContent(el *etree.Element) (string, []*etree.Element, []string) {
	var lead strings.Builder
	var children []*etree.Element
	var tails []string
	var tail strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if len(children) == 0 {
				lead.WriteString(t.Data)
			} else {
				tail.WriteString(t.Data)
			}
		case *etree.Element:
			if len(children) > 0 {
				tails = append(tails, tail.String())
				tail.Reset()
			}
			children = append(children, t)
		}
	}
	if len(children) > 0 {
		tails = append(tails, tail.String())
	}
	return lead.String(), children, tails
}

func writeTextBlock(b *strings.Builder, text string, depth int) {
	if strings.TrimSpace(text) == "" {
		return
	}
	indent := strings.Repeat(indentUnit, depth)
	lines := normalizeLines(text)
	if len(lines) == 1 {
		b.WriteString(indent + escapeText(lines[0]) + "\n")
		return
	}
	b.WriteString("\n")
	for _, line := range lines {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(indent + escapeText(line) + "\n")
	}
	b.WriteString("\n")
}

// normalizeLines trims blank leading and trailing lines, strips trailing
// whitespace and removes the indentation shared by every non-blank line.
// Relative indentation survives, which keeps repeated formatting stable.
func normalizeLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(raw) > 0 && strings.TrimSpace(raw[0]) == "" {
		raw = raw[1:]
	}
	for len(raw) > 0 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	if len(raw) == 1 {
		return []string{strings.TrimSpace(raw[0])}
	}

	prefix := ""
	first := true
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = ws
			first = false
			continue
		}
		prefix = commonPrefix(prefix, ws)
	}

	out := make([]string, len(raw))
	for i, line := range raw {
		line = strings.TrimRight(line, " \t")
		out[i] = strings.TrimPrefix(line, prefix)
	}
	return out
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func writeAttrs(b *strings.Builder, el *etree.Element) {
	for _, a := range el.Attr {
		b.WriteString(" ")
		b.WriteString(a.FullKey())
		b.WriteString(`="`)
		b.WriteString(Escape(a.Value))
		b.WriteString(`"`)
	}
}
