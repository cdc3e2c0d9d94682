// Package xmlutil bridges free-text model output and structured XML documents.
package xmlutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrEmptyDocument is returned when the input holds no element at all.
	ErrEmptyDocument = errors.New("xml document has no root element")
	// ErrMultipleRoots is returned when more than one top-level element is present.
	ErrMultipleRoots = errors.New("xml document has more than one root element")
)

// ExtractTaggedSection returns the substring running from the first "<tag"
// to the first "</tag>" at or after it, both inclusive. The scan is textual:
// unrelated outer markup is ignored and only the first match is returned.
// The character after "<tag" must end the tag name, so extracting "plan"
// never matches "<plan_update>".
func ExtractTaggedSection(text, tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	open := "<" + tag
	closing := "</" + tag + ">"

	offset := 0
	for {
		idx := strings.Index(text[offset:], open)
		if idx < 0 {
			return "", false
		}
		start := offset + idx
		after := start + len(open)
		if after < len(text) && !endsTagName(text[after]) {
			offset = after
			continue
		}
		end := strings.Index(text[start:], closing)
		if end < 0 {
			return "", false
		}
		return text[start : start+end+len(closing)], true
	}
}

func endsTagName(c byte) bool {
	switch c {
	case '>', '/', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// ParseElement parses s as a document with exactly one root element and
// returns that element. Leading processing instructions and comments are
// allowed; stray top-level text is not.
func ParseElement(s string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	var root *etree.Element
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			if root != nil {
				return nil, ErrMultipleRoots
			}
			root = t
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return nil, fmt.Errorf("parse xml: text outside root element: %q", truncate(t.Data, 40))
			}
		}
	}
	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// ElementText returns the concatenated character data that appears before
// the first child element. A nil element yields "".
func ElementText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			return b.String()
		}
	}
	return b.String()
}

// ChildText returns the text of the first child element named tag, and
// whether that child exists.
func ChildText(el *etree.Element, tag string) (string, bool) {
	if el == nil {
		return "", false
	}
	child := el.SelectElement(tag)
	if child == nil {
		return "", false
	}
	return ElementText(child), true
}

// InnerXML serializes the children of el without the enclosing tags.
func InnerXML(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(escapeText(t.Data))
		case *etree.Element:
			b.WriteString(Compact(t))
		}
	}
	return b.String()
}

// Compact serializes el on a single logical line, preserving text verbatim.
func Compact(el *etree.Element) string {
	var b strings.Builder
	writeCompact(&b, el)
	return b.String()
}

func writeCompact(b *strings.Builder, el *etree.Element) {
	b.WriteString("<")
	b.WriteString(el.FullTag())
	writeAttrs(b, el)
	b.WriteString(">")
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(escapeText(t.Data))
		case *etree.Element:
			writeCompact(b, t)
		}
	}
	b.WriteString("</")
	b.WriteString(el.FullTag())
	b.WriteString(">")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
