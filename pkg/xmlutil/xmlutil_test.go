package xmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTaggedSection(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		tag    string
		want   string
		wantOK bool
	}{
		{
			name:   "surrounded by prose",
			text:   `blah <actions><action type="x"/></actions> blah`,
			tag:    "actions",
			want:   `<actions><action type="x"/></actions>`,
			wantOK: true,
		},
		{
			name:   "nested inside unrelated element",
			text:   `<response><message>hi</message><plan><task id="a"/></plan></wrong>`,
			tag:    "plan",
			want:   `<plan><task id="a"/></plan>`,
			wantOK: true,
		},
		{
			name:   "first of several matches",
			text:   `<message>one</message><message>two</message>`,
			tag:    "message",
			want:   `<message>one</message>`,
			wantOK: true,
		},
		{
			name:   "attributes on the opening tag",
			text:   `x <execution_status complete="true"><message>m</message></execution_status>`,
			tag:    "execution_status",
			want:   `<execution_status complete="true"><message>m</message></execution_status>`,
			wantOK: true,
		},
		{
			name:   "longer tag name is skipped",
			text:   `<plan_update><add_task parent_id="r"/></plan_update><plan></plan>`,
			tag:    "plan",
			want:   `<plan></plan>`,
			wantOK: true,
		},
		{name: "missing opening tag", text: "nothing here", tag: "plan"},
		{name: "missing closing tag", text: "<plan><task/>", tag: "plan"},
		{name: "empty tag", text: "<plan></plan>", tag: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTaggedSection(tt.text, tt.tag)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseElement(t *testing.T) {
	el, err := ParseElement(`<?xml version="1.0"?><root a="1"><child/></root>`)
	require.NoError(t, err)
	assert.Equal(t, "root", el.Tag)
	assert.Equal(t, "1", el.SelectAttrValue("a", ""))

	_, err = ParseElement("")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = ParseElement("<a/><b/>")
	assert.ErrorIs(t, err, ErrMultipleRoots)

	_, err = ParseElement("<a><b></a>")
	assert.Error(t, err)

	_, err = ParseElement("text <a/>")
	assert.Error(t, err)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "&amp;&lt;&gt;&quot;&apos;", Escape(`&<>"'`))
	assert.Equal(t, "plain", Escape("plain"))
}

func TestPrettyPrint(t *testing.T) {
	t.Run("collapses empty elements", func(t *testing.T) {
		got := PrettyPrint(`<plan><task id="a" status="pending"/></plan>`)
		assert.Equal(t, "<plan>\n  <task id=\"a\" status=\"pending\"></task>\n</plan>", got)
	})

	t.Run("single line text on its own line", func(t *testing.T) {
		got := PrettyPrint(`<r><message>hello</message></r>`)
		assert.Equal(t, "<r>\n  <message>\n    hello\n  </message>\n</r>", got)
	})

	t.Run("multi line text surrounded by blank lines", func(t *testing.T) {
		got := PrettyPrint("<r><c>line one\n  line two</c></r>")
		want := "<r>\n  <c>\n\n    line one\n      line two\n\n  </c>\n</r>"
		assert.Equal(t, want, got)
	})

	t.Run("drops comments", func(t *testing.T) {
		got := PrettyPrint("<memory>\n  <!-- note -->\n</memory>")
		assert.Equal(t, "<memory></memory>", got)
	})

	t.Run("keeps tail text", func(t *testing.T) {
		got := PrettyPrint("<r><a/>after</r>")
		assert.Equal(t, "<r>\n  <a></a>\n  after\n</r>", got)
	})

	t.Run("escapes text", func(t *testing.T) {
		got := PrettyPrint("<r>a &amp; b &lt; c</r>")
		assert.Equal(t, "<r>\n  a &amp; b &lt; c\n</r>", got)
	})

	t.Run("invalid input returned unchanged", func(t *testing.T) {
		in := "<r><unclosed></r>"
		assert.Equal(t, in, PrettyPrint(in))
		assert.Equal(t, "not xml at all", PrettyPrint("not xml at all"))
	})
}

func TestPrettyPrintIdempotent(t *testing.T) {
	inputs := []string{
		`<plan><task id="root" description="Root"><task id="t1" description="A &amp; B" status="pending" depends_on="" progress="0"/></task></plan>`,
		"<action type=\"create_file\" path=\"a.py\">\nimport os\n\ndef main():\n    print('hi')\n</action>",
		"<r>lead<a>x</a>tail one\ntail two<b/></r>",
		"<memory>\n  <!-- Agent can structure this as needed -->\n</memory>",
		"<r>\t<c>\n\t\tindented\n\t\t\tdeeper\n\t</c></r>",
	}
	for _, in := range inputs {
		once := PrettyPrint(in)
		twice := PrettyPrint(once)
		assert.Equal(t, once, twice, "input: %s", in)
	}
}

func TestSerializeResponse(t *testing.T) {
	t.Run("embeds xml values and omits empty ones", func(t *testing.T) {
		out := SerializeResponse(
			Field{Name: "plan", Value: `<plan><task id="a"/></plan>`},
			Field{Name: "status", Value: "Updated task a"},
			Field{Name: "error", Value: ""},
			Field{Name: "missing", Value: nil},
		)
		assert.True(t, strings.HasPrefix(out, "<agent-response>"))
		assert.Contains(t, out, `<task id="a"></task>`)
		assert.Contains(t, out, "<status>\n    Updated task a\n  </status>")
		assert.NotContains(t, out, "<error>")
		assert.NotContains(t, out, "<missing>")
	})

	t.Run("unparsable xml becomes text", func(t *testing.T) {
		out := SerializeResponse(Field{Name: "actions", Value: "<actions><broken></actions>"})
		assert.Contains(t, out, "<actions>\n    &lt;actions&gt;&lt;broken&gt;&lt;/actions&gt;\n  </actions>")
	})

	t.Run("maps become compact json", func(t *testing.T) {
		out := SerializeResponse(Field{Name: "info", Value: map[string]any{"files": 3}})
		assert.Contains(t, out, `{"files":3}`)
	})

	t.Run("scalars are stringified", func(t *testing.T) {
		out := SerializeResponse(Field{Name: "progress", Value: 70}, Field{Name: "ok", Value: true})
		assert.Contains(t, out, "<progress>\n    70\n  </progress>")
		assert.Contains(t, out, "<ok>\n    true\n  </ok>")
	})

	t.Run("empty response", func(t *testing.T) {
		assert.Equal(t, "<agent-response></agent-response>", SerializeResponse())
	})
}

func TestSerializeThenExtractRoundTrip(t *testing.T) {
	plan := `<plan><task id="root" description="Root"><task id="t1" description="A" status="pending" depends_on="" progress="0"/></task></plan>`
	out := SerializeResponse(Field{Name: "plan", Value: plan})

	section, ok := ExtractTaggedSection(out, "plan")
	require.True(t, ok)
	assert.Equal(t, PrettyPrint(plan), PrettyPrint(section))
}

func TestInnerXMLAndText(t *testing.T) {
	el, err := ParseElement(`<content>before<b>x</b>after &amp; more</content>`)
	require.NoError(t, err)
	assert.Equal(t, "before", ElementText(el))
	assert.Equal(t, "before<b>x</b>after &amp; more", InnerXML(el))

	text, ok := ChildText(el, "b")
	assert.True(t, ok)
	assert.Equal(t, "x", text)

	_, ok = ChildText(el, "nope")
	assert.False(t, ok)
	assert.Equal(t, "", ElementText(nil))
}
