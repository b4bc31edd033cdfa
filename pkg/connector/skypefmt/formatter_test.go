// Copyright 2024-2026 Aiku AI

package skypefmt

import (
	"strings"
	"testing"
)

func TestParse_PlainText(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("hello world", Options{})
	if body != "hello world" {
		t.Errorf("body: got %q, want %q", body, "hello world")
	}
	if formatted != "hello world" {
		t.Errorf("formatted: got %q, want %q", formatted, "hello world")
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("", Options{})
	if body != "" || formatted != "" {
		t.Errorf("empty input: got (%q, %q), want empty pair", body, formatted)
	}
}

func TestParse_Bold(t *testing.T) {
	t.Parallel()
	body, formatted := Parse(`<b raw_pre="*" raw_post="*">hi</b>`, Options{})
	if body != "*hi*" {
		t.Errorf("body: got %q, want %q", body, "*hi*")
	}
	if formatted != "<strong>hi</strong>" {
		t.Errorf("formatted: got %q, want %q", formatted, "<strong>hi</strong>")
	}
}

func TestParse_NestedStyles(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("<b>bold <i>both</i></b>", Options{})
	if body != "*bold _both_*" {
		t.Errorf("body: got %q, want %q", body, "*bold _both_*")
	}
	if formatted != "<strong>bold <em>both</em></strong>" {
		t.Errorf("formatted: got %q, want %q", formatted, "<strong>bold <em>both</em></strong>")
	}
}

func TestParse_Strikethrough(t *testing.T) {
	t.Parallel()
	body, _ := Parse("<s>gone</s>", Options{})
	if body != "~gone~" {
		t.Errorf("body: got %q, want %q", body, "~gone~")
	}
}

func TestParse_Code(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("<pre>x := 1</pre>", Options{})
	if body != "{code}x := 1{code}" {
		t.Errorf("body: got %q, want %q", body, "{code}x := 1{code}")
	}
	if formatted != "<code>x := 1</code>" {
		t.Errorf("formatted: got %q, want %q", formatted, "<code>x := 1</code>")
	}
}

func TestParse_KnownEmoticon(t *testing.T) {
	t.Parallel()
	body, formatted := Parse(`<ss type="like">(like)</ss>`, Options{})
	if body != "\U0001f44d" {
		t.Errorf("body: got %q, want thumbs up glyph", body)
	}
	if formatted != "\U0001f44d" {
		t.Errorf("formatted: got %q, want thumbs up glyph", formatted)
	}
}

func TestParse_EmoticonRawCodeFallback(t *testing.T) {
	t.Parallel()
	// "penguin" has no entry in the name table but resolves as a raw code.
	body, _ := Parse(`<ss type="penguin">(penguin)</ss>`, Options{})
	if body != "\U0001f427" {
		t.Errorf("body: got %q, want penguin glyph", body)
	}
}

func TestParse_EmoticonFaceFallback(t *testing.T) {
	t.Parallel()
	// "monkey" resolves only via the "_face" variant.
	body, _ := Parse(`<ss type="monkey">(monkey)</ss>`, Options{})
	if body != "\U0001f435" {
		t.Errorf("body: got %q, want monkey face glyph", body)
	}
}

func TestParse_UnknownEmoticonLiteral(t *testing.T) {
	t.Parallel()
	body, formatted := Parse(`<ss type="flubber">(flubber)</ss>`, Options{})
	if body != "(flubber)" {
		t.Errorf("body: got %q, want %q", body, "(flubber)")
	}
	if formatted != "(flubber)" {
		t.Errorf("formatted: got %q, want %q", formatted, "(flubber)")
	}
}

func TestParse_Link(t *testing.T) {
	t.Parallel()
	body, formatted := Parse(`<a href="https://example.com">click here</a>`, Options{})
	if body != "[click here](https://example.com)" {
		t.Errorf("body: got %q, want markdown link", body)
	}
	if formatted != `<a href="https://example.com">click here</a>` {
		t.Errorf("formatted: got %q", formatted)
	}
}

func TestParse_BareLink(t *testing.T) {
	t.Parallel()
	// Link text equal to the target renders as the bare URL.
	body, _ := Parse(`<a href="https://example.com">https://example.com</a>`, Options{})
	if body != "https://example.com" {
		t.Errorf("body: got %q, want bare URL", body)
	}
}

func TestParse_Quote(t *testing.T) {
	t.Parallel()
	input := `<quote authorname="Alice" timestamp="1600000000">original text<legacyquote>&lt;&lt;&lt; </legacyquote></quote>reply`
	body, formatted := Parse(input, Options{})
	if !strings.HasPrefix(body, "> Alice:\n> original text") {
		t.Errorf("body: got %q, want quote block prefix", body)
	}
	if !strings.HasSuffix(body, "reply") {
		t.Errorf("body: got %q, want trailing reply", body)
	}
	if !strings.Contains(formatted, "<blockquote><strong>Alice:</strong><br/>original text</blockquote>") {
		t.Errorf("formatted: got %q, want blockquote", formatted)
	}
}

func TestParse_QuoteSuppressed(t *testing.T) {
	t.Parallel()
	input := `<quote authorname="Alice">original</quote>reply`
	body, formatted := Parse(input, Options{SuppressQuotes: true})
	if body != "reply" {
		t.Errorf("body: got %q, want %q", body, "reply")
	}
	if formatted != "reply" {
		t.Errorf("formatted: got %q, want %q", formatted, "reply")
	}
}

func TestParse_EditMarkerStripped(t *testing.T) {
	t.Parallel()
	body, _ := Parse(`edited text<e_m ts="1600000000" a="8:alice"></e_m>`, Options{})
	if body != "edited text" {
		t.Errorf("body: got %q, want %q", body, "edited text")
	}
}

func TestParse_EditMarkerOnly(t *testing.T) {
	t.Parallel()
	// A deletion notification carries only the marker; the decoded body
	// must come out empty.
	body, _ := Parse(`<e_m ts="1600000000" a="8:alice"></e_m>`, Options{})
	if strings.TrimSpace(body) != "" {
		t.Errorf("body: got %q, want empty", body)
	}
}

func TestParse_UnknownTagKeepsChildren(t *testing.T) {
	t.Parallel()
	body, _ := Parse(`<partlist type="started"><part identity="8:alice">inner</part></partlist>`, Options{})
	if body != "inner" {
		t.Errorf("body: got %q, want %q", body, "inner")
	}
}

func TestParse_LineBreaks(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("one<br/>two", Options{})
	if body != "one\ntwo" {
		t.Errorf("body: got %q, want %q", body, "one\ntwo")
	}
	if formatted != "one<br/>two" {
		t.Errorf("formatted: got %q, want %q", formatted, "one<br/>two")
	}
}

func TestParse_EntityDecoding(t *testing.T) {
	t.Parallel()
	body, formatted := Parse("a &amp; b", Options{})
	if body != "a & b" {
		t.Errorf("body: got %q, want %q", body, "a & b")
	}
	if formatted != "a &amp; b" {
		t.Errorf("formatted: got %q, want re-escaped text", formatted)
	}
}

func TestParse_Pure(t *testing.T) {
	t.Parallel()
	input := `<b>x</b> <ss type="like">(like)</ss> <quote authorname="A">q</quote>`
	body1, formatted1 := Parse(input, Options{})
	body2, formatted2 := Parse(input, Options{})
	if body1 != body2 || formatted1 != formatted2 {
		t.Errorf("Parse is not deterministic: (%q, %q) vs (%q, %q)", body1, formatted1, body2, formatted2)
	}
}
