// Copyright 2024-2026 Aiku AI

// Package skypefmt converts Skype rich-text markup to a Matrix body and
// formatted-body pair.
package skypefmt

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Options controls decoding behavior.
type Options struct {
	// SuppressQuotes drops quote blocks entirely instead of rendering them
	// as blockquotes.
	SuppressQuotes bool
}

// projection is the pair every node folds into: the markdown-flavored plain
// body and the HTML formatted body. Nesting composes by concatenation.
type projection struct {
	body      string
	formatted string
}

func (p projection) wrap(delim, tag string) projection {
	return projection{
		body:      delim + p.body + delim,
		formatted: "<" + tag + ">" + p.formatted + "</" + tag + ">",
	}
}

// Parse converts Skype markup to (body, formattedBody). It is a pure
// function: same input, same output. Unknown tags are stripped but their
// children are kept.
func Parse(input string, opts Options) (body, formattedBody string) {
	if input == "" {
		return "", ""
	}
	nodes, err := xhtml.ParseFragment(strings.NewReader(input), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		// The fragment parser accepts nearly anything; if it still fails,
		// fall back to treating the input as plain text.
		return html.UnescapeString(input), escapeText(input)
	}
	var out projection
	for _, n := range nodes {
		p := decodeNode(n, opts)
		out.body += p.body
		out.formatted += p.formatted
	}
	return out.body, out.formatted
}

func decodeNode(n *xhtml.Node, opts Options) projection {
	switch n.Type {
	case xhtml.TextNode:
		// The parser has already entity-decoded the text.
		return projection{body: n.Data, formatted: escapeText(n.Data)}
	case xhtml.ElementNode:
		return decodeElement(n, opts)
	default:
		return decodeChildren(n, opts)
	}
}

func decodeChildren(n *xhtml.Node, opts Options) projection {
	var out projection
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		p := decodeNode(child, opts)
		out.body += p.body
		out.formatted += p.formatted
	}
	return out
}

func decodeElement(n *xhtml.Node, opts Options) projection {
	switch n.Data {
	case "b", "strong":
		return decodeChildren(n, opts).wrap("*", "strong")
	case "i", "em":
		return decodeChildren(n, opts).wrap("_", "em")
	case "s", "strike", "del":
		return decodeChildren(n, opts).wrap("~", "del")
	case "pre", "code":
		child := decodeChildren(n, opts)
		return projection{
			body:      "{code}" + child.body + "{code}",
			formatted: "<code>" + child.formatted + "</code>",
		}
	case "a":
		return decodeLink(n, opts)
	case "quote":
		return decodeQuote(n, opts)
	case "ss":
		return decodeEmoticon(n)
	case "e_m", "legacyquote":
		// Edit markers and legacy quote shims carry no visible content.
		return projection{}
	case "br":
		return projection{body: "\n", formatted: "<br/>"}
	default:
		return decodeChildren(n, opts)
	}
}

func decodeLink(n *xhtml.Node, opts Options) projection {
	href := attr(n, "href")
	child := decodeChildren(n, opts)
	var body string
	if strings.TrimSpace(child.body) == href || href == "" {
		body = child.body
	} else {
		body = "[" + child.body + "](" + href + ")"
	}
	return projection{
		body:      body,
		formatted: `<a href="` + html.EscapeString(href) + `">` + child.formatted + `</a>`,
	}
}

func decodeQuote(n *xhtml.Node, opts Options) projection {
	if opts.SuppressQuotes {
		return projection{}
	}
	author := attr(n, "authorname")
	if author == "" {
		author = attr(n, "author")
	}
	child := decodeChildren(n, opts)

	lines := strings.Split(strings.TrimSpace(child.body), "\n")
	for i := range lines {
		lines[i] = "> " + lines[i]
	}
	body := "> " + author + ":\n" + strings.Join(lines, "\n") + "\n"

	formatted := "<blockquote><strong>" + html.EscapeString(author) + ":</strong><br/>" +
		child.formatted + "</blockquote>"
	return projection{body: body, formatted: formatted}
}

func decodeEmoticon(n *xhtml.Node) projection {
	typ := attr(n, "type")
	if glyph, ok := resolveEmoticon(typ); ok {
		return projection{body: glyph, formatted: glyph}
	}
	literal := "(" + typ + ")"
	return projection{body: literal, formatted: html.EscapeString(literal)}
}

// escapeText escapes a text node for the formatted-body projection and
// turns newlines into line breaks.
func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br/>")
}

func attr(n *xhtml.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
