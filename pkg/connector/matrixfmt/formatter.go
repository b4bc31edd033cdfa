// Copyright 2024-2026 Aiku AI

// Package matrixfmt converts Matrix HTML to Skype rich-text markup.
package matrixfmt

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"maunium.net/go/mautrix/event"
)

// Parse converts Matrix message content to Skype markup. Plain-text
// messages are escaped; HTML bodies are parsed into a node tree and walked
// depth-first. Unknown tags are dropped while their children are kept, so
// no content is ever lost to an unrecognized element.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return html.EscapeString(content.Body)
	}
	return ParseHTML(content.FormattedBody)
}

// ParseHTML converts a Matrix HTML string to Skype markup.
func ParseHTML(input string) string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(input), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return html.EscapeString(input)
	}
	var sb strings.Builder
	for _, n := range nodes {
		encodeNode(&sb, n)
	}
	return sb.String()
}

func encodeNode(sb *strings.Builder, n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		// Raw pass-through: the remote side does its own decoding.
		sb.WriteString(n.Data)
	case xhtml.ElementNode:
		encodeElement(sb, n)
	default:
		encodeChildren(sb, n)
	}
}

func encodeChildren(sb *strings.Builder, n *xhtml.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		encodeNode(sb, child)
	}
}

func encodeElement(sb *strings.Builder, n *xhtml.Node) {
	switch n.Data {
	case "strong", "b":
		wrapTag(sb, n, "b", "*")
	case "em", "i":
		wrapTag(sb, n, "i", "_")
	case "del", "s", "strike":
		wrapTag(sb, n, "s", "~")
	case "code", "pre":
		// pre>code pairs collapse into a single code wrapper.
		if n.Data == "pre" && n.FirstChild != nil && n.FirstChild == n.LastChild &&
			n.FirstChild.Type == xhtml.ElementNode && n.FirstChild.Data == "code" {
			n = n.FirstChild
		}
		sb.WriteString(`<pre raw_pre="{code}" raw_post="{code}">`)
		encodeChildren(sb, n)
		sb.WriteString(`</pre>`)
	case "a":
		encodeLink(sb, n)
	case "br":
		sb.WriteString("\n")
	case "mx-reply":
		// Matrix reply fallback boilerplate, never forwarded.
	default:
		encodeChildren(sb, n)
	}
}

func wrapTag(sb *strings.Builder, n *xhtml.Node, tag, raw string) {
	sb.WriteString("<" + tag + ` raw_pre="` + raw + `" raw_post="` + raw + `">`)
	encodeChildren(sb, n)
	sb.WriteString("</" + tag + ">")
}

func encodeLink(sb *strings.Builder, n *xhtml.Node) {
	var href string
	for _, a := range n.Attr {
		if a.Key == "href" {
			href = a.Val
			break
		}
	}
	// Only the href value is re-escaped; link text is recursed like any
	// other child content.
	sb.WriteString(`<a href="` + html.EscapeString(href) + `">`)
	encodeChildren(sb, n)
	sb.WriteString(`</a>`)
}
