// Package notetext turns the HTML fragments of notification subjects and
// bodies into plain terminal text.
package notetext

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end the current line when they close.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "tr": true,
}

// Plain strips markup from fragment, keeping text and turning block
// elements into line breaks. Entities are decoded.
func Plain(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidy(b.String())

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case tag == "br":
				b.WriteByte('\n')
			case tag == "li":
				b.WriteString("• ")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		}
	}
}

// tidy collapses runs of blank lines and trims each line.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Line is Plain folded onto a single line, for list rows.
func Line(fragment string) string {
	return strings.Join(strings.Fields(Plain(fragment)), " ")
}
