package surface

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end the current line when they open or close.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "hr": true, "ul": true, "ol": true, "table": true,
}

// skipTags have content that is never shown.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true,
}

// ToText converts an HTML status fragment to plain text. Block elements and
// <br> become line breaks, entities are decoded and all other markup is
// dropped. Runs of blank lines collapse to one and the result carries no
// leading or trailing blank lines.
func ToText(fragment string) string {
	return strings.Join(ToLines(fragment), "\n")
}

// ToLines is ToText split into lines.
func ToLines(fragment string) []string {
	z := html.NewTokenizer(strings.NewReader(fragment))

	var (
		lines   []string
		current strings.Builder
		skip    int
	)
	breakLine := func() {
		lines = append(lines, strings.TrimRight(current.String(), " \t"))
		current.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if current.Len() > 0 {
				breakLine()
			}
			return compactLines(lines)
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			for i, part := range strings.Split(text, "\n") {
				if i > 0 {
					breakLine()
				}
				current.WriteString(part)
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] && (tag == "br" || current.Len() > 0) {
				breakLine()
			}
		}
	}
}

func compactLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
