// Copyright 2024-2026 Aiku AI

// Package htmlfmt renders post and reply bodies written in lightweight
// markdown as HTML for notification messages.
package htmlfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiku/threadtag/pkg/conversation/mention"
)

// Rendered holds the original body and its HTML rendering.
type Rendered struct {
	Body string
	HTML string
}

// Options tweaks rendering.
type Options struct {
	// Mention reports whether an @-mention should be emphasised. When nil no
	// mention is emphasised.
	Mention func(name string) bool
}

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^*\w])_(.+?)_([^*\w]|$)`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	codeRe       = regexp.MustCompile("`([^`]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	ulRe         = regexp.MustCompile(`^[-*]\s+(.+)$`)
	olRe         = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	blockquoteRe = regexp.MustCompile(`^>\s+(.+)$`)
)

type codeBlock struct {
	lang    string
	content string
}

func codeBlockPlaceholder(i int) string {
	return "\x00CODEBLOCK" + strconv.Itoa(i) + "\x00"
}

func mentionPlaceholder(i int) string {
	return "\x00MENTION" + strconv.Itoa(i) + "\x00"
}

// Parse renders text as HTML without emphasising mentions.
func Parse(text string) *Rendered {
	return ParseWithOptions(text, Options{})
}

// ParseWithOptions renders text as HTML. All user text is escaped; links are
// only kept for http, https and mailto targets.
func ParseWithOptions(text string, opts Options) *Rendered {
	if text == "" {
		return &Rendered{}
	}

	// NUL is reserved for placeholders.
	processed := strings.ReplaceAll(text, "\x00", "")

	// Step 1: Extract code blocks into placeholders.
	var codeBlocks []codeBlock
	processed = codeBlockRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		cb := codeBlock{}
		if len(parts) >= 3 {
			cb.lang = parts[1]
			cb.content = parts[2]
		}
		codeBlocks = append(codeBlocks, cb)
		return codeBlockPlaceholder(len(codeBlocks) - 1)
	})

	// Step 2: Swap accepted mentions for placeholders so inline formatting
	// can't split a name.
	var mentions []string
	if opts.Mention != nil {
		var sb strings.Builder
		last := 0
		for _, tok := range mention.Extract(processed) {
			if !opts.Mention(tok.Text) {
				continue
			}
			sb.WriteString(processed[last : tok.Start-1])
			sb.WriteString(mentionPlaceholder(len(mentions)))
			mentions = append(mentions, tok.Text)
			last = tok.End
		}
		sb.WriteString(processed[last:])
		processed = sb.String()
	}

	// Step 3: Structural elements, line by line.
	lines := strings.Split(processed, "\n")
	var result []string
	var listType string
	var listItems []string

	flushList := func() {
		if len(listItems) == 0 {
			return
		}
		result = append(result, "<"+listType+">"+strings.Join(listItems, "")+"</"+listType+">")
		listItems = nil
		listType = ""
	}

	for _, line := range lines {
		if m := blockquoteRe.FindStringSubmatch(line); len(m) >= 2 {
			flushList()
			result = append(result, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
			continue
		}
		if m := headingRe.FindStringSubmatch(line); len(m) >= 3 {
			flushList()
			lvl := strconv.Itoa(min(len(m[1]), 6))
			result = append(result, "<h"+lvl+">"+html.EscapeString(m[2])+"</h"+lvl+">")
			continue
		}
		if m := ulRe.FindStringSubmatch(line); len(m) >= 2 {
			if listType != "ul" {
				flushList()
				listType = "ul"
			}
			listItems = append(listItems, "<li>"+html.EscapeString(m[1])+"</li>")
			continue
		}
		if m := olRe.FindStringSubmatch(line); len(m) >= 2 {
			if listType != "ol" {
				flushList()
				listType = "ol"
			}
			listItems = append(listItems, "<li>"+html.EscapeString(m[1])+"</li>")
			continue
		}
		flushList()
		result = append(result, html.EscapeString(line))
	}
	flushList()

	formatted := strings.Join(result, "\n")

	// Step 4: Inline formatting.
	formatted = codeRe.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = boldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicRe.ReplaceAllString(formatted, "$1<em>$2</em>$3")
	formatted = strikeRe.ReplaceAllString(formatted, "<del>$1</del>")

	formatted = linkRe.ReplaceAllStringFunc(formatted, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		if len(parts) < 3 {
			return match
		}
		label, href := parts[1], parts[2]
		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
			return `<a href="` + href + `">` + label + `</a>`
		}
		return label
	})

	// Step 5: Restore mentions.
	for i, name := range mentions {
		formatted = strings.Replace(formatted, mentionPlaceholder(i), "<strong>@"+html.EscapeString(name)+"</strong>", 1)
	}

	// Step 6: Paragraphs and line breaks.
	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")
	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}

	// Step 7: Restore code blocks last so their newlines survive.
	for i, cb := range codeBlocks {
		escaped := html.EscapeString(cb.content)
		var replacement string
		if cb.lang != "" {
			replacement = `<pre><code class="language-` + html.EscapeString(cb.lang) + `">` + escaped + `</code></pre>`
		} else {
			replacement = `<pre><code>` + escaped + `</code></pre>`
		}
		formatted = strings.Replace(formatted, codeBlockPlaceholder(i), replacement, 1)
	}

	// Step 6: Paragraphs and line breaks.
	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")
	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}

	return &Rendered{
		Body: text,
		HTML: formatted,
	}
}
