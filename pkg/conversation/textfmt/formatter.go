// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package textfmt converts rendered notification HTML back to markdown or
// plain text for transports that cannot display HTML.
package textfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	strongRe     = regexp.MustCompile(`(?s)<strong>(.*?)</strong>`)
	emRe         = regexp.MustCompile(`(?s)<em>(.*?)</em>`)
	delRe        = regexp.MustCompile(`(?s)<del>(.*?)</del>`)
	codeRe       = regexp.MustCompile(`<code>(.*?)</code>`)
	preRe        = regexp.MustCompile(`(?s)<pre><code(?: class="language-([^"]*)")?>(.*?)</code></pre>`)
	linkRe       = regexp.MustCompile(`<a href=["']([^"']+)["'][^>]*>(.*?)</a>`)
	brRe         = regexp.MustCompile(`<br\s*/?>`)
	blockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe    = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	ulRe         = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe         = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe         = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	pRe          = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Markdown converts HTML to Mattermost-flavoured markdown.
func Markdown(htmlText string) string {
	return convert(htmlText, true)
}

// Plain converts HTML to plain text. Links keep their target in parentheses.
func Plain(htmlText string) string {
	return convert(htmlText, false)
}

func convert(text string, markdown bool) string {
	if text == "" {
		return ""
	}

	// Code blocks first (preserve content inside).
	text = preRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := preRe.FindStringSubmatch(match)
		content := strings.TrimSuffix(parts[2], "\n")
		if !markdown {
			return content
		}
		return "```" + parts[1] + "\n" + content + "\n```"
	})

	if markdown {
		text = codeRe.ReplaceAllString(text, "`$1`")
		text = strongRe.ReplaceAllString(text, "**$1**")
		text = emRe.ReplaceAllString(text, "_${1}_")
		text = delRe.ReplaceAllString(text, "~~$1~~")
		text = linkRe.ReplaceAllString(text, "[$2]($1)")
	} else {
		text = linkRe.ReplaceAllStringFunc(text, func(match string) string {
			parts := linkRe.FindStringSubmatch(match)
			label := tagRe.ReplaceAllString(parts[2], "")
			if label == parts[1] {
				return label
			}
			return label + " (" + parts[1] + ")"
		})
	}

	text = headingRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := headingRe.FindStringSubmatch(match)
		if !markdown {
			return parts[2] + "\n"
		}
		level, _ := strconv.Atoi(parts[1])
		return strings.Repeat("#", level) + " " + parts[2] + "\n"
	})

	text = blockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := blockquoteRe.FindStringSubmatch(match)
		lines := strings.Split(strings.TrimSpace(parts[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n"
	})

	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for _, item := range items {
			result = append(result, "- "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for i, item := range items {
			result = append(result, strconv.Itoa(i+1)+". "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = pRe.ReplaceAllString(text, "$1\n\n")
	text = brRe.ReplaceAllString(text, "\n")

	// Strip remaining HTML tags, then decode entities.
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
