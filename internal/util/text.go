package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces = regexp.MustCompile(`\s+`)
	reBreaks = regexp.MustCompile(`(?i)<br\s*/?>`)
	reTags   = regexp.MustCompile(`<[^>]*>`)
)

var entityReplacer = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "\u00a0", " ")

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// MarkupLines turns cell markup into trimmed, non-empty text lines. <br> and
// block boundaries become line breaks.
func MarkupLines(markup string) []string {
	s := reBreaks.ReplaceAllString(markup, "\n")
	s = strings.NewReplacer("</div>", "\n", "</p>", "\n", "</li>", "\n").Replace(s)
	s = reTags.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	return SplitLines(s)
}

func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = NormalizeSpaces(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinLines collapses multi-line text into one line using sep.
func JoinLines(text, sep string) string {
	return strings.Join(SplitLines(text), sep)
}

func IntPtr(v int) *int {
	return &v
}
