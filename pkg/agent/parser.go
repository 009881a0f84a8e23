package agent

// Model output parsing. The model's text is advisory: every helper returns
// a zero value when the expected shape is missing, never an error.

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	headingMarks    = regexp.MustCompile(`^\s*(?:#{1,6}\s*|【|[一二三四五六七八九十]+[、.]\s*)`)
	headingTail     = regexp.MustCompile(`[】:：]\s*$`)
	headingNumbered = regexp.MustCompile(`^[一二三四五六七八九十]+[、.]`)
	listMarker      = regexp.MustCompile(`^(?:[-*•‣·]|\d+\s*[.、．)]|[一二三四五六七八九十]+[、.])\s*`)
)

// Section returns the body under the first heading matching name, up to the
// next heading or the end of text. Recognized heading forms: "## name",
// "name：", "name:", "【name】", "一、name". Unknown headings yield "".
func Section(text, name string) string {
	if text == "" || name == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if matchesHeading(line, name) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}
	var body []string
	for _, line := range lines[start:] {
		if isHeading(line) {
			break
		}
		body = append(body, line)
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// ListItems returns the bullet or numbered entries in text with their
// markers stripped. Unmarked lines are ignored.
func ListItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !listMarker.MatchString(trimmed) {
			continue
		}
		if item := strings.TrimSpace(listMarker.ReplaceAllString(trimmed, "")); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// SectionItems is ListItems applied to a section body. A section without
// marked items falls back to one entry per non-empty line.
func SectionItems(text, name string) []string {
	body := Section(text, name)
	if body == "" {
		return nil
	}
	if items := ListItems(body); len(items) > 0 {
		return items
	}
	var items []string
	for _, line := range strings.Split(body, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			items = append(items, t)
		}
	}
	return items
}

// FirstLine returns the first non-empty line of text, trimmed.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

func matchesHeading(line, name string) bool {
	if !isHeading(line) {
		return false
	}
	stripped := stripHeadingMarks(line)
	return stripped == name || strings.HasPrefix(stripped, name)
}

func stripHeadingMarks(line string) string {
	s := headingMarks.ReplaceAllString(line, "")
	s = headingTail.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// isHeading reports whether the line reads as a section label: markdown
// hashes, a 【 bracket, a Chinese ordinal, or a short line ending in a colon.
func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "【") {
		return true
	}
	if headingNumbered.MatchString(trimmed) {
		return true
	}
	return headingTail.MatchString(trimmed) && utf8.RuneCountInString(trimmed) <= 24
}
