// Package sanitize turns user supplied text into plain text before it is stored or
// broadcast. Gateways assume their input already went through here.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict drops every tag and attribute. A bluemonday.Policy is safe for concurrent use
// only while nobody mutates it, so it is built once and never touched again.
var strict = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true) // "<b>a</b><b>b</b>" must not become "ab"
	return p
}()

// Sanitize strips all HTML from s and leaves everything else, markdown included, as is.
func Sanitize(s string) string {
	return strict.Sanitize(s)
}

// Clean is for multi-line bodies: messages, note blocks, todo items. It strips HTML,
// unescapes entities, turns non-breaking spaces into spaces and collapses runs of blanks
// inside each line. Line breaks survive.
//
//   - "<p>hi</p>" -> "hi"
//   - "<b>a</b> <b>b</b>" -> "a b"
//   - "standup\n<i>in 5</i>" -> "standup\nin 5"
func Clean(s string) string {
	out := html.UnescapeString(strings.TrimSpace(strict.Sanitize(s)))
	out = strings.ReplaceAll(out, "\u00a0", " ")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// Line is for single-line fields such as space names and note titles: Clean, then every
// line break becomes a space.
func Line(s string) string {
	return strings.Join(strings.Fields(Clean(s)), " ")
}

// Optional cleans an optional body. It returns nil for nil input and for text that is
// empty once cleaned.
func Optional(v *string) *string {
	if v == nil {
		return nil
	}
	c := Clean(*v)
	if c == "" {
		return nil
	}
	return &c
}
