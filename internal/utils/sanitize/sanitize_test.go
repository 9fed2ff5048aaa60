package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"removes script tags", `<script>alert('xss')</script>Design sync`, "Design sync"},
		{"removes image with onerror", `<img src=x onerror=alert(1)><p>Hello <b>team</b></p>`, "  Hello  team  "},
		{"drops dangerous attributes", `<p onclick="alert('xss')">Safe text</p>`, " Safe text "},
		{"keeps markdown", "# Retro\n**went well**\n[board](http://example.com)", "# Retro\n**went well**\n[board](http://example.com)"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "<")
			assert.NotContains(t, got, ">")
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips wrapping tag", "<p>hi</p>", "hi"},
		{"single space between tags", "<b>a</b> <b>b</b>", "a b"},
		{"trims", "  <p>Standup in 5</p>  ", "Standup in 5"},
		{"script removed", `  <script>alert('xss')</script>Ship it  `, "Ship it"},
		{"keeps line breaks", "  # Heading\n**bold**   text  ", "# Heading\n**bold** text"},
		{"nbsp becomes space", "a\u00a0\u00a0b", "a b"},
		{"entities unescaped", "Tom &amp; Jerry", "Tom & Jerry"},
		{"only markup", "<br><hr>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestLine(t *testing.T) {
	assert.Equal(t, "Design Guild", Line("  Design\n<b>Guild</b>\n"))
	assert.Equal(t, "Sprint retro", Line("Sprint\r\nretro"))
	assert.Empty(t, Line("<p> </p>"))
}

func TestOptional(t *testing.T) {
	assert.Nil(t, Optional(nil))

	blank := "  <p></p> "
	assert.Nil(t, Optional(&blank))

	desc := "<i>Weekly</i> design syncs"
	got := Optional(&desc)
	if assert.NotNil(t, got) {
		assert.Equal(t, "Weekly design syncs", *got)
	}
}
