package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markup and symbols", "Hello, World!! <tag> #1", "Hello, World!! tag 1"},
		{"keeps punctuation", "Is it? Yes. No! a-b, c", "Is it? Yes. No! a-b, c"},
		{"trims", "  \n padded \t ", "padded"},
		{"unicode letters", "Café Müller © 2024", "Café Müller  2024"},
		{"underscore kept", "snake_case", "snake_case"},
		{"only noise", "@#$%^&*()", ""},
		{"empty", "", ""},
		{"newlines inside kept", "line one \nline two", "line one \nline two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
