package textutil

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestOneLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "short text unchanged",
			input:    "Expected 50",
			maxLen:   20,
			expected: "Expected 50",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxLen:   5,
			expected: "hello",
		},
		{
			name:     "long text cut",
			input:    "Expected derived measure power to be 50",
			maxLen:   15,
			expected: "Expected der...",
		},
		{
			name:     "stderr lines joined",
			input:    "error: connection refused\r\n  at Tinkwell.Store\n\n",
			maxLen:   0,
			expected: "error: connection refused at Tinkwell.Store",
		},
		{
			name:     "tabs and spaces collapsed",
			input:    "a\t\tb    c",
			maxLen:   20,
			expected: "a b c",
		},
		{
			name:     "tiny limit raised",
			input:    "abcdefgh",
			maxLen:   1,
			expected: "a...",
		},
		{
			name:     "negative limit disables cut",
			input:    "abcdefgh",
			maxLen:   -1,
			expected: "abcdefgh",
		},
		{
			name:     "whitespace only",
			input:    " \n\t ",
			maxLen:   10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OneLine(tt.input, tt.maxLen))
		})
	}
}

func TestOneLine_CutsRunes(t *testing.T) {
	result := OneLine("Température élevée", 8)

	assert.Equal(t, "Tempé...", result)
	assert.True(t, utf8.ValidString(result))
	assert.Equal(t, 8, utf8.RuneCountInString(result))
}
