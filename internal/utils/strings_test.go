package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "completed",
			expected: []string{"completed"},
		},
		{
			name:     "varied spacing",
			input:    "completed,  failed , running",
			expected: []string{"completed", "failed", "running"},
		},
		{
			name:     "trailing comma",
			input:    "failed,",
			expected: []string{"failed"},
		},
		{
			name:     "leading comma",
			input:    ",failed",
			expected: []string{"failed"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "repeats collapsed in first-seen order",
			input:    "failed,completed, failed,completed",
			expected: []string{"failed", "completed"},
		},
		{
			name:     "multiple commas",
			input:    ",,nelder-mead,,l-bfgs,,",
			expected: []string{"nelder-mead", "l-bfgs"},
		},
		{
			name:     "internal spaces preserved",
			input:    "deuteron scalar, deuteron vector",
			expected: []string{"deuteron scalar", "deuteron vector"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}
