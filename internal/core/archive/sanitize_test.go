package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123.png", "abc123.png"},
		{"../../etc/passwd", "....etcpasswd"},
		{"a/b\\c", "abc"},
		{`what?<is>:this*|"`, "whatisthis"},
		{"tab\there", "tabhere"},
		{"..", ""},
		{".", ""},
		{"CON", ""},
		{"lpt1.txt", ""},
		{"console.png", "console.png"},
		{"trailing. . ", "trailing"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	assert.Len(t, SanitizeName(long), 255)

	// multi-byte runes are not split
	multi := strings.Repeat("é", 200)
	got := SanitizeName(multi)
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasPrefix(multi, got))
	assert.Equal(t, 0, len(got)%2)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("abc123"))
	assert.NoError(t, ValidateID("550e8400-e29b-41d4-a716-446655440000"))

	for _, id := range []string{"", "../../etc/passwd", "a/b", "..", "nul", "x.", strings.Repeat("a", 252)} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, "id %q", id)
	}
}
