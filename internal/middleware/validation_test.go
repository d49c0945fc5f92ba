package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "hello", false},
		{"valid unicode", "héllo wörld 你好", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 100001), true},
		{"at limit", strings.Repeat("a", 100000), false},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("0190b9f9-9c7a-7cc8-b2d1-6d6a2b3c4d5e"))
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("not-a-uuid"))
	assert.Error(t, ValidateID("0190b9f9-9c7a-7cc8-b2d1"))
}

func TestValidateTitle(t *testing.T) {
	assert.NoError(t, ValidateTitle(""))
	assert.NoError(t, ValidateTitle("Homework Help"))
	assert.NoError(t, ValidateTitle(strings.Repeat("ü", 200)), "limit counts runes, not bytes")
	assert.Error(t, ValidateTitle(strings.Repeat("a", 201)))
	assert.Error(t, ValidateTitle(string([]byte{0xff})))
}
