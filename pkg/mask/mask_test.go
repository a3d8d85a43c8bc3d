package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"asha.rao@example.com", "as***@example.com"},
		{"a@example.com", "***"},
		{"abc", "***"},
		{"no-at-sign", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Email(tt.in), tt.in)
	}
}

func TestPhone(t *testing.T) {
	assert.Equal(t, "***3210", Phone("98765 43210"))
	assert.Equal(t, "***9369", Phone("+91 91692 69369"))
	assert.Equal(t, "***", Phone("123"))
}
