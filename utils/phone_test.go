package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"BareTenDigits", "9876543210", "919876543210"},
		{"WithSpaces", "98765 43210", "919876543210"},
		{"WithDashes", "98765-43210", "919876543210"},
		{"WithCountryCode", "919876543210", "919876543210"},
		{"WithPlusPrefix", "+91 98765 43210", "919876543210"},
		{"TrunkZeroDropped", "09876543210", "919876543210"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("TooShortRejected", func(t *testing.T) {
		_, err := NormalizePhone("12345")
		assert.Error(t, err)
	})

	t.Run("TooLongRejected", func(t *testing.T) {
		_, err := NormalizePhone("1234567890123456")
		assert.Error(t, err)
	})

	t.Run("NoDigitsRejected", func(t *testing.T) {
		_, err := NormalizePhone("n/a")
		assert.Error(t, err)
	})
}

func TestContentHash(t *testing.T) {
	a := ContentHash("नमस्ते")
	b := ContentHash("नमस्ते")
	c := ContentHash("नमस्ते!")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
