package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayouts(t *testing.T) {
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		value   string
		layouts []string
	}{
		{"2026-03-15", nil},
		{"15-03-2026", nil},
		{"03/15/2026", UploadLayouts},
		{"15-Mar-26", UploadLayouts},
		{"03-15-2026", UploadLayouts},
	} {
		got, err := Parse(tc.value, tc.layouts...)
		require.NoError(t, err, tc.value)
		assert.Equal(t, want, got, tc.value)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = Parse("next tuesday", UploadLayouts...)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
