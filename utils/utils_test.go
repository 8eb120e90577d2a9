package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ram@Gmail.com", "gmail.com"},
		{"  sita@zoho.com ", "zoho.com"},
		{"not-an-email", ""},
		{"trailing@", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EmailDomain(tt.in))
		})
	}
}

func TestIsDigits(t *testing.T) {
	assert.True(t, IsDigits("9812345678"))
	assert.False(t, IsDigits(""))
	assert.False(t, IsDigits("98-1234567"))
	assert.False(t, IsDigits("+9779812345"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "ra**@gmail.com", MaskEmail("rama@gmail.com"))
	assert.Equal(t, "a*@gmail.com", MaskEmail("ab@gmail.com"))
	assert.Equal(t, "nodomain", MaskEmail("nodomain"))
}

func TestHaversineKm(t *testing.T) {
	// Kathmandu to Pokhara is roughly 143 km as the crow flies.
	d := HaversineKm(27.7172, 85.3240, 28.2096, 83.9856)
	assert.InDelta(t, 143.0, d, 3.0)
	assert.InDelta(t, 0.0, HaversineKm(28.35, 83.56, 28.35, 83.56), 1e-9)
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "500 m", FormatDistance(0.5))
	assert.Equal(t, "250 m", FormatDistance(0.25))
	assert.Equal(t, "0 m", FormatDistance(0))
	assert.Equal(t, "1.00 km", FormatDistance(1))
	assert.Equal(t, "2.35 km", FormatDistance(2.349))
	assert.Equal(t, "1.00 km", FormatDistance(0.9996))
	assert.Equal(t, "999 m", FormatDistance(0.9994))
	assert.Equal(t, "13 m", FormatDistance(0.0126))
}

func TestParseCoordinate(t *testing.T) {
	assert.Equal(t, 28.35, ParseCoordinate("28.35"))
	assert.Equal(t, 0.0, ParseCoordinate(""))
	assert.Equal(t, 0.0, ParseCoordinate("north"))
	assert.Equal(t, 0.0, ParseCoordinate("NaN"))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 4.3, RoundTo(4.333, 1))
	assert.Equal(t, 3.5, RoundTo(3.46, 1))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
}
