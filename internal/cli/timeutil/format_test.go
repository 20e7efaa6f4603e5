package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))

	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	assert.Equal(t, "Tue Mar 5 14:07:09 2024", FormatTime(ts))
}

func TestFormatListing(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

	assert.Equal(t, "-", FormatListing(time.Time{}, now))
	assert.Equal(t, "May 30 09:15", FormatListing(time.Date(2024, 5, 30, 9, 15, 0, 0, time.Local), now))
	assert.Equal(t, "Jan  3  2023", FormatListing(time.Date(2023, 1, 3, 9, 15, 0, 0, time.Local), now))
	assert.Equal(t, "Jul  1  2024", FormatListing(time.Date(2024, 7, 1, 0, 0, 0, 0, time.Local), now))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{15 * time.Second, "15s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{time.Hour + 5*time.Second, "1h 0m 5s"},
		{72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}
