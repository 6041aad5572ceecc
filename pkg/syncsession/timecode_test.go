package syncsession

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimecode(t *testing.T) {
	tests := []struct {
		tc   string
		fps  float64
		want float64
	}{
		{"00:00:00:00", 25, 0},
		{"00:00:01:00", 25, 1},
		{"01:00:00:00", 25, 3600},
		{"00:00:00:12", 25, 0.48},
		{"00:00:41:18", 25, 41.72},
		{"00:01:00:29", 30, 60 + 29.0/30},
	}
	for _, tt := range tests {
		t.Run(tt.tc, func(t *testing.T) {
			got, err := ParseTimecode(tt.tc, tt.fps)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseTimecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		tc   string
		fps  float64
	}{
		{"frame equals fps", "00:00:00:25", 25},
		{"frame above fps", "00:00:00:30", 25},
		{"three groups", "00:00:00", 25},
		{"single digits", "0:0:0:0", 25},
		{"semicolon drop frame", "00:00:00;10", 29.97},
		{"trailing text", "00:00:00:00x", 25},
		{"minutes overflow", "00:60:00:00", 25},
		{"empty", "", 25},
		{"zero fps", "00:00:00:00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTimecode(tt.tc, tt.fps)
			require.Error(t, err)

			var tcErr *InvalidTimecodeError
			assert.True(t, errors.As(err, &tcErr))
			assert.ErrorIs(t, err, ErrInvalidTimecode)
			assert.Equal(t, tt.tc, tcErr.Value)
		})
	}
}

func TestFormatTimecode(t *testing.T) {
	assert.Equal(t, "00:00:00:00", FormatTimecode(0, 25))
	assert.Equal(t, "00:00:41:18", FormatTimecode(41.72, 25))
	assert.Equal(t, "01:00:00:00", FormatTimecode(3600, 25))
	assert.Equal(t, "00:00:00:00", FormatTimecode(-3, 25))

	secs, err := ParseTimecode(FormatTimecode(83.48, 25), 25)
	require.NoError(t, err)
	assert.InDelta(t, 83.48, secs, 1e-9)
}
