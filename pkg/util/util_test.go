package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"45.5", 45500 * time.Millisecond, false},
		{"01:30", 90 * time.Second, false},
		{"00:00:03.25", 3250 * time.Millisecond, false},
		{"01:00:00.00", time.Hour, false},
		{"-00:00:00.50", -500 * time.Millisecond, false},
		{"N/A", 0, true},
		{"1:2:3:4", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "4.000", FormatSeconds(4))
	assert.Equal(t, "1.235", FormatSeconds(1.2346))
	assert.Equal(t, "00:01:05.500", FormatDuration(Seconds(65.5)))
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 0.0, ParseFrameRate("30/0"))
	assert.Equal(t, 0.0, ParseFrameRate("garbage"))
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.ts")
	full := filepath.Join(dir, "full.ts")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(full, []byte("data"), 0o644))

	assert.False(t, NonEmptyFile(empty))
	assert.True(t, NonEmptyFile(full))
	assert.False(t, NonEmptyFile(filepath.Join(dir, "missing.ts")))
	assert.False(t, NonEmptyFile(dir))
	assert.Equal(t, int64(4), FileSize(full))
	assert.NoError(t, Readable(full))
	assert.Error(t, Readable(filepath.Join(dir, "missing.ts")))
	assert.Equal(t, ".mp4", GetExtension("/a/B.MP4"))
}
