package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/reelcompiler/internal/errs"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "r_frame_rate": "30000/1001", "duration": "12.480000"},
    {"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000", "duration": "12.500000"},
    {"codec_type": "video", "codec_name": "mjpeg", "width": 300, "height": 300, "disposition": {"attached_pic": 1}}
  ],
  "format": {"duration": "12.500000", "bit_rate": "2500000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe("/src/a.mp4", []byte(probeJSON))
	require.NoError(t, err)

	assert.Equal(t, "/src/a.mp4", info.FilePath)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.True(t, info.HasVideo)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.True(t, info.HasAudio)
	assert.Equal(t, int64(128000), info.AudioBitrate)
	assert.Equal(t, int64(2500000), info.Bitrate)
}

func TestParseProbeFallsBackToStreamDuration(t *testing.T) {
	info, err := parseProbe("a.mkv", []byte(`{
		"streams": [{"codec_type": "video", "codec_name": "vp9", "duration": "3.250"}],
		"format": {"duration": "N/A"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 3250*time.Millisecond, info.Duration)
	assert.False(t, info.HasAudio)
}

func TestParseProbeAudioOnly(t *testing.T) {
	info, err := parseProbe("a.m4a", []byte(`{
		"streams": [{"codec_type": "audio", "codec_name": "aac"}],
		"format": {"duration": "60.0"}
	}`))
	require.NoError(t, err)
	assert.False(t, info.HasVideo)
	assert.True(t, info.HasAudio)
}

func TestParseProbeInvalidJSON(t *testing.T) {
	_, err := parseProbe("a.mp4", []byte("Invalid data found when processing input"))
	assert.ErrorIs(t, err, errs.ErrProcess)
}
