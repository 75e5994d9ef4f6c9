package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	HasVideo     bool
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// ProgressFunc receives the fraction of the expected output written so far.
// Values never decrease within one Run.
type ProgressFunc func(fraction float64)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args []string
	// Output, when set, must exist and be non-empty after a zero exit.
	Output string
	// Duration is the expected output length in seconds, used for progress.
	Duration        float64
	Parser          TimeParser
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Command is a fully built ffmpeg invocation and the file it produces.
type Command struct {
	Label    string
	Args     []string
	Output   string
	Duration float64
}

// RunOptions converts the command for Executor.Run.
func (c Command) RunOptions(progress ProgressFunc, logLine func(string)) RunOptions {
	return RunOptions{
		Args:            c.Args,
		Output:          c.Output,
		Duration:        c.Duration,
		ProgressHandler: progress,
		LogHandler:      logLine,
	}
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultSampleRate = 48000
	DefaultPixFmt     = "yuv420p"
)

// RenderSpec is the canonical output every scene is encoded to so the
// assembler can join scenes without re-encoding.
type RenderSpec struct {
	Width      int
	Height     int
	FPS        float64
	SampleRate int
	VideoCodec string
	AudioCodec string
	Preset     string
	CRF        int
	Volume     float64
}

func (s RenderSpec) withDefaults() RenderSpec {
	if s.VideoCodec == "" {
		s.VideoCodec = DefaultVideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = DefaultAudioCodec
	}
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}
	return s
}
