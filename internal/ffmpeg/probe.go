package ffmpeg

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kikiluvv/reelcompiler/internal/clips"
	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

// ProbeVideo extracts metadata from a video file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, errs.New(errs.ErrConfig, "file path is required")
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrCancelled, ctx.Err(), "probe %s", filePath)
		}
		return nil, errs.Wrap(errs.ErrProcess, err, "ffprobe %s: %s", filePath, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(filePath, output)
}

// ProbeClip reports the duration and audio presence of a source clip.
// Files without a video stream or a positive duration are rejected.
func (e *Executor) ProbeClip(ctx context.Context, path string) (clips.Probe, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return clips.Probe{}, err
	}
	if !info.HasVideo {
		return clips.Probe{}, errs.New(errs.ErrProcess, "%s has no video stream", path)
	}
	if info.Duration <= 0 {
		return clips.Probe{}, errs.New(errs.ErrProcess, "%s has no usable duration", path)
	}
	return clips.Probe{Duration: info.Duration.Seconds(), HasAudio: info.HasAudio}, nil
}

func parseProbe(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, errs.Wrap(errs.ErrProcess, err, "failed to parse ffprobe output")
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	// Container duration first, longest stream as fallback
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && dur > 0 {
		info.Duration = util.Seconds(dur)
	}

	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	var longest float64
	for _, stream := range probe.Streams {
		if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil && dur > longest {
			longest = dur
		}
		switch stream.CodecType {
		case "video":
			// Cover art shows up as a single-frame video stream
			if stream.Disposition.AttachedPic == 1 || info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
			if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
				info.AudioBitrate = br
			}
		}
	}
	if info.Duration == 0 && longest > 0 {
		info.Duration = util.Seconds(longest)
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		RFrameRate  string `json:"r_frame_rate"`
		BitRate     string `json:"bit_rate"`
		Duration    string `json:"duration"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

var _ clips.Prober = (*Executor)(nil)
