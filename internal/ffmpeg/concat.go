package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

const concatListName = "concat_list.txt"

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs   []string
	ListPath string
	Output   string
	ReEncode bool
	// Duration is the expected length of the result, for progress.
	Duration float64
	Spec     RenderSpec
}

// ConcatListPath is where the concat demuxer list lives in a work dir.
func ConcatListPath(workDir string) string {
	return filepath.Join(workDir, concatListName)
}

// NeedsReencode reports whether the output container cannot take the
// scenes' H.264/AAC streams as they are.
func NeedsReencode(output string) bool {
	switch util.GetExtension(output) {
	case ".mp4", ".m4v", ".mov", ".mkv", ".ts":
		return false
	}
	return true
}

// BuildConcat joins intermediate scenes through the concat demuxer. The list
// file at ListPath must already exist, see WriteConcatList.
func BuildConcat(opts ConcatOptions) (Command, error) {
	if len(opts.Inputs) == 0 {
		return Command{}, errs.New(errs.ErrBuild, "no input files provided")
	}
	if opts.Output == "" {
		return Command{}, errs.New(errs.ErrBuild, "output path is required")
	}
	if opts.ListPath == "" {
		return Command{}, errs.New(errs.ErrBuild, "concat list path is required")
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", opts.ListPath,
		"-map", "0:v",
		"-map", "0:a",
	}

	if opts.ReEncode {
		args = append(args, reencodeArgs(opts.Output, opts.Spec.withDefaults())...)
	} else {
		args = append(args, "-c", "copy")
	}

	switch util.GetExtension(opts.Output) {
	case ".mp4", ".m4v", ".mov":
		if !opts.ReEncode {
			// ADTS framed AAC from the MPEG-TS scenes
			args = append(args, "-bsf:a", "aac_adtstoasc")
		}
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, opts.Output)

	label := "assemble"
	if opts.ReEncode {
		label = "assemble (re-encode)"
	}
	return Command{
		Label:    label,
		Args:     args,
		Output:   opts.Output,
		Duration: opts.Duration,
	}, nil
}

func reencodeArgs(output string, spec RenderSpec) []string {
	switch util.GetExtension(output) {
	case ".webm":
		return []string{"-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32", "-c:a", "libopus"}
	case ".avi":
		return []string{"-c:v", "mpeg4", "-q:v", "3", "-c:a", "libmp3lame"}
	}
	args := videoCodecArgs(spec)
	return append(args, "-c:a", spec.AudioCodec)
}

// WriteConcatList writes a concat demuxer list with one absolute path per
// line, in order.
func WriteConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return errs.Wrap(errs.ErrBuild, err, "resolve %s", input)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(absPath))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errs.Wrap(errs.ErrProcess, err, "failed to create concat file")
	}
	return nil
}

// escapeConcatPath closes the quote, emits an escaped quote and reopens.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
