package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"

	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/internal/planner"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

// ScenePath is the intermediate file scene index renders to.
func ScenePath(workDir string, index int) string {
	return filepath.Join(workDir, fmt.Sprintf("scene_%04d.ts", index))
}

// BuildScene turns one scene plan into an ffmpeg invocation that renders
// it at the canonical size, frame rate and audio format. It does no I/O.
//
// Every cell becomes its own input so the same clip can appear twice with
// different windows. Cells are scaled to cover their tile and centre
// cropped, then stacked row by row. Audio from cells that have it is
// mixed; scenes without any audio get a silent stereo track so every
// intermediate has the same stream layout.
func BuildScene(plan planner.ScenePlan, spec RenderSpec, workDir string) (Command, error) {
	spec = spec.withDefaults()
	if err := validateScene(plan, spec); err != nil {
		return Command{}, err
	}

	dim := plan.Layout.Dim()
	cellW, cellH := spec.Width/dim, spec.Height/dim
	dur := util.FormatSeconds(plan.Duration)
	out := ScenePath(workDir, plan.Index)

	var args []string
	for _, c := range plan.Cells {
		args = append(args, cellInput(c, dur)...)
	}

	audioInputs := lo.FilterMap(plan.Cells, func(c planner.Cell, i int) (int, bool) {
		return i, c.Clip.HasAudio
	})
	silentInput := -1
	if len(audioInputs) == 0 {
		silentInput = len(plan.Cells)
		args = append(args,
			"-f", "lavfi",
			"-t", dur,
			"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", spec.SampleRate),
		)
	}

	g := &FilterGraph{}
	tile := NewFilterBuilder().
		Cover(cellW, cellH).
		CropCenter(cellW, cellH).
		SquarePixels().
		FPS(spec.FPS).
		PixelFormat(DefaultPixFmt).
		ResetPTS().
		Build()

	if dim == 1 {
		g.Chain([]string{"0:v"}, tile, "vout")
	} else {
		for i := range plan.Cells {
			g.Chain([]string{fmt.Sprintf("%d:v", i)}, tile, fmt.Sprintf("v%d", i))
		}
		rows := make([]string, dim)
		for r := range dim {
			cells := lo.Times(dim, func(c int) string { return fmt.Sprintf("v%d", r*dim+c) })
			rows[r] = fmt.Sprintf("row%d", r)
			g.Chain(cells, fmt.Sprintf("hstack=inputs=%d", dim), rows[r])
		}
		g.Chain(rows, fmt.Sprintf("vstack=inputs=%d", dim), "vout")
	}

	audio := NewFilterBuilder().
		Resample(spec.SampleRate).
		Stereo().
		Volume(spec.Volume).
		Build()

	switch len(audioInputs) {
	case 0:
		g.Chain([]string{fmt.Sprintf("%d:a", silentInput)}, "anull", "aout")
	case 1:
		g.Chain([]string{fmt.Sprintf("%d:a", audioInputs[0])}, audio, "aout")
	default:
		labels := make([]string, len(audioInputs))
		for i, in := range audioInputs {
			labels[i] = fmt.Sprintf("a%d", in)
			g.Chain([]string{fmt.Sprintf("%d:a", in)}, audio, labels[i])
		}
		g.Chain(labels, fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=0:normalize=0", len(labels)), "aout")
	}

	args = append(args,
		"-filter_complex", g.String(),
		"-map", "[vout]",
		"-map", "[aout]",
		"-t", dur,
	)
	args = append(args, videoCodecArgs(spec)...)
	args = append(args,
		"-r", formatFloat(spec.FPS),
		"-c:a", spec.AudioCodec,
		"-ar", strconv.Itoa(spec.SampleRate),
		"-ac", "2",
		"-f", "mpegts",
		out,
	)

	return Command{
		Label:    fmt.Sprintf("scene %d (%s)", plan.Index+1, plan.Layout),
		Args:     args,
		Output:   out,
		Duration: plan.Duration,
	}, nil
}

func validateScene(plan planner.ScenePlan, spec RenderSpec) error {
	if planner.Layouts.Parse(plan.Layout.Value) == nil {
		return errs.New(errs.ErrBuild, "scene %d: unknown layout %q", plan.Index, plan.Layout.Value)
	}
	if plan.Duration <= 0 {
		return errs.New(errs.ErrBuild, "scene %d: duration %v must be positive", plan.Index, plan.Duration)
	}
	if len(plan.Cells) != plan.Layout.Cells() {
		return errs.New(errs.ErrBuild, "scene %d: %s needs %d clips, got %d",
			plan.Index, plan.Layout, plan.Layout.Cells(), len(plan.Cells))
	}
	dim := plan.Layout.Dim()
	if spec.Width <= 0 || spec.Height <= 0 || spec.Width%dim != 0 || spec.Height%dim != 0 {
		return errs.New(errs.ErrBuild, "scene %d: %dx%d cannot be split into a %dx%d grid",
			plan.Index, spec.Width, spec.Height, dim, dim)
	}
	if spec.FPS <= 0 {
		return errs.New(errs.ErrBuild, "scene %d: fps %v must be positive", plan.Index, spec.FPS)
	}
	for i, c := range plan.Cells {
		if c.Clip.Path == "" {
			return errs.New(errs.ErrBuild, "scene %d cell %d: empty clip path", plan.Index, i)
		}
		if c.Trim.Duration != plan.Duration {
			return errs.New(errs.ErrBuild, "scene %d cell %d: window of %vs in a %vs scene",
				plan.Index, i, c.Trim.Duration, plan.Duration)
		}
		if !c.Trim.Within(c.Clip.Duration) {
			return errs.New(errs.ErrBuild, "scene %d cell %d: window %+v does not fit %s (%.3fs)",
				plan.Index, i, c.Trim, c.Clip.Path, c.Clip.Duration)
		}
	}
	return nil
}

// cellInput seeks before -i so decoding starts at the window. Looping
// inputs repeat the clip and -t cuts it at the scene length.
func cellInput(c planner.Cell, dur string) []string {
	var args []string
	if c.Trim.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	if c.Trim.Start > 0 {
		args = append(args, "-ss", util.FormatSeconds(c.Trim.Start))
	}
	return append(args, "-t", dur, "-i", c.Clip.Path)
}

func videoCodecArgs(spec RenderSpec) []string {
	args := []string{"-c:v", spec.VideoCodec}
	if spec.Preset != "" {
		args = append(args, "-preset", spec.Preset)
	}
	if spec.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(spec.CRF))
	}
	return append(args, "-pix_fmt", DefaultPixFmt)
}
