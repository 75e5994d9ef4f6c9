// Package pipeline runs a compilation from folder scan to final file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/kikiluvv/reelcompiler/internal/clips"
	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/internal/ffmpeg"
	"github.com/kikiluvv/reelcompiler/internal/planner"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

// Pipeline orchestrates the entire compilation workflow. It runs one
// compilation at a time.
type Pipeline struct {
	logger zerolog.Logger
	config *config.Config
	runner Runner
	prober clips.Prober
	mu     sync.Mutex
}

// New creates a pipeline backed by ffmpeg and a caching ffprobe prober
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	exec, err := ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:   cfg.FFmpeg.BinaryPath,
		FFprobePath:  cfg.FFmpeg.ProbePath,
		Threads:      cfg.FFmpeg.Threads,
		StallTimeout: cfg.FFmpeg.StallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	return NewWithTools(logger, cfg, exec, clips.NewCachingProber(exec, cfg.FFmpeg.ProbeCache)), nil
}

// NewWithTools creates a pipeline with explicit collaborators
func NewWithTools(logger zerolog.Logger, cfg *config.Config, runner Runner, prober clips.Prober) *Pipeline {
	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		config: cfg,
		runner: runner,
		prober: prober,
	}
}

// Preview scans and plans without rendering. It returns the seed used so
// the same timeline can be compiled later.
func (p *Pipeline) Preview(ctx context.Context, comp config.Compilation) ([]planner.ScenePlan, uint64, error) {
	if err := p.validate(comp); err != nil {
		return nil, 0, err
	}

	inventory, err := clips.Scan(ctx, p.logger, comp.Source, p.config.Extensions, p.prober)
	if err != nil {
		return nil, 0, err
	}

	seed := resolveSeed(comp.Seed)
	plans, err := planner.Plan(newRand(seed), planOptions(comp), inventory)
	if err != nil {
		return nil, 0, err
	}
	return plans, seed, nil
}

// Compile runs one compilation and reports through sink. It always
// returns a result; the error, if any, is in RunResult.Err.
func (p *Pipeline) Compile(ctx context.Context, comp config.Compilation, sink Sink) *RunResult {
	if sink == nil {
		sink = NopSink
	}
	runID := uuid.NewString()

	if !p.mu.TryLock() {
		return &RunResult{
			RunID: runID,
			State: StateFailed,
			Err:   errs.New(errs.ErrConfig, "run already in progress"),
		}
	}
	defer p.mu.Unlock()

	r := &run{
		p:          p,
		id:         runID,
		logger:     p.logger.With().Str("run", runID).Logger(),
		sink:       sink,
		state:      StateIdle,
		transcript: &Transcript{},
	}

	start := time.Now()
	output, err := r.execute(ctx, comp)
	return r.finish(output, err, time.Since(start))
}

func (p *Pipeline) validate(comp config.Compilation) error {
	if err := p.config.Validate(); err != nil {
		return err
	}
	return comp.Validate()
}

// run is the state of one Compile call
type run struct {
	p          *Pipeline
	id         string
	logger     zerolog.Logger
	sink       Sink
	state      State
	transcript *Transcript
	scenes     int
	output     string
	// wroteOutput is set once assembly may have created the output file
	wroteOutput bool
}

func (r *run) execute(ctx context.Context, comp config.Compilation) (output string, err error) {
	r.transition(StateScanning, -1)
	if err := r.p.validate(comp); err != nil {
		return "", err
	}
	r.output, err = filepath.Abs(comp.Output)
	if err != nil {
		return "", errs.Wrap(errs.ErrConfig, err, "output path %q", comp.Output)
	}

	r.logf("scanning %s", comp.Source)
	inventory, err := clips.Scan(ctx, r.logger, comp.Source, r.p.config.Extensions, r.p.prober)
	if err != nil {
		return "", err
	}
	r.logf("found %d usable clips (%s of footage)",
		len(inventory), util.FormatDuration(util.Seconds(clips.TotalDuration(inventory))))

	r.transition(StatePlanning, -1)
	seed := resolveSeed(comp.Seed)
	plans, err := planner.Plan(newRand(seed), planOptions(comp), inventory)
	if err != nil {
		return "", err
	}
	r.scenes = len(plans)
	summary := planner.Summary(plans)
	r.logf("planned %d scenes of %ss (seed %d): %d single, %d 2x2, %d 3x3",
		len(plans), util.FormatSeconds(comp.SceneSeconds), seed,
		summary[planner.LayoutSingle], summary[planner.LayoutGrid2x2], summary[planner.LayoutGrid3x3])

	workDir, err := r.makeWorkDir()
	if err != nil {
		return "", err
	}
	defer func() { r.cleanupWorkDir(workDir, err == nil) }()

	prog := newProgress(len(plans), r.sink.OnProgress)
	spec := renderSpec(r.p.config, comp.Volume)

	scenes := make([]string, 0, len(plans))
	for i := range plans {
		plan := &plans[i]
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrCancelled, ctx.Err(), "stopped before scene %d", i+1)
		}
		r.transition(StateRendering, i)

		if err := checkSources(plan); err != nil {
			return "", err
		}
		cmd, err := ffmpeg.BuildScene(*plan, spec, workDir)
		if err != nil {
			return "", err
		}
		if err := r.runJob(ctx, RenderJob{Scene: i, Plan: plan, Command: cmd}, prog.job(i)); err != nil {
			return "", err
		}
		scenes = append(scenes, cmd.Output)
	}

	if ctx.Err() != nil {
		return "", errs.Wrap(errs.ErrCancelled, ctx.Err(), "stopped before assembly")
	}
	r.transition(StateAssembling, -1)
	duration := float64(len(plans)) * comp.SceneSeconds
	if err := r.assemble(ctx, scenes, workDir, spec, duration, prog.job(len(plans))); err != nil {
		return "", err
	}
	prog.set(1)

	return r.output, nil
}

// assemble joins the scenes with a stream copy, re-encoding when the
// container needs it or the copy is rejected.
func (r *run) assemble(ctx context.Context, scenes []string, workDir string, spec ffmpeg.RenderSpec, duration float64, onProgress ffmpeg.ProgressFunc) error {
	list := ffmpeg.ConcatListPath(workDir)
	if err := ffmpeg.WriteConcatList(list, scenes); err != nil {
		return err
	}

	opts := ffmpeg.ConcatOptions{
		Inputs:   scenes,
		ListPath: list,
		Output:   r.output,
		ReEncode: ffmpeg.NeedsReencode(r.output),
		Duration: duration,
		Spec:     spec,
	}
	cmd, err := ffmpeg.BuildConcat(opts)
	if err != nil {
		return err
	}

	r.wroteOutput = true
	err = r.runJob(ctx, RenderJob{Scene: -1, Command: cmd}, onProgress)
	if err == nil || opts.ReEncode || !errors.Is(err, errs.ErrProcess) {
		return err
	}

	r.logf("stream copy failed, retrying with re-encode")
	util.CleanupFiles(r.output)
	opts.ReEncode = true
	if cmd, err = ffmpeg.BuildConcat(opts); err != nil {
		return err
	}
	return r.runJob(ctx, RenderJob{Scene: -1, Command: cmd}, onProgress)
}

func (r *run) runJob(ctx context.Context, job RenderJob, onProgress ffmpeg.ProgressFunc) error {
	label := job.Command.Label
	r.logf("%s: ffmpeg %s", label, strings.Join(job.Command.Args, " "))

	err := r.p.runner.Run(ctx, job.Command.RunOptions(onProgress, func(line string) {
		r.record(line)
		r.logger.Debug().Str("ffmpeg", line).Msg(label)
	}))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && !errs.IsCancelled(err):
		return errs.Wrap(errs.ErrCancelled, ctx.Err(), "%s interrupted", label)
	case errs.Kind(err) == "unknown":
		return errs.Wrap(errs.ErrProcess, err, "%s", label)
	}
	return fmt.Errorf("%s: %w", label, err)
}

func (r *run) finish(output string, err error, elapsed time.Duration) *RunResult {
	res := &RunResult{
		RunID:   r.id,
		Scenes:  r.scenes,
		Elapsed: elapsed,
		Err:     err,
	}

	switch {
	case err == nil:
		r.logf("compilation written to %s (%s in %s)",
			output, humanize.Bytes(uint64(util.FileSize(output))), elapsed.Round(time.Millisecond))
		r.transition(StateCompleted, -1)
		res.Success = true
		res.Output = output
	case errs.IsCancelled(err):
		r.removeOutput()
		r.logf("cancelled: %v", err)
		r.transition(StateCancelled, -1)
	default:
		r.removeOutput()
		r.logger.Error().Err(err).Str("kind", errs.Kind(err)).Msg("compilation failed")
		r.record(fmt.Sprintf("failed (%s): %v", errs.Kind(err), err))
		r.transition(StateFailed, -1)
	}

	res.State = r.state
	res.Log = r.transcript.Lines()
	return res
}

func (r *run) transition(to State, scene int) {
	if !CanTransition(r.state, to) {
		r.logger.Error().Str("from", r.state.Value).Str("to", to.Value).Msg("invalid state transition")
		return
	}
	r.state = to
	r.logger.Debug().Str("state", to.Value).Int("scene", scene).Msg("state changed")
	r.sink.OnState(StateChange{State: to, Scene: scene, Scenes: r.scenes})
}

// logf records a pipeline message in the transcript, the sink and the log
func (r *run) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.record(line)
	r.logger.Info().Msg(line)
}

func (r *run) record(line string) {
	r.transcript.Append(line)
	r.sink.OnLog(line)
}

func (r *run) makeWorkDir() (string, error) {
	dir := filepath.Join(filepath.Dir(r.output), ".reelcompiler-"+r.id)
	if r.p.config.WorkDir != "" {
		dir = filepath.Join(r.p.config.WorkDir, "reelcompiler-"+r.id)
	}
	if err := util.EnsureDir(dir); err != nil {
		return "", errs.Wrap(errs.ErrConfig, err, "cannot create work dir %s", dir)
	}
	r.logger.Debug().Str("dir", dir).Msg("work dir created")
	return dir, nil
}

func (r *run) cleanupWorkDir(dir string, success bool) {
	if success && r.p.config.KeepIntermediates {
		r.logf("intermediate scenes kept in %s", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove work dir")
	}
}

func (r *run) removeOutput() {
	if r.wroteOutput && r.output != "" {
		util.CleanupFiles(r.output)
	}
}

// checkSources makes sure every clip of a scene can still be opened
func checkSources(plan *planner.ScenePlan) error {
	for _, path := range lo.Uniq(clips.Paths(plan.Clips())) {
		if err := util.Readable(path); err != nil {
			return errs.Wrap(errs.ErrBuild, err, "scene %d: %s is no longer readable", plan.Index+1, path)
		}
	}
	return nil
}

func planOptions(comp config.Compilation) planner.Options {
	return planner.Options{
		TotalSeconds: comp.TotalSeconds,
		SceneSeconds: comp.SceneSeconds,
		GridMix:      comp.GridMix,
		Grid3x3Share: comp.Grid3x3Share,
	}
}

func renderSpec(cfg *config.Config, volume float64) ffmpeg.RenderSpec {
	return ffmpeg.RenderSpec{
		Width:      cfg.Render.Width,
		Height:     cfg.Render.Height,
		FPS:        cfg.Render.FPS,
		SampleRate: cfg.Render.SampleRate,
		VideoCodec: cfg.FFmpeg.VideoCodec,
		AudioCodec: cfg.FFmpeg.AudioCodec,
		Preset:     cfg.FFmpeg.Preset,
		CRF:        cfg.FFmpeg.CRF,
		Volume:     volume,
	}
}

func resolveSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	return uint64(time.Now().UnixNano())
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
