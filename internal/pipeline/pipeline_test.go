package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/reelcompiler/internal/clips"
	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/internal/ffmpeg"
)

// fakeRunner pretends to be ffmpeg: it logs, reports progress and writes
// the output unless fail returns an error for the call.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []ffmpeg.RunOptions
	lists   []string
	fail    func(call int, opts ffmpeg.RunOptions) error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, opts ffmpeg.RunOptions) error {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, opts)
	if isConcat(opts.Args) {
		data, _ := os.ReadFile(argAfter(opts.Args, "-i"))
		f.lists = append(f.lists, string(data))
	}
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return errs.Wrap(errs.ErrCancelled, ctx.Err(), "killed")
		}
	}

	log := func(line string) {
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	}
	report := func(v float64) {
		if opts.ProgressHandler != nil {
			opts.ProgressHandler(v)
		}
	}

	log("out_time_us=500000")
	report(0.5)
	if f.fail != nil {
		if err := f.fail(call, opts); err != nil {
			log("Error while decoding stream #0:0: Invalid data found when processing input")
			return err
		}
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.ErrCancelled, ctx.Err(), "killed")
	}
	log("progress=end")
	report(1)
	return os.WriteFile(opts.Output, []byte("media"), 0o644)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func isConcat(args []string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-f" && args[i+1] == "concat" {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func countArg(args []string, s string) int {
	n := 0
	for _, a := range args {
		if a == s {
			n++
		}
	}
	return n
}

// recorder collects sink events in order
type recorder struct {
	events   []string
	states   []StateChange
	progress []float64
	logs     []string
}

func (r *recorder) OnState(c StateChange) {
	r.states = append(r.states, c)
	r.events = append(r.events, "state:"+c.State.Value)
}

func (r *recorder) OnProgress(f float64) {
	r.progress = append(r.progress, f)
	r.events = append(r.events, "progress")
}

func (r *recorder) OnLog(line string) {
	r.logs = append(r.logs, line)
}

func (r *recorder) stateNames() []string {
	out := make([]string, len(r.states))
	for i, s := range r.states {
		out[i] = s.State.Value
	}
	return out
}

type fixture struct {
	cfg    *config.Config
	comp   config.Compilation
	runner *fakeRunner
	pipe   *Pipeline
	outDir string
}

// newFixture writes clips named after durations into a source folder.
func newFixture(t *testing.T, durations map[string]float64) *fixture {
	t.Helper()
	src := t.TempDir()
	for name := range durations {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte("x"), 0o644))
	}
	prober := clips.ProberFunc(func(_ context.Context, path string) (clips.Probe, error) {
		d, ok := durations[filepath.Base(path)]
		if !ok || d <= 0 {
			return clips.Probe{}, errors.New("unprobable")
		}
		return clips.Probe{Duration: d, HasAudio: true}, nil
	})

	outDir := t.TempDir()
	cfg := config.Default()
	runner := &fakeRunner{}
	return &fixture{
		cfg: cfg,
		comp: config.Compilation{
			Source:       src,
			Output:       filepath.Join(outDir, "compilation.mp4"),
			TotalSeconds: 12,
			SceneSeconds: 4,
			GridMix:      0,
			Volume:       1,
			Grid3x3Share: 1,
			Seed:         7,
		},
		runner: runner,
		pipe:   NewWithTools(zerolog.Nop(), cfg, runner, prober),
		outDir: outDir,
	}
}

func (f *fixture) workDirs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.outDir, ".reelcompiler-*"))
	require.NoError(t, err)
	return matches
}

func TestCompileTwelveSecondsOfSingles(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6, "b.mov": 9})
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)
	require.NoError(t, res.Err)

	assert.True(t, res.Success)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, res.Scenes)
	assert.Equal(t, f.comp.Output, res.Output)
	assert.FileExists(t, res.Output)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{"scanning", "planning", "rendering", "rendering", "rendering", "assembling", "completed"}, rec.stateNames())
	assert.Equal(t, 0, rec.states[2].Scene)
	assert.Equal(t, 2, rec.states[4].Scene)
	assert.Equal(t, 3, rec.states[4].Scenes)

	require.Equal(t, 4, f.runner.callCount())
	for i := 0; i < 3; i++ {
		opts := f.runner.calls[i]
		assert.Equal(t, 1, countArg(opts.Args, "-i"), "scene %d", i)
		assert.Equal(t, fmt.Sprintf("scene_%04d.ts", i), filepath.Base(opts.Output))
		assert.Equal(t, 4.0, opts.Duration)
	}
	concat := f.runner.calls[3]
	assert.True(t, isConcat(concat.Args))
	assert.Contains(t, concat.Args, "copy")
	assert.Equal(t, 12.0, concat.Duration)

	require.Len(t, f.runner.lists, 1)
	lines := strings.Split(strings.TrimSpace(f.runner.lists[0]), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Contains(t, line, fmt.Sprintf("scene_%04d.ts", i))
	}

	assert.Empty(t, f.workDirs(t), "work dir should be removed")
	assert.Contains(t, res.Log, "progress=end")
}

func TestCompileEightSecondsFourClipsAsGrids(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 3, "b.mp4": 5, "c.mp4": 8, "d.mp4": 13})
	f.comp.TotalSeconds = 8
	f.comp.GridMix = 1

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	require.NoError(t, res.Err)
	require.Equal(t, 3, f.runner.callCount())

	for _, opts := range f.runner.calls[:2] {
		assert.Equal(t, 4, countArg(opts.Args, "-i"))
		assert.Contains(t, argAfter(opts.Args, "-filter_complex"), "vstack=inputs=2")
	}
}

func TestCompileFailingSceneFails(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6, "b.mp4": 9})
	f.runner.fail = func(call int, _ ffmpeg.RunOptions) error {
		if call == 1 {
			return errs.New(errs.ErrProcess, "ffmpeg exited with status 1")
		}
		return nil
	}
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)

	assert.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, errs.ErrProcess)
	assert.Equal(t, "process", errs.Kind(res.Err))
	assert.NoFileExists(t, f.comp.Output)
	assert.Equal(t, 2, f.runner.callCount(), "no scene after the failure and no assembly")
	assert.Contains(t, res.Log, "Error while decoding stream #0:0: Invalid data found when processing input")
	assert.Contains(t, rec.logs, "Error while decoding stream #0:0: Invalid data found when processing input")
	assert.True(t, strings.HasPrefix(res.LogTail(1)[0], "failed (process)"))
	assert.Equal(t, "failed", rec.stateNames()[len(rec.states)-1])
	assert.Empty(t, f.workDirs(t))
}

func TestCompileFailedAssemblyRemovesOutput(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.comp.Output = filepath.Join(f.outDir, "out.webm")
	f.runner.fail = func(_ int, opts ffmpeg.RunOptions) error {
		if isConcat(opts.Args) {
			_ = os.WriteFile(opts.Output, []byte("partial"), 0o644)
			return errs.New(errs.ErrProcess, "ffmpeg exited with status 1")
		}
		return nil
	}

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	assert.Equal(t, StateFailed, res.State)
	assert.NoFileExists(t, f.comp.Output)
	// webm is re-encoded from the start, so there is no second attempt
	assert.Equal(t, 4, f.runner.callCount())
}

func TestCompileEmptyFolderNeverRunsFFmpeg(t *testing.T) {
	f := newFixture(t, map[string]float64{})
	require.NoError(t, os.WriteFile(filepath.Join(f.comp.Source, "notes.txt"), []byte("x"), 0o644))
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)

	assert.ErrorIs(t, res.Err, errs.ErrInventory)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, f.runner.callCount())
	assert.Equal(t, []string{"scanning", "failed"}, rec.stateNames())
	assert.Empty(t, f.workDirs(t))
}

func TestCompileProgressIsMonotonicAndEndsAtOne(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6, "b.mp4": 9, "c.mp4": 2, "d.mp4": 20})
	f.comp.GridMix = 0.5
	f.comp.TotalSeconds = 24
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)
	require.NoError(t, res.Err)

	require.NotEmpty(t, rec.progress)
	for i := 1; i < len(rec.progress); i++ {
		assert.GreaterOrEqual(t, rec.progress[i], rec.progress[i-1])
	}
	assert.Equal(t, 1.0, rec.progress[len(rec.progress)-1])

	// 6 scenes plus assembly share the bar evenly
	assert.InDelta(t, 0.5/7, rec.progress[0], 1e-9)

	completed := -1
	for i, e := range rec.events {
		if e == "state:completed" {
			completed = i
		}
	}
	require.Positive(t, completed)
	assert.Equal(t, "progress", rec.events[completed-1])
}

func TestCompileCancelledDuringScene(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6, "b.mp4": 9})
	f.runner.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	sink := SinkFuncs{
		State: func(c StateChange) {
			rec.OnState(c)
			if c.State == StateRendering {
				cancel()
			}
		},
	}

	res := f.pipe.Compile(ctx, f.comp, sink)

	assert.Equal(t, StateCancelled, res.State)
	assert.True(t, errs.IsCancelled(res.Err))
	assert.False(t, res.Success)
	assert.Equal(t, 1, f.runner.callCount())
	assert.NoFileExists(t, f.comp.Output)
	assert.Equal(t, []string{"scanning", "planning", "rendering", "cancelled"}, rec.stateNames())
	assert.Empty(t, f.workDirs(t))
}

func TestCompileCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.pipe.Compile(ctx, f.comp, nil)
	assert.Equal(t, StateCancelled, res.State)
	assert.Zero(t, f.runner.callCount())
}

func TestCompileConcatFallsBackToReencode(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.runner.fail = func(_ int, opts ffmpeg.RunOptions) error {
		if isConcat(opts.Args) && countArg(opts.Args, "copy") > 0 {
			return errs.New(errs.ErrProcess, "Non-monotonous DTS in output stream")
		}
		return nil
	}

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.State)

	require.Equal(t, 5, f.runner.callCount())
	retry := f.runner.calls[4]
	assert.True(t, isConcat(retry.Args))
	assert.NotContains(t, retry.Args, "copy")
	assert.Contains(t, res.Log, "stream copy failed, retrying with re-encode")
}

func TestCompileWebMReencodesDirectly(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.comp.Output = filepath.Join(f.outDir, "out.webm")

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	require.NoError(t, res.Err)

	concat := f.runner.calls[len(f.runner.calls)-1]
	assert.NotContains(t, concat.Args, "copy")
	assert.Contains(t, concat.Args, "libvpx-vp9")
}

func TestCompileUnreadableSourceIsBuildError(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "vanishing.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// the file disappears right after it was probed
	prober := clips.ProberFunc(func(_ context.Context, p string) (clips.Probe, error) {
		require.NoError(t, os.Remove(p))
		return clips.Probe{Duration: 10}, nil
	})
	runner := &fakeRunner{}
	out := t.TempDir()
	pipe := NewWithTools(zerolog.Nop(), config.Default(), runner, prober)

	res := pipe.Compile(context.Background(), config.Compilation{
		Source: src, Output: filepath.Join(out, "c.mp4"),
		TotalSeconds: 4, SceneSeconds: 4, Volume: 1,
	}, nil)

	assert.ErrorIs(t, res.Err, errs.ErrBuild)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, runner.callCount())
}

func TestCompileInvalidConfig(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.comp.SceneSeconds = -1
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)
	assert.ErrorIs(t, res.Err, errs.ErrConfig)
	assert.Equal(t, []string{"scanning", "failed"}, rec.stateNames())
}

func TestCompileTotalShorterThanScene(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.comp.TotalSeconds = 3
	rec := &recorder{}

	res := f.pipe.Compile(context.Background(), f.comp, rec)
	assert.ErrorIs(t, res.Err, errs.ErrPlanning)
	assert.Equal(t, []string{"scanning", "planning", "failed"}, rec.stateNames())
	assert.Zero(t, f.runner.callCount())
}

func TestCompileUntypedRunnerErrorIsProcessError(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.runner.fail = func(int, ffmpeg.RunOptions) error { return errors.New("exec: file busy") }

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	assert.ErrorIs(t, res.Err, errs.ErrProcess)
}

func TestCompileRejectsOverlappingRun(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.comp.TotalSeconds = 4
	f.runner.started = make(chan struct{}, 4)
	f.runner.block = make(chan struct{})

	done := make(chan *RunResult)
	go func() { done <- f.pipe.Compile(context.Background(), f.comp, nil) }()
	<-f.runner.started

	second := f.pipe.Compile(context.Background(), f.comp, nil)
	assert.ErrorIs(t, second.Err, errs.ErrConfig)
	assert.Contains(t, second.Err.Error(), "run already in progress")

	close(f.runner.block)
	first := <-done
	assert.NoError(t, first.Err)
}

func TestCompileKeepsIntermediatesOnSuccess(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6})
	f.cfg.KeepIntermediates = true
	f.cfg.WorkDir = t.TempDir()

	res := f.pipe.Compile(context.Background(), f.comp, nil)
	require.NoError(t, res.Err)

	scenes, err := filepath.Glob(filepath.Join(f.cfg.WorkDir, "reelcompiler-"+res.RunID, "scene_*.ts"))
	require.NoError(t, err)
	assert.Len(t, scenes, 3)
}

func TestPreviewIsDeterministicForSeed(t *testing.T) {
	f := newFixture(t, map[string]float64{"a.mp4": 6, "b.mp4": 9, "c.mp4": 4, "d.mp4": 12})
	f.comp.GridMix = 0.5
	f.comp.Seed = 42

	a, seed, err := f.pipe.Preview(context.Background(), f.comp)
	require.NoError(t, err)
	b, _, err := f.pipe.Preview(context.Background(), f.comp)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), seed)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
	assert.Zero(t, f.runner.callCount())
}
