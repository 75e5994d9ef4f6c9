package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

const (
	// tailLines is how much stderr is kept for error reports.
	tailLines = 20
	// waitDelay bounds how long Wait blocks on pipes after the process is killed.
	waitDelay = 5 * time.Second
	maxLine   = 1024 * 1024
)

var errStalled = errors.New("no output from ffmpeg")

// Options locates the binaries and tunes the supervisor.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
	// StallTimeout kills a process that prints nothing for this long. Zero disables it.
	StallTimeout time.Duration
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger       zerolog.Logger
	ffmpegPath   string
	ffprobePath  string
	threads      int
	stallTimeout time.Duration
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, err, "ffmpeg not found (%s)", opts.FFmpegPath)
	}

	ffprobePath, err := exec.LookPath(opts.FFprobePath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, err, "ffprobe not found (%s)", opts.FFprobePath)
	}

	return &Executor{
		logger:       logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		threads:      opts.Threads,
		stallTimeout: opts.StallTimeout,
	}, nil
}

// Paths returns the resolved ffmpeg and ffprobe binaries.
func (e *Executor) Paths() (ffmpegPath, ffprobePath string) {
	return e.ffmpegPath, e.ffprobePath
}

// Version returns the first line of `ffmpeg -version`.
func (e *Executor) Version(ctx context.Context) (string, error) {
	return firstLine(ctx, e.ffmpegPath)
}

// ProbeVersion returns the first line of `ffprobe -version`.
func (e *Executor) ProbeVersion(ctx context.Context) (string, error) {
	return firstLine(ctx, e.ffprobePath)
}

func firstLine(ctx context.Context, bin string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return "", errs.Wrap(errs.ErrProcess, err, "%s -version", bin)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Run executes ffmpeg with the given arguments and streams progress.
// stderr is read on the calling goroutine until the process closes it, so
// LogHandler and ProgressHandler are never called after Run returns.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return errs.New(errs.ErrBuild, "no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "info"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	parser := opts.Parser
	if parser == nil {
		parser = DefaultParser
	}

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.Wrap(errs.ErrProcess, err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.ErrProcess, err, "failed to start ffmpeg")
	}

	var watchdog *time.Timer
	if e.stallTimeout > 0 {
		watchdog = time.AfterFunc(e.stallTimeout, func() { cancel(errStalled) })
		defer watchdog.Stop()
	}

	tail := newTail(tailLines)
	tracker := &jobProgress{expected: opts.Duration, emit: opts.ProgressHandler}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if watchdog != nil {
			watchdog.Reset(e.stallTimeout)
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !isProgressKey(line) {
			tail.add(line)
		}
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
		if secs, ok := parser.Elapsed(line); ok {
			tracker.update(secs)
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.Warn().Err(err).Msg("stopped parsing ffmpeg output")
		_, _ = io.Copy(io.Discard, stderr)
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return errs.Wrap(errs.ErrCancelled, ctx.Err(), "ffmpeg interrupted")
	}
	if errors.Is(context.Cause(runCtx), errStalled) {
		return errs.New(errs.ErrProcess, "ffmpeg stalled for %s: %s", e.stallTimeout, tail.String())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return errs.Wrap(errs.ErrProcess, waitErr, "ffmpeg exited with status %d: %s", exitErr.ExitCode(), tail.String())
		}
		return errs.Wrap(errs.ErrProcess, waitErr, "ffmpeg execution failed: %s", tail.String())
	}
	if opts.Output != "" && !util.NonEmptyFile(opts.Output) {
		return errs.New(errs.ErrProcess, "ffmpeg reported success but %s is missing or empty", opts.Output)
	}

	tracker.finish()
	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// scanLines splits on either line feed or carriage return, since ffmpeg
// rewrites its stats line in place with \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// jobProgress turns elapsed output time into a non-decreasing fraction.
type jobProgress struct {
	expected float64
	last     float64
	emit     ProgressFunc
}

func (p *jobProgress) update(elapsed float64) {
	if p.emit == nil || p.expected <= 0 {
		return
	}
	f := min(1, max(0, elapsed/p.expected))
	if f < p.last {
		f = p.last
	}
	p.last = f
	p.emit(f)
}

func (p *jobProgress) finish() {
	if p.emit == nil || p.last >= 1 {
		return
	}
	p.last = 1
	p.emit(1)
}

// tail keeps the last n lines.
type tail struct {
	lines []string
	n     int
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	if len(t.lines) == 0 {
		return "(no output)"
	}
	return strings.Join(t.lines, "\n")
}
