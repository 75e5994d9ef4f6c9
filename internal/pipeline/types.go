package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/orsinium-labs/enum"

	"github.com/kikiluvv/reelcompiler/internal/ffmpeg"
	"github.com/kikiluvv/reelcompiler/internal/planner"
)

// State is where a run currently is
type State enum.Member[string]

var (
	StateIdle       = State{Value: "idle"}
	StateScanning   = State{Value: "scanning"}
	StatePlanning   = State{Value: "planning"}
	StateRendering  = State{Value: "rendering"}
	StateAssembling = State{Value: "assembling"}
	StateCompleted  = State{Value: "completed"}
	StateFailed     = State{Value: "failed"}
	StateCancelled  = State{Value: "cancelled"}
	States          = enum.New(StateIdle, StateScanning, StatePlanning, StateRendering,
		StateAssembling, StateCompleted, StateFailed, StateCancelled)
)

func (s State) String() string {
	return s.Value
}

// IsTerminal reports whether no further transition can leave s
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:       {StateScanning},
	StateScanning:   {StatePlanning, StateFailed, StateCancelled},
	StatePlanning:   {StateRendering, StateFailed, StateCancelled},
	StateRendering:  {StateRendering, StateAssembling, StateFailed, StateCancelled},
	StateAssembling: {StateCompleted, StateFailed, StateCancelled},
}

// CanTransition reports whether a run may move from one state to another.
// Rendering to Rendering is the step to the next scene.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateChange is sent to the sink on every transition.
// Scene is the zero-based scene being rendered, or -1 outside Rendering.
type StateChange struct {
	State  State
	Scene  int
	Scenes int
}

// Sink receives run events. Calls arrive from the goroutine running Compile,
// in order, and never after Compile returns.
type Sink interface {
	OnState(change StateChange)
	OnProgress(fraction float64)
	OnLog(line string)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	State    func(StateChange)
	Progress func(float64)
	Log      func(string)
}

func (s SinkFuncs) OnState(change StateChange) {
	if s.State != nil {
		s.State(change)
	}
}

func (s SinkFuncs) OnProgress(fraction float64) {
	if s.Progress != nil {
		s.Progress(fraction)
	}
}

func (s SinkFuncs) OnLog(line string) {
	if s.Log != nil {
		s.Log(line)
	}
}

// NopSink discards every event
var NopSink Sink = SinkFuncs{}

// Runner executes one ffmpeg command to completion
type Runner interface {
	Run(ctx context.Context, opts ffmpeg.RunOptions) error
}

// RenderJob is one external process of a run. Plan is nil for assembly.
type RenderJob struct {
	Scene   int
	Plan    *planner.ScenePlan
	Command ffmpeg.Command
}

// RunResult is the terminal outcome of Compile
type RunResult struct {
	RunID   string
	State   State
	Success bool
	Output  string
	Err     error
	Log     []string
	Scenes  int
	Elapsed time.Duration
}

// LogTail returns the last n transcript lines
func (r *RunResult) LogTail(n int) []string {
	if n <= 0 || len(r.Log) == 0 {
		return nil
	}
	if n > len(r.Log) {
		n = len(r.Log)
	}
	return r.Log[len(r.Log)-n:]
}

// Transcript is the append-only log of a run, safe to read while it grows
type Transcript struct {
	mu    sync.Mutex
	lines []string
}

// Append adds a line verbatim
func (t *Transcript) Append(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
}

// Lines returns a copy of all lines
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// Tail returns a copy of the last n lines
func (t *Transcript) Tail(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.lines) {
		n = len(t.lines)
	}
	if n <= 0 {
		return nil
	}
	return append([]string(nil), t.lines[len(t.lines)-n:]...)
}

// Len returns the number of lines
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// progress weights each scene job by 1/(N+1), the last slot being assembly,
// and never lets the overall value go down.
type progress struct {
	slots int
	last  float64
	emit  func(float64)
}

func newProgress(scenes int, emit func(float64)) *progress {
	return &progress{slots: scenes + 1, emit: emit}
}

// job returns the handler for the job in slot
func (p *progress) job(slot int) ffmpeg.ProgressFunc {
	return func(f float64) {
		p.set((float64(slot) + f) / float64(p.slots))
	}
}

func (p *progress) set(v float64) {
	v = min(1, v)
	if v < p.last {
		v = p.last
	}
	p.last = v
	p.emit(v)
}
