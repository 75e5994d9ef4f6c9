package gui

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/errs"
)

// form is the raw text of the window's inputs
type form struct {
	Source     string
	OutputDir  string
	OutputName string
	Total      string
	Scene      string
	Seed       string
	// Sliders are in percent
	GridMix float64
	Volume  float64
}

func newForm(base config.Compilation) form {
	dir, name := filepath.Split(base.Output)
	if dir == "" {
		dir = "."
	}
	f := form{
		Source:     base.Source,
		OutputDir:  filepath.Clean(dir),
		OutputName: name,
		Total:      strconv.FormatFloat(base.TotalSeconds, 'f', -1, 64),
		Scene:      strconv.FormatFloat(base.SceneSeconds, 'f', -1, 64),
		GridMix:    base.GridMix * 100,
		Volume:     base.Volume * 100,
	}
	if base.Seed != 0 {
		f.Seed = strconv.FormatUint(base.Seed, 10)
	}
	return f
}

// compilation parses the inputs on top of base and validates the result
func (f form) compilation(base config.Compilation) (config.Compilation, error) {
	comp := base
	comp.Source = strings.TrimSpace(f.Source)

	name := strings.TrimSpace(f.OutputName)
	if name == "" {
		name = "compilation.mp4"
	}
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	comp.Output = filepath.Join(strings.TrimSpace(f.OutputDir), name)

	var err error
	if comp.TotalSeconds, err = parseSeconds("total length", f.Total); err != nil {
		return comp, err
	}
	if comp.SceneSeconds, err = parseSeconds("clip length", f.Scene); err != nil {
		return comp, err
	}

	comp.Seed = 0
	if s := strings.TrimSpace(f.Seed); s != "" {
		if comp.Seed, err = strconv.ParseUint(s, 10, 64); err != nil {
			return comp, errs.Wrap(errs.ErrConfig, err, "seed %q must be a whole number", s)
		}
	}

	comp.GridMix = f.GridMix / 100
	comp.Volume = f.Volume / 100

	return comp, comp.Validate()
}

func parseSeconds(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "s")), 64)
	if err != nil {
		return 0, errs.Wrap(errs.ErrConfig, err, "%s %q is not a number of seconds", field, value)
	}
	return v, nil
}

// logBuffer keeps the last lines shown in the log box
type logBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	dirty bool
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	b.dirty = true
}

func (b *logBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.dirty = true
}

// Flush returns the text and whether it changed since the last call
func (b *logBuffer) Flush() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty {
		return "", false
	}
	b.dirty = false
	return strings.Join(b.lines, "\n"), true
}
