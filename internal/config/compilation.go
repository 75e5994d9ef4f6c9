package config

import (
	"math"
	"os"
	"path/filepath"

	"github.com/kikiluvv/reelcompiler/internal/errs"
)

// Compilation is the caller-supplied description of one run.
// It is validated once and not modified while the run is active.
type Compilation struct {
	Source       string  `yaml:"source"`
	Output       string  `yaml:"output"`
	TotalSeconds float64 `yaml:"total_seconds"`
	SceneSeconds float64 `yaml:"scene_seconds"`
	GridMix      float64 `yaml:"grid_mix"`
	Volume       float64 `yaml:"volume"`
	// Grid3x3Share is the chance of a 3x3 grid when the inventory can fill one.
	Grid3x3Share float64 `yaml:"grid3x3_share"`
	// Seed of zero means a time-based seed.
	Seed uint64 `yaml:"seed"`
}

// Validate reports the first invalid field as errs.ErrConfig.
// A total shorter than one scene is left to the planner.
func (c Compilation) Validate() error {
	if c.Source == "" {
		return errs.New(errs.ErrConfig, "source folder is required")
	}
	fi, err := os.Stat(c.Source)
	if err != nil {
		return errs.Wrap(errs.ErrConfig, err, "source folder %q", c.Source)
	}
	if !fi.IsDir() {
		return errs.New(errs.ErrConfig, "source %q is not a folder", c.Source)
	}
	if c.Output == "" {
		return errs.New(errs.ErrConfig, "output path is required")
	}
	if filepath.Ext(c.Output) == "" {
		return errs.New(errs.ErrConfig, "output %q needs a container extension", c.Output)
	}
	if dir := filepath.Dir(c.Output); dir != "" {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return errs.Wrap(errs.ErrConfig, err, "output folder %q does not exist", dir)
		}
	}
	if !finite(c.TotalSeconds) || c.TotalSeconds <= 0 {
		return errs.New(errs.ErrConfig, "total duration %v must be positive", c.TotalSeconds)
	}
	if !finite(c.SceneSeconds) || c.SceneSeconds <= 0 {
		return errs.New(errs.ErrConfig, "scene duration %v must be positive", c.SceneSeconds)
	}
	if !finite(c.GridMix) || c.GridMix < 0 || c.GridMix > 1 {
		return errs.New(errs.ErrConfig, "grid mix %v must be within 0..1", c.GridMix)
	}
	if !finite(c.Grid3x3Share) || c.Grid3x3Share < 0 || c.Grid3x3Share > 1 {
		return errs.New(errs.ErrConfig, "3x3 share %v must be within 0..1", c.Grid3x3Share)
	}
	if !finite(c.Volume) || c.Volume < 0 {
		return errs.New(errs.ErrConfig, "volume %v must not be negative", c.Volume)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
