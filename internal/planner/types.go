package planner

import (
	"github.com/orsinium-labs/enum"

	"github.com/kikiluvv/reelcompiler/internal/clips"
)

// Layout is the on-screen arrangement of a scene.
type Layout enum.Member[string]

var (
	LayoutSingle  = Layout{Value: "single"}
	LayoutGrid2x2 = Layout{Value: "grid2x2"}
	LayoutGrid3x3 = Layout{Value: "grid3x3"}
	Layouts       = enum.New(LayoutSingle, LayoutGrid2x2, LayoutGrid3x3)
)

// Dim is the number of rows and columns.
func (l Layout) Dim() int {
	switch l {
	case LayoutGrid2x2:
		return 2
	case LayoutGrid3x3:
		return 3
	}
	return 1
}

// Cells is the number of clips the layout shows at once.
func (l Layout) Cells() int {
	return l.Dim() * l.Dim()
}

// IsGrid reports whether the layout tiles more than one clip.
func (l Layout) IsGrid() bool {
	return l.Dim() > 1
}

func (l Layout) String() string {
	return l.Value
}

// TrimWindow is the part of a source clip one cell plays.
// With Loop set the clip is shorter than the scene and repeats from 0.
type TrimWindow struct {
	Start    float64
	Duration float64
	Loop     bool
}

// Within reports whether the window stays inside a clip of the given
// duration. A looped window starts at 0 on a clip shorter than the scene.
func (w TrimWindow) Within(clipDuration float64) bool {
	if w.Start < 0 || w.Duration <= 0 {
		return false
	}
	if w.Loop {
		return w.Start == 0 && clipDuration < w.Duration
	}
	return w.Start+w.Duration <= clipDuration+epsilon
}

// Cell is one clip placed in a scene.
type Cell struct {
	Clip clips.SourceClip
	Trim TrimWindow
}

// ScenePlan describes one fixed-length unit of the timeline.
// Cells are in raster order for grids.
type ScenePlan struct {
	Index    int
	Layout   Layout
	Duration float64
	Cells    []Cell
}

// Clips returns the selected source clips in cell order.
func (p ScenePlan) Clips() []clips.SourceClip {
	out := make([]clips.SourceClip, len(p.Cells))
	for i, c := range p.Cells {
		out[i] = c.Clip
	}
	return out
}

// Options are the inputs to Plan that come from the run configuration.
type Options struct {
	TotalSeconds float64
	SceneSeconds float64
	GridMix      float64
	Grid3x3Share float64
}

// Rand is the random source Plan draws from. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}
