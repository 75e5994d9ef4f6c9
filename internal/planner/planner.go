package planner

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/kikiluvv/reelcompiler/internal/clips"
	"github.com/kikiluvv/reelcompiler/internal/errs"
)

// epsilon absorbs float noise in duration arithmetic (0.3/0.1 and friends).
const epsilon = 1e-9

// SceneCount returns floor(total/scene). A total shorter than one scene is
// errs.ErrPlanning.
func SceneCount(total, scene float64) (int, error) {
	if scene <= 0 || math.IsNaN(scene) {
		return 0, errs.New(errs.ErrPlanning, "scene duration %v must be positive", scene)
	}
	if math.IsNaN(total) || total+epsilon < scene {
		return 0, errs.New(errs.ErrPlanning, "total duration %gs is shorter than one %gs scene", total, scene)
	}
	return int(math.Floor(total/scene + epsilon)), nil
}

// Plan builds the ordered scene list for a run.
//
// Each slot independently becomes a grid with probability GridMix. Grid size
// is capped by how many distinct clips exist: nine or more allow 3x3 (taken
// with probability Grid3x3Share), four to eight give 2x2, fewer force single.
// Clips are drawn uniformly with replacement, so a clip may repeat across
// scenes and within a grid.
func Plan(rng Rand, opts Options, inventory []clips.SourceClip) ([]ScenePlan, error) {
	n, err := SceneCount(opts.TotalSeconds, opts.SceneSeconds)
	if err != nil {
		return nil, err
	}
	if len(inventory) == 0 {
		return nil, errs.New(errs.ErrInventory, "nothing to plan from")
	}

	distinct := mapset.NewSet(clips.Paths(inventory)...).Cardinality()

	plans := make([]ScenePlan, n)
	for i := range plans {
		layout := chooseLayout(rng, opts, distinct)
		cells := lo.Times(layout.Cells(), func(int) Cell {
			clip := inventory[rng.IntN(len(inventory))]
			return Cell{Clip: clip, Trim: chooseTrim(rng, clip, opts.SceneSeconds)}
		})
		plans[i] = ScenePlan{
			Index:    i,
			Layout:   layout,
			Duration: opts.SceneSeconds,
			Cells:    cells,
		}
	}
	return plans, nil
}

func chooseLayout(rng Rand, opts Options, distinct int) Layout {
	if rng.Float64() >= opts.GridMix {
		return LayoutSingle
	}
	switch {
	case distinct >= LayoutGrid3x3.Cells():
		if rng.Float64() < opts.Grid3x3Share {
			return LayoutGrid3x3
		}
		return LayoutGrid2x2
	case distinct >= LayoutGrid2x2.Cells():
		return LayoutGrid2x2
	default:
		return LayoutSingle
	}
}

// chooseTrim picks a random start inside the playable range of a clip longer
// than the scene. Shorter clips start at 0 and loop. Starts are floored to
// whole milliseconds so the rendered -ss never rounds past the clip end.
func chooseTrim(rng Rand, clip clips.SourceClip, scene float64) TrimWindow {
	slack := clip.Duration - scene
	if slack > epsilon {
		start := math.Floor(rng.Float64()*slack*1000) / 1000
		return TrimWindow{Start: start, Duration: scene}
	}
	return TrimWindow{Start: 0, Duration: scene, Loop: slack < -epsilon}
}

// Summary counts scenes per layout.
func Summary(plans []ScenePlan) map[Layout]int {
	groups := lo.GroupBy(plans, func(p ScenePlan) Layout { return p.Layout })
	return lo.MapValues(groups, func(ps []ScenePlan, _ Layout) int { return len(ps) })
}
