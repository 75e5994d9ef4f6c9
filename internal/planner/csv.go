package planner

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"
)

type planRow struct {
	Scene       int     `csv:"scene"`
	Layout      string  `csv:"layout"`
	Cell        int     `csv:"cell"`
	Clip        string  `csv:"clip"`
	ClipSeconds float64 `csv:"clip_seconds"`
	Start       float64 `csv:"start"`
	Duration    float64 `csv:"duration"`
	Loop        bool    `csv:"loop"`
}

// WriteCSV writes one row per cell, scenes in plan order.
func WriteCSV(w io.Writer, plans []ScenePlan) error {
	rows := lo.FlatMap(plans, func(p ScenePlan, _ int) []planRow {
		return lo.Map(p.Cells, func(c Cell, i int) planRow {
			return planRow{
				Scene:       p.Index,
				Layout:      p.Layout.Value,
				Cell:        i,
				Clip:        c.Clip.Path,
				ClipSeconds: c.Clip.Duration,
				Start:       c.Trim.Start,
				Duration:    c.Trim.Duration,
				Loop:        c.Trim.Loop,
			}
		})
	})
	return gocsv.Marshal(&rows, w)
}
