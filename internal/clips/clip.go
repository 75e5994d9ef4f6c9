// Package clips finds usable source clips under a folder.
package clips

import (
	"context"

	"github.com/samber/lo"
)

// SourceClip is a probed source file. It is never modified after Scan.
type SourceClip struct {
	Path     string
	Duration float64 // seconds, always > 0
	HasAudio bool
}

// Probe is what the probing collaborator reports for one file
type Probe struct {
	Duration float64
	HasAudio bool
}

// Prober returns duration and audio presence for a media file
type Prober interface {
	ProbeClip(ctx context.Context, path string) (Probe, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, path string) (Probe, error)

// ProbeClip calls f
func (f ProberFunc) ProbeClip(ctx context.Context, path string) (Probe, error) {
	return f(ctx, path)
}

// Paths returns the clip paths in order
func Paths(clips []SourceClip) []string {
	return lo.Map(clips, func(c SourceClip, _ int) string { return c.Path })
}

// TotalDuration sums the probed durations
func TotalDuration(clips []SourceClip) float64 {
	return lo.SumBy(clips, func(c SourceClip) float64 { return c.Duration })
}
