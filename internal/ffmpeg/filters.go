package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterBuilder helps construct complex ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// Cover scales so the frame fully covers width x height, keeping aspect.
// Follow with CropCenter to trim the overflow.
func (fb *FilterBuilder) Cover(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", width, height))
	return fb
}

// Crop adds a crop filter
func (fb *FilterBuilder) Crop(width, height, x, y int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("crop=%d:%d:%d:%d", width, height, x, y))
	return fb
}

// CropCenter crops to width x height around the frame centre
func (fb *FilterBuilder) CropCenter(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("crop=%d:%d", width, height))
	return fb
}

// SquarePixels resets the sample aspect ratio to 1
func (fb *FilterBuilder) SquarePixels() *FilterBuilder {
	fb.filters = append(fb.filters, "setsar=1")
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, "fps="+formatFloat(fps))
	return fb
}

// PixelFormat adds a format filter
func (fb *FilterBuilder) PixelFormat(pixFmt string) *FilterBuilder {
	if pixFmt == "" {
		return fb
	}
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// ResetPTS starts video timestamps at zero
func (fb *FilterBuilder) ResetPTS() *FilterBuilder {
	fb.filters = append(fb.filters, "setpts=PTS-STARTPTS")
	return fb
}

// Resample adds an aresample filter
func (fb *FilterBuilder) Resample(rate int) *FilterBuilder {
	if rate <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("aresample=%d", rate))
	return fb
}

// Stereo forces a stereo channel layout
func (fb *FilterBuilder) Stereo() *FilterBuilder {
	fb.filters = append(fb.filters, "aformat=channel_layouts=stereo")
	return fb
}

// Volume scales audio by a linear multiplier
func (fb *FilterBuilder) Volume(multiplier float64) *FilterBuilder {
	if multiplier < 0 {
		return fb
	}
	fb.filters = append(fb.filters, "volume="+formatFloat(multiplier))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// BuildAll returns all filters as a slice
func (fb *FilterBuilder) BuildAll() []string {
	return fb.filters
}

// FilterGraph assembles labelled chains for -filter_complex
type FilterGraph struct {
	chains []string
}

// Chain appends "[in1][in2]chain[out]". Labels are given without brackets.
func (g *FilterGraph) Chain(inputs []string, chain string, output string) *FilterGraph {
	var b strings.Builder
	for _, in := range inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(chain)
	if output != "" {
		b.WriteString("[" + output + "]")
	}
	g.chains = append(g.chains, b.String())
	return g
}

// String joins chains with semicolons
func (g *FilterGraph) String() string {
	return strings.Join(g.chains, ";")
}

// Len returns the number of chains
func (g *FilterGraph) Len() int {
	return len(g.chains)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
