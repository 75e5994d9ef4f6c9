package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration converts time.Duration to ffmpeg timestamp format
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

// FormatSeconds renders seconds the way ffmpeg accepts them for -ss and -t
func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// Seconds converts float seconds to a time.Duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseTimestamp parses SS.mmm, MM:SS or HH:MM:SS.mmm with an optional
// leading minus, as ffmpeg prints them in stats lines.
func ParseTimestamp(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	negative := strings.HasPrefix(raw, "-")
	parts := strings.Split(strings.TrimPrefix(raw, "-"), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp format: %s", s)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		total = total*60 + v
	}
	if negative {
		total = -total
	}
	return Seconds(total), nil
}

// ParseFrameRate parses an ffprobe rational such as "30000/1001".
// Anything unparsable yields 0.
func ParseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
