package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/reelcompiler/pkg/util"
)

// TimeParser extracts the amount of output written so far, in seconds,
// from one line of ffmpeg stderr.
type TimeParser interface {
	Elapsed(line string) (seconds float64, ok bool)
}

// TimeParserFunc adapts a function to TimeParser.
type TimeParserFunc func(line string) (float64, bool)

func (f TimeParserFunc) Elapsed(line string) (float64, bool) { return f(line) }

var (
	// ProgressParser reads the key=value blocks written by -progress.
	ProgressParser TimeParser = TimeParserFunc(parseProgressLine)
	// StatsParser reads the time= field of the interactive stats line.
	StatsParser TimeParser = TimeParserFunc(parseStatsLine)
	// DefaultParser is what Run uses when RunOptions.Parser is nil.
	DefaultParser = FirstOf(ProgressParser, StatsParser)
)

// FirstOf tries each parser in order and returns the first match.
func FirstOf(parsers ...TimeParser) TimeParser {
	return TimeParserFunc(func(line string) (float64, bool) {
		for _, p := range parsers {
			if secs, ok := p.Elapsed(line); ok {
				return secs, true
			}
		}
		return 0, false
	})
}

func parseProgressLine(line string) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0, false
	}

	switch key {
	// out_time_ms is in microseconds too, despite its name.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return float64(us) / 1e6, true
	case "out_time":
		return validSeconds(util.ParseTimestamp(value))
	}
	return 0, false
}

var statsTime = regexp.MustCompile(`(?:^|\s)time=\s*(-?\d+:\d{2}:\d{2}(?:\.\d+)?)`)

func parseStatsLine(line string) (float64, bool) {
	m := statsTime.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return validSeconds(util.ParseTimestamp(m[1]))
}

func validSeconds(d time.Duration, err error) (float64, bool) {
	if err != nil || d < 0 {
		return 0, false
	}
	return d.Seconds(), true
}

// isProgressKey reports whether line is one entry of a -progress block.
func isProgressKey(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	return ok && key != "" && !strings.ContainsAny(key, " \t") && strings.Count(line, "=") == 1
}
