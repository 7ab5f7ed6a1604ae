// Package normalize turns raw tide/astronomy provider output into the
// canonical data lines the lunar calendar template includes.
package normalize

import (
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/mahina/pkg/core"
)

// pcal octal escape for '.', so the tide sub-type survives as part of the keyword.
const subTypeSeparator = `\056`

var (
	knotsPattern    = regexp.MustCompile(`(?i)\bknots\b`)
	tideWordPattern = regexp.MustCompile(`(?i)\btide\b`)
	highPattern     = regexp.MustCompile(`(?i)\bhigh\b`)
	highTidePattern = regexp.MustCompile(`(?i)high\s+tide`)
	lowTidePattern  = regexp.MustCompile(`(?i)low\s+tide`)
	feetPattern     = regexp.MustCompile(`(?i)\s*feet`)
	commaPattern    = regexp.MustCompile(`,\s*`)
)

var sunCodes = strings.NewReplacer(
	"Sunrise", "SR",
	"Sunset", "SS",
)

var moonCodes = strings.NewReplacer(
	"Moonrise", "MR",
	"Moonset", "MS",
	"New Moon", "NM",
	"Full Moon", "FM",
	"First Quarter", "FQ",
	"Last Quarter", "LQ",
)

// Lines lazily normalizes raw lines of one source. Lines without the
// source's marker, and lines carrying another domain's marker, are dropped.
func Lines(kind core.SourceKind, raw iter.Seq[string]) iter.Seq[core.DataLine] {
	return func(yield func(core.DataLine) bool) {
		for line := range raw {
			dl, ok := Line(kind, line)
			if !ok {
				continue
			}
			if !yield(dl) {
				return
			}
		}
	}
}

// Output normalizes a complete provider output for one source.
func Output(kind core.SourceKind, output string) []core.DataLine {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}
	return slices.Collect(Lines(kind, strings.SplitSeq(output, "\n")))
}

// Line normalizes a single raw line. The boolean is false when the line is
// filtered out.
func Line(kind core.SourceKind, raw string) (core.DataLine, bool) {
	marker := kind.Marker()
	if !strings.Contains(raw, marker) {
		return core.DataLine{}, false
	}
	if knotsPattern.MatchString(raw) {
		return core.DataLine{}, false
	}

	switch kind {
	case core.SourceTide:
		return tideLine(raw)
	case core.SourceSun:
		if tideWordPattern.MatchString(raw) {
			return core.DataLine{}, false
		}
		return core.DataLine{
			Source:  kind,
			Keyword: marker,
			Text:    strings.TrimSpace(sunCodes.Replace(strings.TrimSpace(raw))),
		}, true
	case core.SourceMoon:
		if tideWordPattern.MatchString(raw) {
			return core.DataLine{}, false
		}
		return core.DataLine{
			Source:  kind,
			Keyword: marker,
			Text:    strings.TrimSpace(moonCodes.Replace(strings.TrimSpace(raw))),
		}, true
	}
	return core.DataLine{}, false
}

func tideLine(raw string) (core.DataLine, bool) {
	marker := core.SourceTide.Marker()
	p := strings.TrimSpace(raw)

	var sub string
	switch {
	case highPattern.MatchString(p):
		sub = "hightide"
	default:
		// Slack and current events carry no extreme; they render as low.
		sub = "lowtide"
	}

	keyword := marker + subTypeSeparator + sub
	p = strings.Replace(p, marker, keyword+" ", 1)
	p = highTidePattern.ReplaceAllString(p, "H")
	p = lowTidePattern.ReplaceAllString(p, "L")
	p = feetPattern.ReplaceAllString(p, "")
	p = commaPattern.ReplaceAllString(p, " ")

	return core.DataLine{
		Source:  core.SourceTide,
		Keyword: keyword,
		Text:    strings.TrimSpace(p),
	}, true
}

// Render joins lines into data file content, always newline terminated.
func Render(lines []core.DataLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	b.WriteByte('\n')
	return b.String()
}
