// Package manifest builds the ordered include/def directive list that tells
// the typesetter which data layers to render.
package manifest

import (
	"strings"

	"github.com/aretw0/mahina/pkg/core"
)

// Workspace file names referenced by the manifest.
const (
	FileName        = "include.dat"
	LunarData       = "mahina.dat"
	DefinitionsFile = "mahina.def.dat"
	HolidaysFile    = "calendar_us.txt"
	CustomFile      = "custom.dat"
)

const (
	optLanguage = "-a ha"
	optDefault  = "-a en -r Latin4"

	// legacyRegionMarker selects Oahu when found in custom text and no
	// explicit region was requested.
	legacyRegionMarker = "def oahu_def"

	reservedToken = "_def"
)

// Directive is one manifest statement.
type Directive struct {
	Verb string
	Arg  string
}

func (d Directive) String() string { return d.Verb + " " + d.Arg }

// Manifest is an ordered directive list. Order is fixed by Build, never by
// data arrival.
type Manifest []Directive

// String renders the manifest file content, one directive per line.
func (m Manifest) String() string {
	var b strings.Builder
	for _, d := range m {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Includes lists the files the manifest includes, in order.
func (m Manifest) Includes() []string {
	var out []string
	for _, d := range m {
		if d.Verb == "include" {
			out = append(out, d.Arg)
		}
	}
	return out
}

// Build assembles the manifest for a feature set and a base region.
func Build(features core.Features, region core.Region) Manifest {
	m := make(Manifest, 0, 10)

	if features.Has(core.FeatureLanguage) {
		m = append(m, Directive{"opt", optLanguage})
	} else {
		m = append(m, Directive{"opt", optDefault})
	}
	m = append(m, Directive{"def", region.DefName()})

	if features.Has(core.FeatureMahina) {
		m = append(m, Directive{"include", LunarData})
	}
	m = append(m, Directive{"include", DefinitionsFile})
	if features.Has(core.FeatureHolidays) {
		m = append(m, Directive{"include", HolidaysFile})
	}
	for _, src := range core.Sources {
		if features.Has(src.Feature()) {
			m = append(m, Directive{"include", src.DataFile()})
		}
	}
	if features.Has(core.FeatureCustom) {
		m = append(m, Directive{"include", CustomFile})
	}
	return m
}

// ForRequest builds the manifest for req given its expanded custom text.
func ForRequest(req core.Request, custom string) Manifest {
	return Build(req.Features, SelectRegion(req.Region, custom))
}

// SelectRegion prefers the explicit region. Without one, the legacy marker
// in custom text picks Oahu; anything else is the Big Island.
func SelectRegion(explicit core.Region, custom string) core.Region {
	if explicit != "" {
		return explicit
	}
	if strings.Contains(custom, legacyRegionMarker) {
		return core.RegionOahu
	}
	return core.RegionBigIsland
}

// ExpandCustomText trims the custom text and, when the custom layer is
// enabled, appends a "_def_2" twin after the text for every line that uses
// the reserved "_def" token. The originals are kept.
func ExpandCustomText(text string, enabled bool) string {
	text = strings.TrimSpace(text)
	if !enabled || text == "" {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for line := range strings.SplitSeq(text, "\n") {
		if strings.Contains(line, reservedToken) {
			b.WriteByte('\n')
			b.WriteString(strings.Replace(line, reservedToken, reservedToken+"_2", 1))
		}
	}
	return b.String()
}
