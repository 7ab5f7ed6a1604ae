// Package core holds the domain types shared by every stage of the calendar
// pipeline: the request, the feature flags, normalized data lines, symbolic
// definitions and the pipeline states.
package core

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Feature is a single optional data layer of the rendered calendar.
type Feature uint8

const (
	FeatureLanguage Feature = iota
	FeatureTide
	FeatureSun
	FeatureMoon
	FeatureMahina
	FeatureHolidays
	FeatureCustom
)

var featureNames = [...]string{
	FeatureLanguage: "language",
	FeatureTide:     "tide",
	FeatureSun:      "sun",
	FeatureMoon:     "moon",
	FeatureMahina:   "mahina",
	FeatureHolidays: "holidays",
	FeatureCustom:   "custom",
}

// AllFeatures lists every feature in declaration order.
var AllFeatures = []Feature{
	FeatureLanguage, FeatureTide, FeatureSun, FeatureMoon,
	FeatureMahina, FeatureHolidays, FeatureCustom,
}

func (f Feature) String() string {
	if int(f) < len(featureNames) {
		return featureNames[f]
	}
	return fmt.Sprintf("feature(%d)", uint8(f))
}

// ParseFeature maps a flag token (as sent by the form) to a Feature.
func ParseFeature(token string) (Feature, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	for i, name := range featureNames {
		if name == token {
			return Feature(i), true
		}
	}
	return 0, false
}

// Features is an immutable set of enabled features.
type Features uint16

// NewFeatures builds a set from the given features.
func NewFeatures(fs ...Feature) Features {
	var s Features
	for _, f := range fs {
		s = s.With(f)
	}
	return s
}

// ParseFeatures builds a set from flag tokens. Unknown tokens are returned
// separately so the caller can decide whether to log them.
func ParseFeatures(tokens []string) (Features, []string) {
	var (
		s       Features
		unknown []string
	)
	for _, t := range tokens {
		if strings.TrimSpace(t) == "" {
			continue
		}
		f, ok := ParseFeature(t)
		if !ok {
			unknown = append(unknown, t)
			continue
		}
		s = s.With(f)
	}
	return s, unknown
}

func (s Features) Has(f Feature) bool { return s&(1<<f) != 0 }

func (s Features) With(f Feature) Features { return s | (1 << f) }

func (s Features) Without(f Feature) Features { return s &^ (1 << f) }

// List returns the enabled features in declaration order.
func (s Features) List() []Feature {
	var out []Feature
	for _, f := range AllFeatures {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Features) String() string {
	names := make([]string, 0, len(AllFeatures))
	for _, f := range s.List() {
		names = append(names, f.String())
	}
	return strings.Join(names, ",")
}

// Region selects one of the base region definition sets of the lunar template.
type Region string

const (
	RegionOahu      Region = "oahu"
	RegionBigIsland Region = "big_island"
)

// DefName is the symbol defined in the manifest for this region.
func (r Region) DefName() string { return string(r) + "_def" }

// ParseRegion validates an explicit region field. Empty input yields an
// empty Region, meaning "not specified".
func ParseRegion(s string) (Region, error) {
	switch r := Region(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return "", nil
	case RegionOahu, RegionBigIsland:
		return r, nil
	case "big-island", "bigisland", "hawaii":
		return RegionBigIsland, nil
	default:
		return "", NewValidation("region", fmt.Sprintf("unknown region %q", s))
	}
}

// SourceKind identifies one of the astronomical data feeds.
type SourceKind string

const (
	SourceTide SourceKind = "tide"
	SourceSun  SourceKind = "sun"
	SourceMoon SourceKind = "moon"
)

// Sources lists the data feeds in fetch order.
var Sources = []SourceKind{SourceTide, SourceSun, SourceMoon}

// Prefix is the line-prefix token embedded in the provider's time format.
func (k SourceKind) Prefix() string { return string(k) + "data" }

// Marker is the token every valid output line of this source carries.
func (k SourceKind) Marker() string { return k.Prefix() + ":" }

// Mask is the provider event mask that suppresses the other sources' events.
func (k SourceKind) Mask() string {
	switch k {
	case SourceTide:
		return "pSsMm"
	case SourceSun:
		return "pMm"
	case SourceMoon:
		return "Ss"
	}
	return ""
}

// DataFile is the workspace include file holding this source's lines.
func (k SourceKind) DataFile() string { return string(k) + ".dat" }

// Feature is the feature flag gating this source.
func (k SourceKind) Feature() Feature {
	switch k {
	case SourceSun:
		return FeatureSun
	case SourceMoon:
		return FeatureMoon
	}
	return FeatureTide
}

// DataLine is one normalized directive derived from a line of provider output.
type DataLine struct {
	Source SourceKind
	// Keyword is the rewritten source marker, e.g. `tidedata:\056hightide`.
	Keyword string
	// Text is the full canonical line as written to the data file.
	Text string
}

func (l DataLine) String() string { return l.Text }

// Definition is a named date marker consumed by the lunar template.
type Definition struct {
	Name string
	Date string
}

// Statement renders the definition as a typesetter directive.
func (d Definition) Statement() string { return "def " + d.Name + " " + d.Date }

// Request is a single calendar generation request. It is built once at the
// boundary and never mutated afterwards.
type Request struct {
	Month      int
	Year       int
	Station    string
	CustomText string
	// Region is the explicit base region. Empty means the legacy marker in
	// CustomText decides.
	Region     Region
	Features   Features
	Background []byte
}

// RequestInput is the textual form of a Request as received from a caller.
type RequestInput struct {
	Month      string
	Year       string
	Station    string
	CustomText string
	Region     string
	Options    []string
	Background []byte
}

// ParseRequest validates textual input and builds a Request. Unknown option
// tokens are ignored and returned for logging.
func ParseRequest(in RequestInput) (Request, []string, error) {
	month, err := parseInt("month", in.Month)
	if err != nil {
		return Request{}, nil, err
	}
	year, err := parseInt("year", in.Year)
	if err != nil {
		return Request{}, nil, err
	}
	region, err := ParseRegion(in.Region)
	if err != nil {
		return Request{}, nil, err
	}
	features, unknown := ParseFeatures(in.Options)

	req := Request{
		Month:      month,
		Year:       year,
		Station:    strings.TrimSpace(in.Station),
		CustomText: in.CustomText,
		Region:     region,
		Features:   features,
	}
	if len(in.Background) > 0 {
		req.Background = append([]byte(nil), in.Background...)
	}
	if err := req.Validate(); err != nil {
		return Request{}, nil, err
	}
	return req, unknown, nil
}

func parseInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewValidation(field, "is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewValidation(field, fmt.Sprintf("%q is not a number", s))
	}
	return n, nil
}

// Validate checks the invariants of a request.
func (r Request) Validate() error {
	if r.Month < 1 || r.Month > 12 {
		return NewValidation("month", fmt.Sprintf("%d is out of range 1-12", r.Month))
	}
	if r.Year < 1753 || r.Year > 9999 {
		return NewValidation("year", fmt.Sprintf("%d is out of range 1753-9999", r.Year))
	}
	if r.Region != "" && r.Region != RegionOahu && r.Region != RegionBigIsland {
		return NewValidation("region", fmt.Sprintf("unknown region %q", r.Region))
	}
	return nil
}

// Start is midnight of the first day of the requested month.
func (r Request) Start() time.Time {
	return time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is midnight of the first day of the following month.
func (r Request) End() time.Time { return r.Start().AddDate(0, 1, 0) }

// MonthString is the zero-padded month, e.g. "06".
func (r Request) MonthString() string { return fmt.Sprintf("%02d", r.Month) }

// HasBackground reports whether a background image was supplied.
func (r Request) HasBackground() bool { return len(r.Background) > 0 }

// Artifact names produced in every successful workspace.
const (
	ArtifactPostScript = "mahina.ps"
	ArtifactPDF        = "mahina.pdf"
	ArtifactPNG        = "mahina.png"
)

// ArtifactNames lists the artifacts exposed to callers.
var ArtifactNames = []string{ArtifactPostScript, ArtifactPDF, ArtifactPNG}

// Artifacts are the absolute paths of a finished run's outputs.
type Artifacts struct {
	PostScript string `json:"postscript"`
	PDF        string `json:"pdf"`
	PNG        string `json:"png"`
}

// NewArtifacts locates the artifacts inside dir.
func NewArtifacts(dir string) Artifacts {
	return Artifacts{
		PostScript: filepath.Join(dir, ArtifactPostScript),
		PDF:        filepath.Join(dir, ArtifactPDF),
		PNG:        filepath.Join(dir, ArtifactPNG),
	}
}

// Paths lists the artifact paths in ArtifactNames order.
func (a Artifacts) Paths() []string { return []string{a.PostScript, a.PDF, a.PNG} }

// Links are the public paths of the exposed artifacts.
type Links struct {
	PostScript string `json:"postscript"`
	PDF        string `json:"pdf"`
	PNG        string `json:"png"`
}

// NewLinks roots the artifact names under base (e.g. "/tmp/<id>").
func NewLinks(base string) Links {
	base = strings.TrimRight(base, "/")
	return Links{
		PostScript: base + "/" + ArtifactPostScript,
		PDF:        base + "/" + ArtifactPDF,
		PNG:        base + "/" + ArtifactPNG,
	}
}
