package manifest

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/aretw0/mahina/pkg/core"
)

func lines(m Manifest) []string {
	return strings.Split(strings.TrimSuffix(m.String(), "\n"), "\n")
}

func TestBuild_TideAndSun(t *testing.T) {
	req := core.Request{Month: 6, Year: 2024, Station: "X", Features: core.NewFeatures(core.FeatureTide, core.FeatureSun)}

	got := lines(ForRequest(req, ExpandCustomText(req.CustomText, false)))

	want := []string{
		"opt -a en -r Latin4",
		"def big_island_def",
		"include mahina.def.dat",
		"include tide.dat",
		"include sun.dat",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_AllFeaturesOrder(t *testing.T) {
	m := Build(core.NewFeatures(core.AllFeatures...), core.RegionOahu)

	want := []string{
		"opt -a ha",
		"def oahu_def",
		"include mahina.dat",
		"include mahina.def.dat",
		"include calendar_us.txt",
		"include tide.dat",
		"include sun.dat",
		"include moon.dat",
		"include custom.dat",
	}
	if diff := cmp.Diff(want, lines(m)); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_DefinitionsAlwaysIncluded(t *testing.T) {
	m := Build(0, core.RegionBigIsland)
	assert.Equal(t, []string{DefinitionsFile}, m.Includes())
}

func TestBuild_IsPure(t *testing.T) {
	fs := core.NewFeatures(core.FeatureMoon, core.FeatureHolidays, core.FeatureCustom)
	custom := ExpandCustomText("def oahu_def\nfoo_def bar", true)

	a := ForRequest(core.Request{Features: fs}, custom).String()
	b := ForRequest(core.Request{Features: fs}, custom).String()
	assert.Equal(t, a, b)
}

func TestBuild_LanguageTogglesOnlyOptLine(t *testing.T) {
	for _, base := range []core.Features{0, core.NewFeatures(core.AllFeatures...).Without(core.FeatureLanguage)} {
		off := lines(Build(base, core.RegionBigIsland))
		on := lines(Build(base.With(core.FeatureLanguage), core.RegionBigIsland))

		assert.Len(t, on, len(off))
		assert.NotEqual(t, off[0], on[0])
		assert.Equal(t, off[1:], on[1:])
	}
}

func TestBuild_TideTogglesOnlyTideLine(t *testing.T) {
	base := core.NewFeatures(core.AllFeatures...).Without(core.FeatureTide)
	off := lines(Build(base, core.RegionBigIsland))
	on := lines(Build(base.With(core.FeatureTide), core.RegionBigIsland))

	assert.Len(t, on, len(off)+1)
	idx := slices.Index(on, "include tide.dat")
	assert.GreaterOrEqual(t, idx, 0)
	without := slices.Delete(slices.Clone(on), idx, idx+1)
	assert.Equal(t, off, without, "other lines must keep their order")
}

func TestSelectRegion(t *testing.T) {
	assert.Equal(t, core.RegionOahu, SelectRegion("", "note\ndef oahu_def\n"))
	assert.Equal(t, core.RegionBigIsland, SelectRegion("", "note"))
	assert.Equal(t, core.RegionBigIsland, SelectRegion(core.RegionBigIsland, "def oahu_def"))
	assert.Equal(t, core.RegionOahu, SelectRegion(core.RegionOahu, ""))
}

func TestExpandCustomText(t *testing.T) {
	t.Run("Duplicates Reserved Token Lines", func(t *testing.T) {
		assert.Equal(t, "foo_def bar\nfoo_def_2 bar", ExpandCustomText("foo_def bar", true))
	})

	t.Run("Appends After All Original Lines", func(t *testing.T) {
		got := ExpandCustomText("  a_def x\nplain\nb_def y  \n", true)
		assert.Equal(t, "a_def x\nplain\nb_def y\na_def_2 x\nb_def_2 y", got)
	})

	t.Run("Only First Token Rewritten", func(t *testing.T) {
		assert.Equal(t, "a_def b_def\na_def_2 b_def", ExpandCustomText("a_def b_def", true))
	})

	t.Run("Disabled Layer Is Only Trimmed", func(t *testing.T) {
		assert.Equal(t, "foo_def bar", ExpandCustomText("  foo_def bar \n", false))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "", ExpandCustomText(" \n ", true))
	})
}
