package defs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/mahina/pkg/core"
)

// Pinned sample of `pcal -o /dev/null -f mahina.def -ZT 6 2023 36`.
const discoverySample = `pcal: processing mahina.def
Dates for 06/2023 - 05/2026:
06/14/2023  hilo_def
06/15/2023  hoaka_def
07/13/2023  hilo_def

   not a candidate line
07/14/2023  
08/12/2023  hilo_def
`

type fakeDiscoverer struct {
	out  string
	err  error
	args []int
	file string
}

func (f *fakeDiscoverer) DiscoverDefinitions(ctx context.Context, defFile string, month, year, months int) (string, error) {
	f.file = defFile
	f.args = []int{month, year, months}
	return f.out, f.err
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		want    core.Definition
		ok      bool
		wantErr bool
	}{
		{"Candidate", "06/14/2023  hilo_def", core.Definition{Name: "hilo_def", Date: "06/14/2023"}, true, false},
		{"Trailing Blanks", "06/14/2023  hilo_def   \r", core.Definition{Name: "hilo_def", Date: "06/14/2023"}, true, false},
		{"Header", "Dates for 06/2023", core.Definition{}, false, false},
		{"Indented", "  06/14/2023  hilo_def", core.Definition{}, false, false},
		{"Empty", "", core.Definition{}, false, false},
		{"No Name", "06/14/2023", core.Definition{}, false, false},
		{"Blank Name", "06/14/2023     ", core.Definition{}, false, false},
		{"Truncated", "06/14", core.Definition{}, false, true},
		{"Drifted Date", "20230614  hilo_def", core.Definition{}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := ParseLine(tc.line)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnexpectedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_PinnedSample(t *testing.T) {
	defs, errs := Parse(discoverySample)
	assert.Empty(t, errs)
	assert.Equal(t, []core.Definition{
		{Name: "hilo_def", Date: "06/14/2023"},
		{Name: "hoaka_def", Date: "06/15/2023"},
		{Name: "hilo_def", Date: "07/13/2023"},
		{Name: "hilo_def", Date: "08/12/2023"},
	}, defs)
}

func TestParse_ReportsDrift(t *testing.T) {
	_, errs := Parse("06/14/2023  hilo_def\n20230615  hoaka_def\n")
	require.Len(t, errs, 1)

	var lerr *LineError
	require.True(t, errors.As(errs[0], &lerr))
	assert.Equal(t, 2, lerr.Line)
	assert.ErrorIs(t, errs[0], ErrUnexpectedFormat)
}

func TestDedupe(t *testing.T) {
	t.Run("Single Occurrence Unchanged", func(t *testing.T) {
		got := Dedupe([]core.Definition{{Name: "hilo_def", Date: "06/14/2023"}})
		assert.Equal(t, []core.Definition{{Name: "hilo_def", Date: "06/14/2023"}}, got)
	})

	t.Run("Collision Keeps Both Dates", func(t *testing.T) {
		got := Dedupe([]core.Definition{
			{Name: "hilo_def", Date: "06/14/2023"},
			{Name: "hilo_def", Date: "07/13/2023"},
		})
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0].Name, got[1].Name)
		assert.Equal(t, "hilo_def", got[0].Name)
		assert.Equal(t, "hilo_def_2", got[1].Name)
		assert.Equal(t, "06/14/2023", got[0].Date)
		assert.Equal(t, "07/13/2023", got[1].Date)
	})

	t.Run("Counter Grows", func(t *testing.T) {
		got := Dedupe([]core.Definition{
			{Name: "a", Date: "1"}, {Name: "a", Date: "2"}, {Name: "a", Date: "3"},
		})
		assert.Equal(t, []string{"a", "a_2", "a_3"}, names(got))
	})

	t.Run("Suffix Never Shadows A Real Name", func(t *testing.T) {
		got := Dedupe([]core.Definition{
			{Name: "a", Date: "1"}, {Name: "a", Date: "2"}, {Name: "a_2", Date: "3"},
		})
		assert.Equal(t, []string{"a", "a_2", "a_2_2"}, names(got))
	})

	t.Run("Deterministic", func(t *testing.T) {
		in, _ := Parse(discoverySample)
		assert.Equal(t, Dedupe(in), Dedupe(in))
	})
}

func TestResolver_Resolve(t *testing.T) {
	d := &fakeDiscoverer{out: discoverySample}
	r := NewResolver(d, nil)

	defs := r.Resolve(context.Background(), "/work/mahina.def", 6, 2024)

	assert.Equal(t, "/work/mahina.def", d.file)
	assert.Equal(t, []int{6, 2023, 36}, d.args, "window anchors on the previous year")
	assert.Equal(t, []string{"hilo_def", "hoaka_def", "hilo_def_2", "hilo_def_3"}, names(defs))
	assert.Equal(t,
		"def hilo_def 06/14/2023\ndef hoaka_def 06/15/2023\ndef hilo_def_2 07/13/2023\ndef hilo_def_3 08/12/2023\n",
		Render(defs))
}

func TestResolver_FailureIsEmpty(t *testing.T) {
	r := NewResolver(&fakeDiscoverer{err: errors.New("exit status 1")}, nil)
	defs := r.Resolve(context.Background(), "mahina.def", 1, 2024)
	assert.Empty(t, defs)
	assert.Equal(t, "", Render(defs))

	r = NewResolver(&fakeDiscoverer{out: "nothing to see\n"}, nil)
	assert.Empty(t, r.Resolve(context.Background(), "mahina.def", 1, 2024))
}

func names(defs []core.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}
