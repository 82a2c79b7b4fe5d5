package batch

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SydneyBioX/kontext/internal/cells"
	"github.com/SydneyBioX/kontext/internal/monitoring"
	"github.com/SydneyBioX/kontext/internal/spatial"
	"github.com/SydneyBioX/kontext/internal/testutil"
)

var window100 = cells.Window{XMin: 0, XMax: 100, YMin: 0, YMax: 100}

func testParams() Params {
	return Params{
		Workers: 4,
		Options: spatial.Options{
			Radii: []float64{2, 4, 6, 8, 10},
			Edge:  spatial.EdgeBorder,
		},
	}
}

// threeImages builds patterns where img3 lacks type b entirely.
func threeImages(t *testing.T) []*cells.Pattern {
	t.Helper()
	rng := rand.New(rand.NewSource(30))
	var ps []*cells.Pattern
	for _, id := range []string{"img1", "img2"} {
		cs := testutil.CSRCells(rng, id, "a", 60, window100)
		cs = append(cs, testutil.CSRCells(rng, id, "b", 60, window100)...)
		ps = append(ps, testutil.MustPattern(t, id, window100, cs))
	}
	cs := testutil.CSRCells(rng, "img3", "a", 60, window100)
	ps = append(ps, testutil.MustPattern(t, "img3", window100, cs))
	return ps
}

func TestRunMissingPropagation(t *testing.T) {
	defer monitoring.Mute()()
	r := NewRunner(threeImages(t), nil)
	tasks := r.Pairs([]string{"a"}, []string{"b"}, "")

	table, err := r.Run(context.Background(), tasks, testParams())
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	byImage := map[string]Row{}
	for _, row := range table.Rows {
		byImage[row.ImageID] = row
	}
	assert.False(t, byImage["img1"].Missing)
	assert.False(t, byImage["img2"].Missing)
	assert.True(t, byImage["img3"].Missing, "img3 has no b cells")
	assert.Equal(t, ReasonInsufficientCells, byImage["img3"].Reason)
	assert.Len(t, table.Excluded(), 1)
}

func TestMeanOverImagesExcludesMissing(t *testing.T) {
	table := &Table{Rows: []Row{
		{ImageID: "img1", From: "a", To: "b", L: 4},
		{ImageID: "img2", From: "a", To: "b", L: 8},
		{ImageID: "img3", From: "a", To: "b", Missing: true, Reason: ReasonInsufficientCells},
	}}
	means := table.MeanOverImages()
	got := means[Key{From: "a", To: "b"}]
	// Mean of the two defined rows, not dragged down by a zero.
	assert.Equal(t, 6.0, got)
}

func TestMeanOverImagesAllMissingIsNaN(t *testing.T) {
	table := &Table{Rows: []Row{
		{ImageID: "img1", From: "a", To: "b", Missing: true, Reason: ReasonInsufficientCells},
	}}
	means := table.MeanOverImages()
	v, ok := means[Key{From: "a", To: "b"}]
	require.True(t, ok, "requested relationship must stay visible")
	assert.True(t, math.IsNaN(v))
}

func TestRunInvalidHierarchyFailsRequestNotBatch(t *testing.T) {
	defer monitoring.Mute()()
	rng := rand.New(rand.NewSource(31))
	cs := testutil.CSRCells(rng, "img1", "a", 60, window100)
	cs = append(cs, testutil.CSRCells(rng, "img1", "b", 60, window100)...)
	cs = append(cs, testutil.CSRCells(rng, "img1", "cd4", 60, window100)...)
	p := testutil.MustPattern(t, "img1", window100, cs)

	tree, err := cells.NewTree(map[string][]string{"immune": {"cd4"}})
	require.NoError(t, err)

	r := NewRunner([]*cells.Pattern{p}, tree)
	tasks := []Task{
		{ImageID: "img1", From: "a", To: "b", Parent: "immune"},   // b not under immune
		{ImageID: "img1", From: "a", To: "cd4", Parent: "immune"}, // fine
	}
	table, err := r.Run(context.Background(), tasks, testParams())
	require.NoError(t, err, "one bad relationship must not abort the batch")

	assert.False(t, table.Rows[0].Missing, "the raw statistic is still defined")
	assert.True(t, table.Rows[0].ContextMissing)
	assert.Equal(t, ReasonInvalidHierarchy, table.Rows[0].Reason)
	assert.False(t, table.Rows[1].Missing)
	assert.False(t, table.Rows[1].ContextMissing)
}

func TestRunContextFailureKeepsRawValue(t *testing.T) {
	// The parent population lives in the left region while every from-cell
	// sits on the right: the context statistic is undefined inside the
	// parent's extent but the raw relationship over the full image is not.
	defer monitoring.Mute()()
	rng := rand.New(rand.NewSource(32))
	left := cells.Window{XMin: 0, XMax: 40, YMin: 0, YMax: 100}
	right := cells.Window{XMin: 60, XMax: 100, YMin: 0, YMax: 100}
	cs := testutil.CSRCells(rng, "img1", "bg", 40, left)
	cs = append(cs, testutil.CSRCells(rng, "img1", "child", 40, left)...)
	cs = append(cs, testutil.CSRCells(rng, "img1", "a", 40, right)...)
	p := testutil.MustPattern(t, "img1", window100, cs)

	tree, err := cells.NewTree(map[string][]string{"immune": {"bg", "child"}})
	require.NoError(t, err)

	r := NewRunner([]*cells.Pattern{p}, tree)
	tasks := []Task{{ImageID: "img1", From: "a", To: "child", Parent: "immune"}}
	table, err := r.Run(context.Background(), tasks, testParams())
	require.NoError(t, err)

	row := table.Rows[0]
	assert.False(t, row.Missing)
	assert.True(t, row.ContextMissing)
	assert.Equal(t, ReasonInsufficientCells, row.Reason)
	assert.NotZero(t, row.L, "raw summary over the full window survives")
	assert.Len(t, table.Excluded(), 1)
	assert.Empty(t, table.SignFlips(0), "context-missing rows cannot flip sign")
}

func TestRunUnknownParentAbortsRun(t *testing.T) {
	defer monitoring.Mute()()
	r := NewRunner(threeImages(t), mustTree(t))
	tasks := []Task{{ImageID: "img1", From: "a", To: "b", Parent: "nosuch"}}
	_, err := r.Run(context.Background(), tasks, testParams())
	assert.Error(t, err, "a population missing from the hierarchy is a configuration error")
}

func TestRunNoTreeButParentRequested(t *testing.T) {
	r := NewRunner(threeImages(t), nil)
	tasks := []Task{{ImageID: "img1", From: "a", To: "b", Parent: "immune"}}
	_, err := r.Run(context.Background(), tasks, testParams())
	assert.Error(t, err)
}

func TestRunInvalidRadiiAborts(t *testing.T) {
	r := NewRunner(threeImages(t), nil)
	params := testParams()
	params.Options.Radii = []float64{5, 3}
	_, err := r.Run(context.Background(), r.Pairs([]string{"a"}, []string{"b"}, ""), params)
	assert.ErrorIs(t, err, spatial.ErrInvalidRadii)
}

func TestRunCancellation(t *testing.T) {
	defer monitoring.Mute()()
	r := NewRunner(threeImages(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, r.Pairs([]string{"a"}, []string{"b"}, ""), testParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCurvesRequested(t *testing.T) {
	defer monitoring.Mute()()
	r := NewRunner(threeImages(t), nil)
	params := testParams()
	params.Curves = true

	table, err := r.Run(context.Background(), []Task{{ImageID: "img1", From: "a", To: "b"}}, params)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0].LCurve, len(params.Options.Radii))
	assert.Equal(t, params.Options.Radii, table.Rows[0].Radii)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	defer monitoring.Mute()()
	r := NewRunner(threeImages(t), nil)
	tasks := r.Pairs([]string{"a", "b"}, []string{"a", "b"}, "")

	p1 := testParams()
	p1.Workers = 1
	t1, err := r.Run(context.Background(), tasks, p1)
	require.NoError(t, err)

	p8 := testParams()
	p8.Workers = 8
	t8, err := r.Run(context.Background(), tasks, p8)
	require.NoError(t, err)

	require.Equal(t, len(t1.Rows), len(t8.Rows))
	for i := range t1.Rows {
		assert.Equal(t, t1.Rows[i], t8.Rows[i])
	}
}

func TestSignFlips(t *testing.T) {
	table := &Table{Rows: []Row{
		{ImageID: "img1", From: "a", To: "b", Parent: "p", L: 5, Context: -2},
		{ImageID: "img2", From: "a", To: "b", Parent: "p", L: 5, Context: 3},
		{ImageID: "img3", From: "a", To: "b", L: -5},
	}}
	flips := table.SignFlips(0)
	require.Len(t, flips, 1)
	assert.Equal(t, "img1", flips[0].ImageID)
}

func mustTree(t *testing.T) *cells.Tree {
	t.Helper()
	tree, err := cells.NewTree(map[string][]string{"immune": {"a", "b"}})
	require.NoError(t, err)
	return tree
}
