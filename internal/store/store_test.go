package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SydneyBioX/kontext/internal/batch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigratesSchema(t *testing.T) {
	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	runID := NewRunID()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertRun(RunRecord{
		RunID:      runID,
		StartedAt:  started,
		ConfigJSON: `{"sigma": 10}`,
		TaskCount:  6,
	}))
	require.NoError(t, s.CompleteRun(runID, started.Add(time.Minute), 5))

	rec, err := s.Run(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, rec.RunID)
	assert.Equal(t, started, rec.StartedAt)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, started.Add(time.Minute), *rec.CompletedAt)
	assert.Equal(t, 6, rec.TaskCount)
	assert.Equal(t, 5, rec.DefinedCount)
	assert.Equal(t, `{"sigma": 10}`, rec.ConfigJSON)
}

func TestCompleteUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.CompleteRun("nope", time.Now(), 0)
	assert.Error(t, err)
}

func TestSaveTableRoundTrip(t *testing.T) {
	s := openTestStore(t)
	runID := NewRunID()
	require.NoError(t, s.InsertRun(RunRecord{RunID: runID, StartedAt: time.Now(), TaskCount: 3}))

	table := &batch.Table{Rows: []batch.Row{
		{
			ImageID: "img1", From: "a", To: "b", Parent: "immune",
			L: 3.5, Context: -1.25,
			Radii: []float64{10, 20}, LCurve: []float64{12.5, 21},
		},
		{ImageID: "img2", From: "a", To: "b", L: -2},
		{ImageID: "img3", From: "a", To: "b", Missing: true, Reason: batch.ReasonInsufficientCells},
		{
			ImageID: "img4", From: "a", To: "b", Parent: "immune", L: 1.5,
			ContextMissing: true, Reason: batch.ReasonInsufficientCells,
		},
	}}
	require.NoError(t, s.SaveTable(runID, table))

	results, err := s.Results(runID)
	require.NoError(t, err)
	require.Len(t, results, 3, "missing rows must not appear as results")

	assert.Equal(t, "img1", results[0].ImageID)
	assert.Equal(t, "immune", results[0].Parent)
	assert.Equal(t, 3.5, results[0].L)
	assert.Equal(t, -1.25, results[0].Context)
	assert.Equal(t, []float64{10, 20}, results[0].Radii)
	assert.Equal(t, []float64{12.5, 21}, results[0].LCurve)

	assert.Equal(t, "img2", results[1].ImageID)
	assert.Empty(t, results[1].Parent)
	assert.Nil(t, results[1].LCurve)

	// Raw value survives with the context column marked missing.
	assert.Equal(t, "img4", results[2].ImageID)
	assert.Equal(t, 1.5, results[2].L)
	assert.True(t, results[2].ContextMissing)

	excl, err := s.Exclusions(runID)
	require.NoError(t, err)
	require.Len(t, excl, 2)
	assert.Equal(t, "img3", excl[0].ImageID)
	assert.Equal(t, batch.ReasonInsufficientCells, excl[0].Reason)
	assert.Equal(t, "img4", excl[1].ImageID)
}

func TestMigrateDown(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
