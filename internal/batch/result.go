// Package batch fans the co-localization statistic out over independent
// (image × from × to × parent × radii) tasks, runs them on a bounded
// worker pool, and gathers one result table after the barrier. Per-unit
// failures become missing rows; only configuration-level errors abort a
// run.
package batch

import (
	"math"
)

// Reason codes recorded for missing or excluded rows.
const (
	ReasonInsufficientCells = "insufficient_cells"
	ReasonDegenerateWindow  = "degenerate_window"
	ReasonInvalidHierarchy  = "invalid_hierarchy"
)

// Row is the outcome of one task: the raw summary statistic and, when a
// parent was requested, the context-corrected value. A missing row keeps
// its key and reason but carries no values.
type Row struct {
	ImageID string
	From    string
	To      string
	Parent  string // empty when no context correction was requested

	// Radii and LCurve hold the per-radius L values when curves were
	// requested; nil otherwise.
	Radii  []float64
	LCurve []float64

	// L is the raw summary statistic u.
	L float64
	// Context is the context-corrected value; only meaningful when Parent
	// is non-empty.
	Context float64

	// Missing marks the whole unit undefined: no raw statistic could be
	// computed. ContextMissing marks only the context column undefined
	// while the raw statistic stands.
	Missing        bool
	ContextMissing bool
	Reason         string // one of the Reason* codes when either flag is set
}

// Key identifies a relationship independent of image, for aggregation.
type Key struct {
	From, To, Parent string
}

// Table is the aggregated output of one batch run.
type Table struct {
	Rows []Row
}

// Excluded returns the rows with an undefined value, the audit trail of
// units that were skipped rather than computed. Rows where only the
// context column is missing appear here too; their raw value still shows
// in Rows.
func (t *Table) Excluded() []Row {
	var out []Row
	for _, r := range t.Rows {
		if r.Missing || r.ContextMissing {
			out = append(out, r)
		}
	}
	return out
}

// MeanOverImages averages the raw summary per relationship across images,
// excluding missing rows entirely. A relationship with no defined rows is
// reported as NaN so callers can still see it was requested.
func (t *Table) MeanOverImages() map[Key]float64 {
	sums := make(map[Key]float64)
	counts := make(map[Key]int)
	for _, r := range t.Rows {
		k := Key{From: r.From, To: r.To, Parent: r.Parent}
		if r.Missing {
			if _, ok := counts[k]; !ok {
				counts[k] = 0 // remember the key even if never defined
			}
			continue
		}
		sums[k] += r.L
		counts[k]++
	}
	out := make(map[Key]float64, len(counts))
	for k, n := range counts {
		if n == 0 {
			out[k] = math.NaN()
			continue
		}
		out[k] = sums[k] / float64(n)
	}
	return out
}

// SignFlips returns the rows where the raw and context-corrected
// conclusions disagree in sign. These are the cases where a naive
// co-localization analysis would mislead.
func (t *Table) SignFlips(neutral float64) []Row {
	var out []Row
	for _, r := range t.Rows {
		if r.Missing || r.ContextMissing || r.Parent == "" {
			continue
		}
		if r.L > 0 && r.Context < neutral || r.L < 0 && r.Context > neutral {
			out = append(out, r)
		}
	}
	return out
}
