package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/SydneyBioX/kontext/internal/cells"
	"github.com/SydneyBioX/kontext/internal/monitoring"
	"github.com/SydneyBioX/kontext/internal/spatial"
)

// Task is one independent unit of work: a pairwise relationship in one
// image, optionally referenced against a parent population.
type Task struct {
	ImageID string
	From    string
	To      string
	Parent  string // population label in the hierarchy; "" for raw only
}

// Params configures a batch run. Parallelism is an explicit value here,
// not ambient global state.
type Params struct {
	// Workers is the worker-pool size. Values below 1 mean GOMAXPROCS.
	Workers int
	// Stat options applied to every task.
	Options spatial.Options
	// Mode for the context-corrected value.
	Mode spatial.Mode
	// Curves requests per-radius values in each row.
	Curves bool
}

func (p Params) workers() int {
	if p.Workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}

// Runner executes batches over a fixed set of image patterns and one
// cell-type hierarchy. It holds no mutable state across runs.
type Runner struct {
	patterns map[string]*cells.Pattern
	tree     *cells.Tree
}

// NewRunner indexes the patterns by image id. tree may be nil when no
// context-corrected relationships will be requested.
func NewRunner(patterns []*cells.Pattern, tree *cells.Tree) *Runner {
	m := make(map[string]*cells.Pattern, len(patterns))
	for _, p := range patterns {
		m[p.ImageID] = p
	}
	return &Runner{patterns: m, tree: tree}
}

// Pairs expands the cross product of images and (from, to, parent)
// relationship requests into a flat task list, sorted for determinism.
func (r *Runner) Pairs(from, to []string, parent string) []Task {
	images := make([]string, 0, len(r.patterns))
	for id := range r.patterns {
		images = append(images, id)
	}
	sort.Strings(images)

	var tasks []Task
	for _, img := range images {
		for _, f := range from {
			for _, t := range to {
				tasks = append(tasks, Task{ImageID: img, From: f, To: t, Parent: parent})
			}
		}
	}
	return tasks
}

// Run executes the tasks on a bounded worker pool and assembles the
// result table. Rows appear in task order regardless of completion order.
//
// Per-unit failures (insufficient cells, degenerate windows, a parent not
// containing a task's to-type) are recorded as missing rows. A hierarchy
// that is invalid for every task referencing it, or a malformed radius
// sequence, is a configuration error and aborts the run. Cancellation is
// all-or-nothing: on context cancellation partial results are discarded.
func (r *Runner) Run(ctx context.Context, tasks []Task, params Params) (*Table, error) {
	if err := r.validate(tasks, params); err != nil {
		return nil, err
	}

	rows := make([]Row, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(params.workers())

	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = r.runOne(task, params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	defined := 0
	for _, row := range rows {
		if !row.Missing {
			defined++
		}
	}
	monitoring.Logf("batch: %d/%d relationships defined across %d tasks",
		defined, len(rows), len(tasks))

	return &Table{Rows: rows}, nil
}

// validate rejects configuration-level errors before any work starts.
func (r *Runner) validate(tasks []Task, params Params) error {
	if err := params.Options.Validate(); err != nil {
		return err
	}

	needTree := false
	for _, t := range tasks {
		if t.Parent != "" {
			needTree = true
			if r.tree != nil && !r.tree.Known(t.Parent) {
				return fmt.Errorf("hierarchy does not define population %q", t.Parent)
			}
		}
		if _, ok := r.patterns[t.ImageID]; !ok {
			return fmt.Errorf("unknown image %q in task list", t.ImageID)
		}
	}
	if needTree && r.tree == nil {
		return errors.New("tasks request parent context but no hierarchy was provided")
	}
	return nil
}

// runOne evaluates a single task, mapping the statistic core's error
// taxonomy onto a missing row.
func (r *Runner) runOne(task Task, params Params) Row {
	row := Row{ImageID: task.ImageID, From: task.From, To: task.To, Parent: task.Parent}
	p := r.patterns[task.ImageID]

	curve, err := spatial.CrossL(p, task.From, task.To, params.Options)
	if err != nil {
		return missingRow(row, err)
	}
	row.L = curve.Summary()
	if params.Curves {
		row.Radii = curve.Radii
		row.LCurve = curve.L
	}

	if task.Parent == "" {
		return row
	}

	leaves := r.tree.Leaves(task.Parent)
	if !r.tree.Contains(task.Parent, task.To) {
		// The parent does not contain this to-type: the context value is
		// undefined for this relationship, the raw statistic stands.
		row.ContextMissing = true
		row.Reason = ReasonInvalidHierarchy
		monitoring.Logf("batch: %s: population %q does not contain %q", task.ImageID, task.Parent, task.To)
		return row
	}
	res, err := spatial.ContextL(p, task.From, task.To, leaves, params.Mode, params.Options)
	if err != nil {
		return contextMissingRow(row, err)
	}
	row.Context = res.Value
	return row
}

func missingRow(row Row, err error) Row {
	row.Missing = true
	row.L = 0
	row.Context = 0
	row.Radii = nil
	row.LCurve = nil
	row.Reason = reasonFor(err)
	monitoring.Logf("batch: %s %s→%s skipped: %v", row.ImageID, row.From, row.To, err)
	return row
}

// contextMissingRow marks only the context column missing; the raw
// statistic was already computed over the full image window and stays.
func contextMissingRow(row Row, err error) Row {
	row.ContextMissing = true
	row.Context = 0
	row.Reason = reasonFor(err)
	monitoring.Logf("batch: %s %s→%s context skipped: %v", row.ImageID, row.From, row.To, err)
	return row
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, spatial.ErrInsufficientCells):
		return ReasonInsufficientCells
	case errors.Is(err, spatial.ErrDegenerateWindow):
		return ReasonDegenerateWindow
	default:
		return ReasonInvalidHierarchy
	}
}
