// Package ingest reads per-cell tables and cell-type hierarchies from the
// formats the command-line tool accepts. The statistic core itself never
// touches files; everything here runs before a batch starts.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// Required columns of a cell table. Any additional numeric columns are
// read as marker intensities, in header order.
var requiredColumns = []string{"image_id", "x", "y", "cell_type"}

// ReadCells parses a CSV per-cell table. Coordinates are multiplied by
// scale, which converts pixel tables to micrometers at ingest (pass 1 for
// no conversion).
func ReadCells(r io.Reader, scale float64) ([]cells.Cell, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading cell table header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, want := range requiredColumns {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("cell table missing column %q (have %v)", want, header)
		}
	}
	var markerCols []int
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "image_id", "x", "y", "cell_type":
		default:
			markerCols = append(markerCols, i)
		}
	}

	var out []cells.Cell
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading cell table line %d: %w", line, err)
		}
		x, err := strconv.ParseFloat(rec[col["x"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad x %q: %w", line, rec[col["x"]], err)
		}
		y, err := strconv.ParseFloat(rec[col["y"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad y %q: %w", line, rec[col["y"]], err)
		}
		c := cells.Cell{
			ImageID: rec[col["image_id"]],
			X:       x * scale,
			Y:       y * scale,
			Type:    rec[col["cell_type"]],
		}
		for _, mi := range markerCols {
			v, err := strconv.ParseFloat(rec[mi], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad marker value %q in column %q: %w", line, rec[mi], header[mi], err)
			}
			c.Markers = append(c.Markers, v)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cell table has no data rows")
	}
	return out, nil
}

// BuildPatterns groups cells by image and assembles one Pattern per
// image, windowed by the data extent of that image. Images whose extent
// is degenerate (all cells collinear) are returned in the skipped list
// rather than failing the whole ingest.
func BuildPatterns(cs []cells.Cell) (patterns []*cells.Pattern, skipped []string, err error) {
	byImage := make(map[string][]cells.Cell)
	for _, c := range cs {
		byImage[c.ImageID] = append(byImage[c.ImageID], c)
	}
	images := make([]string, 0, len(byImage))
	for id := range byImage {
		images = append(images, id)
	}
	sort.Strings(images)

	for _, id := range images {
		ics := byImage[id]
		pts := make([]cells.Point, len(ics))
		for i, c := range ics {
			pts[i] = cells.Point{X: c.X, Y: c.Y}
		}
		w := cells.BoundingWindow(pts)
		if w.Validate() != nil {
			skipped = append(skipped, id)
			continue
		}
		p, err := cells.NewPattern(id, w, ics)
		if err != nil {
			return nil, nil, fmt.Errorf("assembling image %s: %w", id, err)
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return nil, nil, fmt.Errorf("no image produced a usable point pattern")
	}
	return patterns, skipped, nil
}

// ReadHierarchy parses a JSON cell-type hierarchy of the form
// {"parent": ["child", ...], ...} into a Tree.
func ReadHierarchy(r io.Reader) (*cells.Tree, error) {
	var m map[string][]string
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing hierarchy JSON: %w", err)
	}
	tree, err := cells.NewTree(m)
	if err != nil {
		return nil, fmt.Errorf("invalid hierarchy: %w", err)
	}
	return tree, nil
}
