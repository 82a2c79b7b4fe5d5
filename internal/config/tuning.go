// Package config loads analysis tuning parameters from JSON. Fields are
// pointers so a partial file only overrides what it names; the Get*
// accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SydneyBioX/kontext/internal/spatial"
	"github.com/SydneyBioX/kontext/internal/units"
)

// TuningConfig is the root configuration for a batch run. The same JSON
// schema is used for files on disk and for run records persisted in the
// result store.
type TuningConfig struct {
	// Radius sequence: [RadiusMin, RadiusMax] stepped by RadiusStep, in
	// the configured unit.
	RadiusMin  *float64 `json:"radius_min,omitempty"`
	RadiusMax  *float64 `json:"radius_max,omitempty"`
	RadiusStep *float64 `json:"radius_step,omitempty"`

	// Sigma is the tissue-inhomogeneity smoothing bandwidth; 0 disables
	// the inhomogeneous baseline.
	Sigma *float64 `json:"sigma,omitempty"`

	// EdgeCorrection is "border" or "none".
	EdgeCorrection *string `json:"edge_correction,omitempty"`

	// ContextMode is "difference" or "ratio".
	ContextMode *string `json:"context_mode,omitempty"`

	// Workers is the worker-pool size; 0 means one per CPU.
	Workers *int `json:"workers,omitempty"`

	// MinCells is the minimum per-type cell count for a relationship to be
	// defined in an image.
	MinCells *int `json:"min_cells,omitempty"`

	// Curves requests per-radius curve values in the output table.
	Curves *bool `json:"curves,omitempty"`

	// Unit is the spatial unit coordinates and radii are expressed in
	// ("px" or "um"); MicronsPerPixel converts between them at ingest.
	Unit            *string  `json:"unit,omitempty"`
	MicronsPerPixel *float64 `json:"microns_per_pixel,omitempty"`
}

// Load reads a TuningConfig from a JSON file. The file must have a .json
// extension and stay under the size cap. Omitted fields keep defaults, so
// partial configs are safe.
func Load(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are coherent.
func (c *TuningConfig) Validate() error {
	if c.RadiusMin != nil && *c.RadiusMin <= 0 {
		return fmt.Errorf("radius_min must be positive, got %v", *c.RadiusMin)
	}
	if c.RadiusStep != nil && *c.RadiusStep <= 0 {
		return fmt.Errorf("radius_step must be positive, got %v", *c.RadiusStep)
	}
	if c.RadiusMin != nil && c.RadiusMax != nil && *c.RadiusMax < *c.RadiusMin {
		return fmt.Errorf("radius_max %v below radius_min %v", *c.RadiusMax, *c.RadiusMin)
	}
	if c.Sigma != nil && *c.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %v", *c.Sigma)
	}
	if c.EdgeCorrection != nil {
		switch *c.EdgeCorrection {
		case "border", "none":
		default:
			return fmt.Errorf("edge_correction must be \"border\" or \"none\", got %q", *c.EdgeCorrection)
		}
	}
	if c.ContextMode != nil {
		switch *c.ContextMode {
		case "difference", "ratio":
		default:
			return fmt.Errorf("context_mode must be \"difference\" or \"ratio\", got %q", *c.ContextMode)
		}
	}
	if c.MinCells != nil && *c.MinCells < 1 {
		return fmt.Errorf("min_cells must be at least 1, got %d", *c.MinCells)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Unit != nil && !units.IsValid(*c.Unit) {
		return fmt.Errorf("unit must be one of %s, got %q", units.ValidUnitsString(), *c.Unit)
	}
	if c.MicronsPerPixel != nil && *c.MicronsPerPixel <= 0 {
		return fmt.Errorf("microns_per_pixel must be positive, got %v", *c.MicronsPerPixel)
	}
	return nil
}

// GetRadii expands the min/max/step triple into the evaluation sequence.
func (c *TuningConfig) GetRadii() []float64 {
	min, max, step := 10.0, 100.0, 10.0
	if c.RadiusMin != nil {
		min = *c.RadiusMin
	}
	if c.RadiusMax != nil {
		max = *c.RadiusMax
	}
	if c.RadiusStep != nil {
		step = *c.RadiusStep
	}
	var rs []float64
	for r := min; r <= max+step/1e9; r += step {
		rs = append(rs, r)
	}
	return rs
}

// GetSigma returns the smoothing bandwidth or the default (disabled).
func (c *TuningConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return 0
	}
	return *c.Sigma
}

// GetEdgeCorrection maps the configured policy onto the statistic core's
// enum, defaulting to border correction.
func (c *TuningConfig) GetEdgeCorrection() spatial.EdgeCorrection {
	if c.EdgeCorrection != nil && *c.EdgeCorrection == "none" {
		return spatial.EdgeNone
	}
	return spatial.EdgeBorder
}

// GetContextMode maps the configured mode onto the statistic core's enum,
// defaulting to the difference form.
func (c *TuningConfig) GetContextMode() spatial.Mode {
	if c.ContextMode != nil && *c.ContextMode == "ratio" {
		return spatial.ModeRatio
	}
	return spatial.ModeDifference
}

// GetWorkers returns the worker-pool size; 0 means one per CPU.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetMinCells returns the minimum per-type cell count.
func (c *TuningConfig) GetMinCells() int {
	if c.MinCells == nil {
		return 1
	}
	return *c.MinCells
}

// GetCurves reports whether per-radius curves were requested.
func (c *TuningConfig) GetCurves() bool {
	if c.Curves == nil {
		return false
	}
	return *c.Curves
}

// GetUnit returns the spatial unit, defaulting to pixels.
func (c *TuningConfig) GetUnit() string {
	if c.Unit == nil {
		return units.Pixels
	}
	return *c.Unit
}

// GetMicronsPerPixel returns the pixel pitch, defaulting to 1.
func (c *TuningConfig) GetMicronsPerPixel() float64 {
	if c.MicronsPerPixel == nil {
		return 1
	}
	return *c.MicronsPerPixel
}

// Options assembles the statistic options from the configured values.
// Radii and sigma are written in the configured unit; they are converted
// to micrometers here so they match coordinates scaled at ingest.
func (c *TuningConfig) Options() spatial.Options {
	unit := c.GetUnit()
	pitch := c.GetMicronsPerPixel()
	radii := c.GetRadii()
	for i, r := range radii {
		radii[i] = units.ToMicrons(r, unit, pitch)
	}
	return spatial.Options{
		Radii:    radii,
		Edge:     c.GetEdgeCorrection(),
		Sigma:    units.ToMicrons(c.GetSigma(), unit, pitch),
		MinCells: c.GetMinCells(),
	}
}
