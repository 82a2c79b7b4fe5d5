package spatial

import "errors"

// Sentinel errors for the per-unit failure taxonomy. Batch execution maps
// these onto missing/excluded result rows; they never abort a whole run.
var (
	// ErrInsufficientCells marks a relationship that is undefined for an
	// image because one of the types has fewer cells than the configured
	// minimum. Callers must treat the unit as missing, never as zero.
	ErrInsufficientCells = errors.New("insufficient cells")

	// ErrDegenerateWindow marks an image whose observation window has zero
	// area or malformed coordinates. The image is excluded from aggregates.
	ErrDegenerateWindow = errors.New("degenerate window")

	// ErrInvalidRadii marks a malformed radius sequence. This is a
	// configuration error and aborts the request that carries it.
	ErrInvalidRadii = errors.New("invalid radius sequence")
)
