// Package units provides shared constants and conversion for the spatial
// units cell coordinates and radii are expressed in.
package units

// Unit constants
const (
	Pixels  = "px"
	Microns = "um"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Pixels, Microns}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ValidUnitsString returns a comma-separated string of valid units for
// error messages
func ValidUnitsString() string {
	return "px, um"
}

// ToMicrons converts a length in the given unit to micrometers using the
// image's pixel pitch (micrometers per pixel).
func ToMicrons(v float64, unit string, micronsPerPixel float64) float64 {
	if unit == Pixels {
		return v * micronsPerPixel
	}
	return v
}

// ToPixels converts a length in the given unit to pixels using the
// image's pixel pitch (micrometers per pixel).
func ToPixels(v float64, unit string, micronsPerPixel float64) float64 {
	if unit == Microns && micronsPerPixel > 0 {
		return v / micronsPerPixel
	}
	return v
}
