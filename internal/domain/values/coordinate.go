package values

import (
	"bytes"
	"encoding/json"
	"math"
)

// Coordinate is a latitude or longitude as delivered by the fraud backend.
// The backend stores whatever the submitter sent, so a coordinate may be
// null, absent, a string or a number. Only finite JSON numbers are usable.
type Coordinate struct {
	value float64
	set   bool
}

// NewCoordinate creates a coordinate holding v
func NewCoordinate(v float64) Coordinate {
	return Coordinate{value: v, set: true}
}

// Float64 returns the coordinate and whether it is a usable number
func (c Coordinate) Float64() (float64, bool) {
	if !c.set || math.IsNaN(c.value) || math.IsInf(c.value, 0) {
		return 0, false
	}
	return c.value, true
}

// UnmarshalJSON accepts any JSON value; non-numbers decode to a missing coordinate
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	*c = Coordinate{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		// strings, booleans and objects are treated as missing
		return nil
	}
	*c = NewCoordinate(v)
	return nil
}

// MarshalJSON writes null for unusable coordinates
func (c Coordinate) MarshalJSON() ([]byte, error) {
	v, ok := c.Float64()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// GeoPoint validates a latitude/longitude pair. Both must be finite numbers
// within [-90, 90] and [-180, 180] respectively.
func GeoPoint(lat, lng Coordinate) (float64, float64, bool) {
	la, ok := lat.Float64()
	if !ok || la < -90 || la > 90 {
		return 0, 0, false
	}
	lo, ok := lng.Float64()
	if !ok || lo < -180 || lo > 180 {
		return 0, 0, false
	}
	return la, lo, true
}
