package values

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		valid   bool
	}{
		{name: "number", payload: `{"lat": 40.7128}`, want: 40.7128, valid: true},
		{name: "integer", payload: `{"lat": -74}`, want: -74, valid: true},
		{name: "null", payload: `{"lat": null}`, valid: false},
		{name: "missing", payload: `{}`, valid: false},
		{name: "string", payload: `{"lat": "40.7"}`, valid: false},
		{name: "boolean", payload: `{"lat": true}`, valid: false},
		{name: "object", payload: `{"lat": {"deg": 40}}`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Lat Coordinate `json:"lat"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &out))

			got, ok := out.Lat.Float64()
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCoordinate_NonFinite(t *testing.T) {
	_, ok := NewCoordinate(math.NaN()).Float64()
	assert.False(t, ok)

	_, ok = NewCoordinate(math.Inf(1)).Float64()
	assert.False(t, ok)

	data, err := json.Marshal(NewCoordinate(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(NewCoordinate(51.5074))
	require.NoError(t, err)
	assert.Equal(t, "51.5074", string(data))
}

func TestGeoPoint(t *testing.T) {
	lat, lng, ok := GeoPoint(NewCoordinate(35.6762), NewCoordinate(139.6503))
	require.True(t, ok)
	assert.Equal(t, 35.6762, lat)
	assert.Equal(t, 139.6503, lng)

	_, _, ok = GeoPoint(NewCoordinate(91), NewCoordinate(0))
	assert.False(t, ok, "latitude out of range")

	_, _, ok = GeoPoint(NewCoordinate(0), NewCoordinate(-180.5))
	assert.False(t, ok, "longitude out of range")

	_, _, ok = GeoPoint(Coordinate{}, NewCoordinate(0))
	assert.False(t, ok, "missing latitude")

	_, _, ok = GeoPoint(NewCoordinate(math.NaN()), NewCoordinate(0))
	assert.False(t, ok, "NaN latitude")
}
