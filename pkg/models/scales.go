package models

import "math"

// Score01 is a unit-interval quantity: interaction scores, similarities,
// candidate scores and confidences.
type Score01 float64

// Clamp bounds s to [0,1]. NaN collapses to 0.
func (s Score01) Clamp() Score01 {
	return Score01(Clamp(float64(s), 0, 1))
}

// Rating010 is a 0–10 rating such as session satisfaction.
type Rating010 float64

// Normalized converts a 0–10 rating onto the unit interval.
func (r Rating010) Normalized() Score01 {
	return Score01(float64(r) / 10).Clamp()
}

// Clamp bounds r to [0,10].
func (r Rating010) Clamp() Rating010 {
	return Rating010(Clamp(float64(r), 0, 10))
}

// Clamp bounds v to [lo,hi]; NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
