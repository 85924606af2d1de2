package params

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Axis names a single adjustable control of the render pipeline.
type Axis string

const (
	Strength     Axis = "strength"
	Exposure     Axis = "exposure"
	Contrast     Axis = "contrast"
	Saturation   Axis = "saturation"
	Shadows      Axis = "shadows"
	Highlights   Axis = "highlights"
	Clarity      Axis = "clarity"
	WhiteBalance Axis = "white_balance"
	Grain        Axis = "grain"
)

// Axes lists every recognized axis in canonical order. The order matters:
// Hash iterates it, and delegates receive it as the axis schema.
var Axes = []Axis{
	Strength,
	Exposure,
	Contrast,
	Saturation,
	Shadows,
	Highlights,
	Clarity,
	WhiteBalance,
	Grain,
}

// Every axis value lives in [Min, Max]. 0 is neutral.
const (
	Min = -100.0
	Max = 100.0
)

// ValidationError reports a rejected axis name or value.
type ValidationError struct {
	Axis   Axis
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Axis, e.Reason)
}

// Valid reports whether axis is part of the recognized schema.
func Valid(axis Axis) bool {
	for _, a := range Axes {
		if a == axis {
			return true
		}
	}
	return false
}

// Clamp forces value into the [Min, Max] control range.
func Clamp(value float64) float64 {
	return math.Max(Min, math.Min(Max, value))
}

// Vector holds a value for every recognized axis. The axis set is closed:
// all vectors in a session carry exactly the axes in Axes, nothing else.
// The zero-valued vector (all axes at 0) is the neutral default.
type Vector struct {
	values map[Axis]float64
}

// NewVector returns a vector with every axis at its neutral value.
func NewVector() *Vector {
	v := &Vector{values: make(map[Axis]float64, len(Axes))}
	for _, a := range Axes {
		v.values[a] = 0
	}
	return v
}

// Set assigns a clamped value to a recognized axis.
func (v *Vector) Set(axis Axis, value float64) error {
	if !Valid(axis) {
		return &ValidationError{Axis: axis, Reason: "unknown axis"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ValidationError{Axis: axis, Reason: "value is not a finite number"}
	}
	v.values[axis] = Clamp(value)
	return nil
}

// Get returns the current value of axis, or 0 for an unrecognized axis.
func (v *Vector) Get(axis Axis) float64 {
	return v.values[axis]
}

// Clone returns an independent copy so per-image parameters can diverge.
func (v *Vector) Clone() *Vector {
	c := &Vector{values: make(map[Axis]float64, len(Axes))}
	for a, val := range v.values {
		c.values[a] = val
	}
	return c
}

// Reset returns every axis to its neutral value.
func (v *Vector) Reset() {
	for _, a := range Axes {
		v.values[a] = 0
	}
}

// Apply merges a sparse delta into the vector, adding per axis and
// clamping so no delta magnitude can escape the control range. Unknown
// axes and non-finite adjustments in the delta are ignored.
func (v *Vector) Apply(d Delta) {
	for axis, adj := range d {
		if !Valid(axis) || math.IsNaN(adj) || math.IsInf(adj, 0) {
			continue
		}
		v.values[axis] = Clamp(v.values[axis] + adj)
	}
}

// Diff returns the sparse delta that turns other into v.
func (v *Vector) Diff(other *Vector) Delta {
	d := Delta{}
	for _, a := range Axes {
		if v.values[a] != other.values[a] {
			d[a] = v.values[a] - other.values[a]
		}
	}
	return d
}

// Hash returns a stable FNV-1a digest of the vector, iterating axes in
// canonical order so equal vectors always hash equally. Used as the
// parameter component of render cache keys and grain seeds.
func (v *Vector) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, a := range Axes {
		h.Write([]byte(a))
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.values[a]))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Delta is a sparse set of per-axis adjustments, typically produced by
// the feedback interpreter and merged into a vector with Apply.
type Delta map[Axis]float64
