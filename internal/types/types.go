// Package types holds the shared domain model for the wayfinder core:
// normalized geometry, detections, frames, candidates and the
// verification outcome taxonomy. Everything here is a plain value;
// ownership and synchronization live in the store.
package types

import (
	"math"
	"time"
)

// Region is a normalized, axis-aligned bounding box in frame
// coordinates. All fields are in [0,1]. The zero value is the
// "no grounding" sentinel used by drift repair.
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// IsEmpty reports whether r is the no-grounding sentinel.
func (r Region) IsEmpty() bool {
	return r.W <= 0 || r.H <= 0
}

// Area returns the normalized area of the region.
func (r Region) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.W * r.H
}

// Center returns the center point of the region.
func (r Region) Center() (cx, cy float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// IoU returns the intersection-over-union of two regions, 0 when
// either is the empty sentinel.
func (r Region) IoU(o Region) float64 {
	if r.IsEmpty() || o.IsEmpty() {
		return 0
	}
	x1 := math.Max(r.X, o.X)
	y1 := math.Max(r.Y, o.Y)
	x2 := math.Min(r.X+r.W, o.X+o.W)
	y2 := math.Min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the euclidean distance between the centers
// of two regions in normalized units.
func (r Region) CenterDistance(o Region) float64 {
	rx, ry := r.Center()
	ox, oy := o.Center()
	return math.Hypot(rx-ox, ry-oy)
}

// AspectRatio returns height/width. Degenerate regions report +Inf so
// the eligibility gate rejects them.
func (r Region) AspectRatio() float64 {
	if r.W <= 0 {
		return math.Inf(1)
	}
	return r.H / r.W
}

// Label is one class hypothesis attached to a detection.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Detection is one detector result for a single frame.
type Detection struct {
	Box        Region  `json:"box"`
	Labels     []Label `json:"labels,omitempty"`
	Confidence float64 `json:"confidence"`
	Identity   string  `json:"identity,omitempty"`
}

// Frame is an opaque reference to one captured camera frame. The core
// never decodes pixels; it hands Data through to the collaborators
// that do.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// Embedding is an appearance feature vector used for drift repair.
type Embedding []float32

// Similarity returns the cosine similarity of two embeddings mapped
// into [0,1]. Mismatched or empty vectors score 0.
func (e Embedding) Similarity(o Embedding) float64 {
	if len(e) == 0 || len(e) != len(o) {
		return 0
	}
	var dot, na, nb float64
	for i := range e {
		dot += float64(e[i]) * float64(o[i])
		na += float64(e[i]) * float64(e[i])
		nb += float64(o[i]) * float64(o[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (cos + 1) / 2
}

// TargetSpec describes the vehicle the user is searching for. It is
// passed verbatim to the verification backends.
type TargetSpec struct {
	Make  string `json:"make" yaml:"make"`
	Model string `json:"model" yaml:"model"`
	Color string `json:"color" yaml:"color"`
	Plate string `json:"plate" yaml:"plate"`
}
