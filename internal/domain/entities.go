package domain

import (
	"image"
	"math"
)

// ImageRecord is one indexed image. ID is assigned by the store on insert.
type ImageRecord struct {
	ID        uint64
	Path      string
	Embedding []float32
}

// InputKind tells an encoder how to treat an Input.
type InputKind int

const (
	InputImage InputKind = iota
	InputText
)

func (k InputKind) String() string {
	switch k {
	case InputImage:
		return "image"
	case InputText:
		return "text"
	default:
		return "unknown"
	}
}

// Input is a single item handed to an encoder: either a decoded image or a
// text snippet.
type Input struct {
	Kind  InputKind
	Path  string // source of an image input, for error reporting
	Image image.Image
	Text  string
}

// ImageInput wraps a decoded image.
func ImageInput(path string, img image.Image) Input {
	return Input{Kind: InputImage, Path: path, Image: img}
}

// TextInput wraps a text snippet.
func TextInput(text string) Input {
	return Input{Kind: InputText, Text: text}
}

// Encoded is the per-item result of an encode call. Exactly one of Vector and
// Err is set.
type Encoded struct {
	Vector []float32
	Err    error
}

// OK reports whether the item produced a vector.
func (e Encoded) OK() bool {
	return e.Err == nil && e.Vector != nil
}

// Loaded is the per-item result of loading an image from disk.
type Loaded struct {
	Path  string
	Image image.Image
	Err   error
}

// Match is a nearest-neighbor hit.
type Match struct {
	Path     string  `json:"path"`
	Distance float64 `json:"distance"`
}

// Paths extracts the ordered paths from matches.
func Paths(matches []Match) []string {
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.Path
	}
	return paths
}

// Stats summarises a store.
type Stats struct {
	Backend   string `json:"backend"`
	Path      string `json:"path"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model,omitempty"`
	Records   int    `json:"records"`
}

// NormTolerance bounds |‖v‖ - 1| for a vector to count as unit length.
const NormTolerance = 1e-5

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place to unit L2 norm. It returns false for a zero
// vector, which is left untouched.
func Normalize(v []float32) bool {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	inv := 1 / n
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// IsUnit reports whether v has unit norm within NormTolerance.
func IsUnit(v []float32) bool {
	return math.Abs(Norm(v)-1) <= NormTolerance
}

// CosineDistance returns 1 - a·b. Both vectors are expected to be unit
// length, so this equals cosine distance and half the squared L2 distance.
func CosineDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot
}
