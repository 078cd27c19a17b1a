package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"math"
	"math/rand/v2"

	"golang.org/x/image/draw"

	"imgsearch/internal/adapter/analyzer"
	"imgsearch/internal/domain"
)

const (
	histBins   = 4 // per channel
	histSize   = histBins * histBins * histBins
	gridSide   = 8
	gridSize   = gridSide * gridSide * 3
	featureDim = histSize + gridSize
)

// colourWords map text tokens onto the colour histogram bins an image of
// that colour would fill, so "red" lands near red images.
var colourWords = map[string][][3]int{
	"red":     {{3, 0, 0}},
	"green":   {{0, 3, 0}, {0, 2, 0}},
	"blue":    {{0, 0, 3}, {0, 0, 2}},
	"yellow":  {{3, 3, 0}},
	"cyan":    {{0, 3, 3}},
	"magenta": {{3, 0, 3}},
	"purple":  {{2, 0, 2}, {2, 0, 3}},
	"pink":    {{3, 1, 2}, {3, 2, 3}},
	"orange":  {{3, 1, 0}, {3, 2, 0}},
	"brown":   {{2, 1, 0}, {1, 1, 0}},
	"white":   {{3, 3, 3}},
	"black":   {{0, 0, 0}},
	"gray":    {{1, 1, 1}, {2, 2, 2}},
	"dark":    {{0, 0, 0}, {1, 1, 1}},
	"bright":  {{3, 3, 3}, {2, 2, 2}},
}

// LocalEncoder is a deterministic in-process encoder. Images are described
// by a colour histogram and a coarse colour layout; text by colour words
// and hashed tokens. Both are projected to the output dimension by a random
// matrix seeded from the model name and then normalised.
type LocalEncoder struct {
	model      string
	dimension  int
	backend    Backend
	projection []float32 // dimension x featureDim, row-major
	project    projectFunc
	tokenizer  *analyzer.Tokenizer
}

// NewLocalEncoder builds the projection for the given model name.
func NewLocalEncoder(model string, dimension int, device string) (*LocalEncoder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrInvalidConfig, dimension)
	}
	backend, err := DetectBackend(device)
	if err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(model))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	scale := 1 / math.Sqrt(float64(dimension))
	projection := make([]float32, dimension*featureDim)
	for i := range projection {
		projection[i] = float32(rng.NormFloat64() * scale)
	}

	return &LocalEncoder{
		model:      model,
		dimension:  dimension,
		backend:    backend,
		projection: projection,
		project:    kernelFor(backend),
		tokenizer:  analyzer.NewTokenizer(),
	}, nil
}

func (e *LocalEncoder) Encode(ctx context.Context, inputs []domain.Input) ([]domain.Encoded, error) {
	out := make([]domain.Encoded, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEncode, err)
		}

		var features []float32
		switch in.Kind {
		case domain.InputImage:
			if in.Image == nil || in.Image.Bounds().Empty() {
				out[i].Err = fmt.Errorf("%w: %s: empty image", domain.ErrDecode, in.Path)
				continue
			}
			features = imageFeatures(in.Image)
		case domain.InputText:
			features = textFeatures(e.tokenizer.Tokenize(in.Text))
		default:
			out[i].Err = fmt.Errorf("%w: unsupported input kind %s", domain.ErrDecode, in.Kind)
			continue
		}

		vec := make([]float32, e.dimension)
		e.project(e.projection, features, vec)
		if !domain.Normalize(vec) {
			out[i].Err = fmt.Errorf("%w: input carries no signal", domain.ErrDecode)
			continue
		}
		out[i].Vector = vec
	}
	return out, nil
}

func (e *LocalEncoder) Dimension() int    { return e.dimension }
func (e *LocalEncoder) ModelName() string { return e.model }
func (e *LocalEncoder) Backend() Backend  { return e.backend }

func imageFeatures(img image.Image) []float32 {
	features := make([]float32, featureDim)

	// Downsample once; both feature blocks read from the thumbnail.
	thumb := image.NewRGBA(image.Rect(0, 0, gridSide*4, gridSide*4))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	bounds := thumb.Bounds()
	pixels := float32(bounds.Dx() * bounds.Dy())
	cell := bounds.Dx() / gridSide
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := thumb.RGBAAt(x, y)
			r, g, b := int(c.R)*histBins/256, int(c.G)*histBins/256, int(c.B)*histBins/256
			features[r*histBins*histBins+g*histBins+b] += 1 / pixels

			gi := histSize + ((y/cell)*gridSide+(x/cell))*3
			norm := float32(cell*cell) * 255 * gridSide
			features[gi] += float32(c.R) / norm
			features[gi+1] += float32(c.G) / norm
			features[gi+2] += float32(c.B) / norm
		}
	}
	return features
}

func textFeatures(tokens []string) []float32 {
	features := make([]float32, featureDim)
	for _, tok := range tokens {
		if bins, ok := colourWords[tok]; ok {
			for _, b := range bins {
				features[b[0]*histBins*histBins+b[1]*histBins+b[2]] += 1 / float32(len(bins))
			}
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := histSize + int(sum%gridSize)
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		features[idx] += sign / gridSide
	}
	return features
}
