package embedding

import (
	"context"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsearch/internal/domain"
)

func solid(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noise(seed uint64, w, h int) image.Image {
	rng := rand.New(rand.NewPCG(seed, seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	return img
}

func TestLocalEncoder_UnitNormAndDimension(t *testing.T) {
	enc, err := NewLocalEncoder("clip-ViT-B-32", 512, "auto")
	require.NoError(t, err)

	inputs := []domain.Input{
		domain.ImageInput("red.png", solid(color.RGBA{255, 0, 0, 255}, 40, 30)),
		domain.ImageInput("gray.png", solid(color.RGBA{128, 128, 128, 255}, 10, 10)),
		domain.ImageInput("noise.png", noise(1, 64, 48)),
		domain.TextInput("a dog on a beach"),
	}
	got, err := enc.Encode(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, got, len(inputs))

	for i, e := range got {
		require.True(t, e.OK(), "input %d: %v", i, e.Err)
		assert.Len(t, e.Vector, 512)
		assert.InDelta(t, 1.0, domain.Norm(e.Vector), domain.NormTolerance)
	}
}

func TestLocalEncoder_Deterministic(t *testing.T) {
	a, err := NewLocalEncoder("m", 64, "generic")
	require.NoError(t, err)
	b, err := NewLocalEncoder("m", 64, "generic")
	require.NoError(t, err)

	in := []domain.Input{domain.ImageInput("n", noise(7, 50, 50)), domain.TextInput("sunset")}
	ra, err := a.Encode(context.Background(), in)
	require.NoError(t, err)
	rb, err := b.Encode(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, ra[0].Vector, rb[0].Vector)
	assert.Equal(t, ra[1].Vector, rb[1].Vector)
}

func TestLocalEncoder_BackendsAgree(t *testing.T) {
	gen, err := NewLocalEncoder("m", 128, "generic")
	require.NoError(t, err)
	acc, err := NewLocalEncoder("m", 128, "accelerated")
	require.NoError(t, err)
	assert.Equal(t, BackendGeneric, gen.Backend())
	assert.Equal(t, BackendAccelerated, acc.Backend())

	in := []domain.Input{domain.ImageInput("n", noise(3, 33, 17))}
	rg, err := gen.Encode(context.Background(), in)
	require.NoError(t, err)
	ra, err := acc.Encode(context.Background(), in)
	require.NoError(t, err)

	for i := range rg[0].Vector {
		assert.InDelta(t, rg[0].Vector[i], ra[0].Vector[i], 1e-5)
	}
}

func TestLocalEncoder_ColourWordsFindMatchingImages(t *testing.T) {
	enc, err := NewLocalEncoder("clip-ViT-B-32", 512, "auto")
	require.NoError(t, err)

	got, err := enc.Encode(context.Background(), []domain.Input{
		domain.ImageInput("red", solid(color.RGBA{250, 10, 10, 255}, 32, 32)),
		domain.ImageInput("blue", solid(color.RGBA{10, 10, 250, 255}, 32, 32)),
		domain.TextInput("a red car"),
	})
	require.NoError(t, err)

	red, blue, query := got[0].Vector, got[1].Vector, got[2].Vector
	assert.Less(t, domain.CosineDistance(query, red), domain.CosineDistance(query, blue))
}

func TestLocalEncoder_SynonymsAndStopwords(t *testing.T) {
	enc, err := NewLocalEncoder("clip-ViT-B-32", 512, "auto")
	require.NoError(t, err)

	got, err := enc.Encode(context.Background(), []domain.Input{
		domain.TextInput("red"),
		domain.TextInput("a photo of something crimson"),
		domain.TextInput("the picture"),
	})
	require.NoError(t, err)
	require.True(t, got[0].OK())
	require.True(t, got[1].OK())

	// only stopwords: nothing to embed
	assert.ErrorIs(t, got[2].Err, domain.ErrDecode)
	assert.Less(t, domain.CosineDistance(got[0].Vector, got[1].Vector), 0.5)
}

func TestLocalEncoder_PerItemFailures(t *testing.T) {
	enc, err := NewLocalEncoder("m", 16, "generic")
	require.NoError(t, err)

	got, err := enc.Encode(context.Background(), []domain.Input{
		domain.ImageInput("ok", noise(2, 8, 8)),
		domain.ImageInput("broken", nil),
		domain.TextInput(""),
	})
	require.NoError(t, err)

	assert.True(t, got[0].OK())
	assert.ErrorIs(t, got[1].Err, domain.ErrDecode)
	assert.ErrorIs(t, got[2].Err, domain.ErrDecode)
}

func TestLocalEncoder_CancelledContext(t *testing.T) {
	enc, err := NewLocalEncoder("m", 16, "generic")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enc.Encode(ctx, []domain.Input{domain.TextInput("x")})
	assert.ErrorIs(t, err, domain.ErrEncode)
}

func TestDetectBackend(t *testing.T) {
	b, err := DetectBackend("generic")
	require.NoError(t, err)
	assert.Equal(t, BackendGeneric, b)

	b, err = DetectBackend("auto")
	require.NoError(t, err)
	assert.Contains(t, []Backend{BackendAccelerated, BackendGeneric}, b)

	_, err = DetectBackend("gpu")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewLocalEncoder("m", 0, "auto")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
