package fs

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsearch/internal/domain"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestWalker_Walk(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "b.png"), 4, 4)
	writePNG(t, filepath.Join(root, "a", "c.png"), 4, 4)
	writePNG(t, filepath.Join(root, "skip", "d.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))

	w := NewWalker([]string{"**/*.png"}, []string{"skip/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "a", "c.png"),
		filepath.Join(root, "b.png"),
	}, files)
}

func TestWalker_IgnoresCase(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "photo.Jpg"), 4, 4)
	writePNG(t, filepath.Join(root, "B.PNG"), 4, 4)
	writePNG(t, filepath.Join(root, "Cache", "e.png"), 4, 4)

	w := NewWalker([]string{"**/*.jpg", "**/*.png"}, []string{"cache/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "B.PNG"),
		filepath.Join(root, "photo.Jpg"),
	}, files)
}

func TestWalker_MinSize(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "small.png"), 10, 10)
	writePNG(t, filepath.Join(root, "wide.png"), 40, 10)
	writePNG(t, filepath.Join(root, "big.png"), 40, 40)
	require.NoError(t, os.WriteFile(filepath.Join(root, "fake.png"), []byte("not an image"), 0644))

	files, err := NewWalker([]string{"*.png"}, nil).WithMinSize(20, 20).Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "big.png")}, files)
}

func TestReadWriteList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid_images.txt")
	require.NoError(t, os.WriteFile(path, []byte("# candidates\nz.jpg\n\na.jpg\nz.jpg\n  m.jpg  \n"), 0644))

	paths, err := ReadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "m.jpg", "z.jpg"}, paths)

	out := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, WriteList(out, paths))
	again, err := ReadList(out)
	require.NoError(t, err)
	assert.Equal(t, paths, again)

	_, err = ReadList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good.png")
	corrupt := filepath.Join(root, "corrupt.jpg")
	missing := filepath.Join(root, "missing.png")
	writePNG(t, good, 6, 3)
	require.NoError(t, os.WriteFile(corrupt, []byte{0xff, 0xd8, 0x00}, 0644))

	got := NewLoader(2).Load(context.Background(), []string{good, corrupt, missing, good})
	require.Len(t, got, 4)

	require.NoError(t, got[0].Err)
	assert.Equal(t, good, got[0].Path)
	assert.Equal(t, 6, got[0].Image.Bounds().Dx())

	assert.ErrorIs(t, got[1].Err, domain.ErrDecode)
	assert.ErrorIs(t, got[2].Err, domain.ErrDecode)
	assert.NoError(t, got[3].Err)
}
