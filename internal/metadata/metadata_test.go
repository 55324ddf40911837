package metadata

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlainPNG(t *testing.T, path string) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 1, G: 2, B: 3, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestExtractMissingFileReturnsUnparsed(t *testing.T) {
	fields := Extract(filepath.Join(t.TempDir(), "does-not-exist.jpg"))
	assert.False(t, fields.Parsed)
	assert.False(t, fields.HasGPS)
}

func TestExtractImageWithoutExifReturnsUnparsed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.png")
	writePlainPNG(t, path)

	fields := Extract(path)
	assert.False(t, fields.Parsed)
	assert.Equal(t, "", fields.CameraMake)
}
