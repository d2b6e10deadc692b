package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"fits already", 640, 480, 800, 800, 640, 480},
		{"exact bound", 800, 800, 800, 800, 800, 800},
		{"landscape", 1600, 1200, 800, 800, 800, 600},
		{"portrait", 1200, 1600, 800, 800, 600, 800},
		{"non-square bound limited by height", 1000, 900, 800, 500, 556, 500},
		{"tiny never upscaled", 10, 20, 800, 800, 10, 20},
		{"extreme strip", 10000, 1, 800, 800, 800, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestTargetDimensions_NeverExceedsBounds(t *testing.T) {
	for w := 1; w <= 2000; w += 137 {
		for h := 1; h <= 2000; h += 151 {
			nw, nh := TargetDimensions(w, h, 800, 600)
			assert.LessOrEqual(t, nw, 800)
			assert.LessOrEqual(t, nh, 600)
			assert.LessOrEqual(t, nw, w)
			assert.LessOrEqual(t, nh, h)
		}
	}
}

func TestNormalize_ResizesAndEncodesJPEG(t *testing.T) {
	out, err := Normalize(gradientImage(1600, 1000), 800, 800, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MimeType())

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 500, cfg.Height)
}

func TestNormalizeBytes_DecodesGalleryFormats(t *testing.T) {
	n := NewNormalizer(0, 0, 0)
	assert.Equal(t, 800, n.MaxWidth)
	assert.Equal(t, 0.7, n.Quality)

	out, err := n.NormalizeBytes(encodePNG(t, gradientImage(200, 100)))
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())
}

func TestNormalize_Errors(t *testing.T) {
	_, err := NormalizeBytes([]byte("not an image"), 800, 800, 0.7)
	assert.True(t, IsDecodeError(err))

	_, err = NormalizeBytes(nil, 800, 800, 0.7)
	assert.True(t, IsDecodeError(err))

	_, err = Normalize(gradientImage(10, 10), 0, 800, 0.7)
	assert.True(t, IsEncodeError(err))

	_, err = Normalize(gradientImage(10, 10), 800, 800, 1.5)
	assert.True(t, IsEncodeError(err))

	_, err = Normalize(image.NewRGBA(image.Rect(0, 0, 0, 0)), 800, 800, 0.7)
	assert.True(t, IsEncodeError(err))
}
