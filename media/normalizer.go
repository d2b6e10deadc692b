package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/amirphl/kartu-tanda-boga/utils"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxSourcePixels rejects gallery files that would decode into an unreasonably large canvas
const maxSourcePixels = 50_000_000

// Normalizer resizes and re-encodes images to bounded JPEGs.
type Normalizer struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the lossy codec quality factor in (0, 1].
	Quality float64
}

// NewNormalizer creates a normalizer; zero values fall back to 800x800 at 0.7.
func NewNormalizer(maxWidth, maxHeight int, quality float64) *Normalizer {
	if maxWidth == 0 {
		maxWidth = utils.DefaultMaxImageWidth
	}
	if maxHeight == 0 {
		maxHeight = utils.DefaultMaxImageHeight
	}
	if quality == 0 {
		quality = utils.DefaultImageQuality
	}
	return &Normalizer{MaxWidth: maxWidth, MaxHeight: maxHeight, Quality: quality}
}

// Normalize encodes a decoded image (a camera still).
func (n *Normalizer) Normalize(img image.Image) (*EncodedImage, error) {
	out, err := Normalize(img, n.MaxWidth, n.MaxHeight, n.Quality)
	observeNormalize("camera", err)
	return out, err
}

// NormalizeBytes decodes a gallery file and encodes it.
func (n *Normalizer) NormalizeBytes(data []byte) (*EncodedImage, error) {
	out, err := NormalizeBytes(data, n.MaxWidth, n.MaxHeight, n.Quality)
	observeNormalize("gallery", err)
	return out, err
}

// NormalizeBytes decodes data (jpeg, png, gif, webp or bmp) and normalizes it.
func NormalizeBytes(data []byte, maxWidth, maxHeight int, quality float64) (*EncodedImage, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return Normalize(img, maxWidth, maxHeight, quality)
}

// DecodeImage decodes any registered format, rejecting oversized canvases.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, &DecodeError{Err: fmt.Errorf("unsupported image size %dx%d", cfg.Width, cfg.Height)}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// Normalize scales img to fit inside maxWidth x maxHeight, keeping its aspect ratio and
// never upscaling, and re-encodes it as JPEG at the given quality.
func Normalize(img image.Image, maxWidth, maxHeight int, quality float64) (*EncodedImage, error) {
	if img == nil {
		return nil, &EncodeError{Err: errors.New("no source image")}
	}
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, &EncodeError{Err: fmt.Errorf("invalid bounds %dx%d", maxWidth, maxHeight)}
	}
	if quality <= 0 || quality > 1 {
		return nil, &EncodeError{Err: fmt.Errorf("invalid quality %v", quality)}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &EncodeError{Err: errors.New("source image has no pixels")}
	}

	w, h := TargetDimensions(b.Dx(), b.Dy(), maxWidth, maxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	imagedraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, imagedraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)

	var buf bytes.Buffer
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
		return nil, &EncodeError{Err: err}
	}

	out, err := NewEncodedImage(buf.Bytes(), "image/jpeg")
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return out, nil
}

// TargetDimensions returns the largest size with w:h's aspect ratio that fits inside
// maxWidth x maxHeight, or w x h itself when it already fits.
func TargetDimensions(w, h, maxWidth, maxHeight int) (int, int) {
	if w <= maxWidth && h <= maxHeight {
		return w, h
	}
	scale := math.Min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	nw := clampDim(int(math.Round(float64(w)*scale)), maxWidth)
	nh := clampDim(int(math.Round(float64(h)*scale)), maxHeight)
	return nw, nh
}

func clampDim(v, bound int) int {
	if v < 1 {
		return 1
	}
	if v > bound {
		return bound
	}
	return v
}
