package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Card geometry, in pixels.
const (
	CardWidth    = 400
	CardHeight   = 250
	cardRadius   = 16
	avatarSize   = 80
	avatarBorder = 4
	avatarRight  = 4
	avatarCenter = 100
	textMargin   = 16
)

var (
	gradientFrom = color.RGBA{R: 0x66, G: 0x7e, B: 0xea, A: 0xff}
	gradientTo   = color.RGBA{R: 0x76, G: 0x4b, B: 0xa2, A: 0xff}
	avatarFill   = color.RGBA{R: 0xdb, G: 0xea, B: 0xfe, A: 0xff}
	contactInk   = color.RGBA{R: 0x1e, G: 0x40, B: 0xaf, A: 0xff}
)

// CardContent is what gets printed on a membership card.
type CardContent struct {
	// Background is the card art; nil draws the default gradient.
	Background image.Image
	// Avatar is the profile photo; nil draws a plain placeholder disc.
	Avatar image.Image
	Name   string
	Phone  string
	Email  string
	Serial string
}

type cardFaces struct {
	name    font.Face
	contact font.Face
	serial  font.Face
}

var (
	facesOnce sync.Once
	faces     cardFaces
	facesErr  error
)

func loadFaces() (cardFaces, error) {
	facesOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			facesErr = err
			return
		}
		mk := func(size float64) font.Face {
			if facesErr != nil {
				return nil
			}
			face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
			if err != nil {
				facesErr = err
			}
			return face
		}
		faces = cardFaces{name: mk(12), contact: mk(15), serial: mk(14)}
	})
	return faces, facesErr
}

// RenderCard draws a CardWidth x CardHeight PNG with rounded corners.
func RenderCard(c CardContent) ([]byte, error) {
	fc, err := loadFaces()
	if err != nil {
		return nil, &EncodeError{Err: fmt.Errorf("load card fonts: %w", err)}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	if c.Background != nil {
		drawCover(canvas, canvas.Bounds(), c.Background)
	} else {
		drawGradient(canvas)
	}
	drawAvatar(canvas, c.Avatar)
	drawDetails(canvas, fc, c)

	card := image.NewRGBA(canvas.Bounds())
	imagedraw.DrawMask(card, card.Bounds(), canvas, image.Point{}, &roundedRect{r: card.Bounds(), radius: cardRadius}, image.Point{}, imagedraw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, card); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

// drawCover scales src to cover dst entirely and crops the overflow evenly.
func drawCover(dst *image.RGBA, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	tw, th := float64(r.Dx()), float64(r.Dy())
	if sw == 0 || sh == 0 {
		return
	}

	crop := sb
	if sw/sh > tw/th {
		w := int(sh * tw / th)
		x0 := sb.Min.X + (sb.Dx()-w)/2
		crop = image.Rect(x0, sb.Min.Y, x0+w, sb.Max.Y)
	} else {
		h := int(sw * th / tw)
		y0 := sb.Min.Y + (sb.Dy()-h)/2
		crop = image.Rect(sb.Min.X, y0, sb.Max.X, y0+h)
	}
	xdraw.CatmullRom.Scale(dst, r, src, crop, xdraw.Over, nil)
}

// drawGradient paints the 135 degree fallback gradient.
func drawGradient(dst *image.RGBA) {
	b := dst.Bounds()
	span := float64(b.Dx() + b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			t := float64(x+y) / span
			dst.SetRGBA(x, y, color.RGBA{
				R: lerp(gradientFrom.R, gradientTo.R, t),
				G: lerp(gradientFrom.G, gradientTo.G, t),
				B: lerp(gradientFrom.B, gradientTo.B, t),
				A: 0xff,
			})
		}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func drawAvatar(dst *image.RGBA, avatar image.Image) {
	outer := avatarSize
	x0 := CardWidth - avatarRight - outer
	y0 := avatarCenter - outer/2
	ring := image.Rect(x0, y0, x0+outer, y0+outer)

	imagedraw.DrawMask(dst, ring, image.NewUniform(color.White), image.Point{}, &circle{r: ring}, ring.Min, imagedraw.Over)

	inner := ring.Inset(avatarBorder)
	photo := image.NewRGBA(inner)
	if avatar != nil {
		drawCover(photo, inner, avatar)
	} else {
		imagedraw.Draw(photo, inner, image.NewUniform(avatarFill), image.Point{}, imagedraw.Src)
	}
	imagedraw.DrawMask(dst, inner, photo, inner.Min, &circle{r: inner}, inner.Min, imagedraw.Over)
}

func drawDetails(dst *image.RGBA, fc cardFaces, c CardContent) {
	right := fixed.I(CardWidth - textMargin)
	baseline := CardHeight - textMargin

	lines := []struct {
		text string
		face font.Face
	}{
		{orDefault(c.Serial, "-"), fc.serial},
		{orDefault(c.Email, "No Email"), fc.contact},
		{orDefault(c.Phone, "No Phone"), fc.contact},
	}
	for _, l := range lines {
		d := &font.Drawer{Dst: dst, Src: image.NewUniform(contactInk), Face: l.face}
		d.Dot = fixed.Point26_6{X: right - d.MeasureString(l.text), Y: fixed.I(baseline)}
		d.DrawString(l.text)
		baseline -= 19
	}

	// Name sits in a white pill above the contact block.
	name := orDefault(c.Name, "No Name")
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: fc.name}
	width := d.MeasureString(name).Ceil()
	pill := image.Rect(CardWidth-textMargin-width-16, baseline-16, CardWidth-textMargin, baseline+6)
	imagedraw.DrawMask(dst, pill, image.NewUniform(color.White), image.Point{}, &roundedRect{r: pill, radius: pill.Dy() / 2}, pill.Min, imagedraw.Over)
	d.Dot = fixed.P(pill.Min.X+8, baseline)
	d.DrawString(name)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// circle is an alpha mask of the disc inscribed in r.
type circle struct {
	r image.Rectangle
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }
func (c *circle) Bounds() image.Rectangle { return c.r }
func (c *circle) At(x, y int) color.Color {
	rad := float64(c.r.Dx()) / 2
	cx := float64(c.r.Min.X) + rad
	cy := float64(c.r.Min.Y) + float64(c.r.Dy())/2
	dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
	if dx*dx+dy*dy <= rad*rad {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}

// roundedRect is an alpha mask of r with rounded corners.
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m *roundedRect) ColorModel() color.Model { return color.AlphaModel }
func (m *roundedRect) Bounds() image.Rectangle { return m.r }
func (m *roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return color.Alpha{}
	}
	rad := m.radius
	cx, cy := x, y
	switch {
	case x < m.r.Min.X+rad:
		cx = m.r.Min.X + rad
	case x >= m.r.Max.X-rad:
		cx = m.r.Max.X - rad - 1
	}
	switch {
	case y < m.r.Min.Y+rad:
		cy = m.r.Min.Y + rad
	case y >= m.r.Max.Y-rad:
		cy = m.r.Max.Y - rad - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy <= rad*rad {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
