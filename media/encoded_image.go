// Package media holds the image pipeline of the signup wizard: the encoded image value,
// the normalizer, the camera capture adapter and the card renderer.
package media

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/kartu-tanda-boga/utils"
)

// ErrEmptyImage is returned when an encoded image carries no payload
var ErrEmptyImage = errors.New("encoded image is empty")

// EncodedImage is an opaque binary image payload tagged with its MIME type. In memory it
// is held in binary form; whenever it crosses a serialization boundary it is written in
// its text form, a base64 data URI.
type EncodedImage struct {
	data     []byte
	mimeType string
}

// NewEncodedImage wraps a binary payload. An empty MIME type defaults to image/jpeg.
func NewEncodedImage(data []byte, mimeType string) (*EncodedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = utils.DefaultImageMIME
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &EncodedImage{data: buf, mimeType: mimeType}, nil
}

// ParseDataURI converts the text form back into binary form. A bare base64 string is
// accepted and tagged as image/jpeg.
func ParseDataURI(text string) (*EncodedImage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyImage
	}

	mimeType := utils.DefaultImageMIME
	payload := text
	if strings.HasPrefix(text, "data:") {
		comma := strings.IndexByte(text, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data uri: missing payload separator")
		}
		header := text[len("data:"):comma]
		payload = text[comma+1:]
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("malformed data uri: payload is not base64")
		}
		if m := strings.TrimSuffix(header, ";base64"); m != "" {
			mimeType = m
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data uri: %w", err)
	}
	return NewEncodedImage(data, mimeType)
}

// Bytes returns a copy of the binary payload.
func (e *EncodedImage) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

// Len is the payload size in bytes.
func (e *EncodedImage) Len() int { return len(e.data) }

func (e *EncodedImage) MimeType() string { return e.mimeType }

// Base64 is the payload without any data URI prefix, the shape the membership API expects.
func (e *EncodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(e.data)
}

// DataURI is the text form.
func (e *EncodedImage) DataURI() string {
	return "data:" + e.mimeType + ";base64," + e.Base64()
}

// Equal reports whether both images carry the same MIME type and payload.
func (e *EncodedImage) Equal(other *EncodedImage) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.mimeType == other.mimeType && bytes.Equal(e.data, other.data)
}

// Extension guesses a file extension for the MIME type.
func (e *EncodedImage) Extension() string {
	switch e.mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// MarshalJSON always writes the text form.
func (e *EncodedImage) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.DataURI())
}

// UnmarshalJSON reads the text form.
func (e *EncodedImage) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return err
	}
	parsed, err := ParseDataURI(text)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}
