package media

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodedImage_TextRoundTrip(t *testing.T) {
	raw := encodeJPEG(t, gradientImage(32, 16))
	img, err := NewEncodedImage(raw, "image/jpeg")
	require.NoError(t, err)

	text := img.DataURI()
	decoded, err := ParseDataURI(text)
	require.NoError(t, err)

	assert.Equal(t, text, decoded.DataURI())
	assert.True(t, img.Equal(decoded))
	assert.Equal(t, raw, decoded.Bytes())
}

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMIME string
		wantErr  bool
	}{
		{name: "png data uri", input: "data:image/png;base64,aGVsbG8=", wantMIME: "image/png"},
		{name: "bare base64 defaults to jpeg", input: "aGVsbG8=", wantMIME: "image/jpeg"},
		{name: "missing mime defaults to jpeg", input: "data:;base64,aGVsbG8=", wantMIME: "image/jpeg"},
		{name: "empty", input: "", wantErr: true},
		{name: "no separator", input: "data:image/png;base64", wantErr: true},
		{name: "not base64 encoded", input: "data:image/png,hello", wantErr: true},
		{name: "garbage payload", input: "data:image/png;base64,!!!", wantErr: true},
		{name: "empty payload", input: "data:image/png;base64,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseDataURI(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, img.MimeType())
			assert.Equal(t, []byte("hello"), img.Bytes())
		})
	}
}

func TestEncodedImage_JSONUsesTextForm(t *testing.T) {
	img, err := NewEncodedImage([]byte{0xff, 0xd8, 0xff}, "")
	require.NoError(t, err)

	type wrapper struct {
		Photo *EncodedImage `json:"photoFile"`
	}
	b, err := json.Marshal(wrapper{Photo: img})
	require.NoError(t, err)
	assert.JSONEq(t, `{"photoFile":"data:image/jpeg;base64,/9j/"}`, string(b))

	var back wrapper
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, img.Equal(back.Photo))

	var empty wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"photoFile":null}`), &empty))
	assert.Nil(t, empty.Photo)
}

func TestEncodedImage_BytesIsACopy(t *testing.T) {
	img, err := NewEncodedImage([]byte{1, 2, 3}, "image/png")
	require.NoError(t, err)

	b := img.Bytes()
	b[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, img.Bytes())
	assert.Equal(t, "AQID", img.Base64())
	assert.Equal(t, ".png", img.Extension())
}
