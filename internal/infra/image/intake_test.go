package image

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 120, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFromBytes(t *testing.T) {
	in := NewIntake(1<<20, []string{"jpg", "png"}, nil)

	img, err := in.FromBytes(tinyPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, img.Inline())
}

func TestFromBytesRejects(t *testing.T) {
	raw := tinyPNG(t)
	tests := []struct {
		name  string
		in    *Intake
		input []byte
	}{
		{name: "empty", in: NewIntake(1<<20, nil, nil), input: nil},
		{name: "too large", in: NewIntake(int64(len(raw)-1), nil, nil), input: raw},
		{name: "not an image", in: NewIntake(1<<20, nil, nil), input: []byte("%PDF-1.7 not a cow")},
		{name: "format not allowed", in: NewIntake(1<<20, []string{"jpeg"}, nil), input: raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.FromBytes(tt.input)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestFromURI(t *testing.T) {
	in := NewIntake(1<<20, nil, nil)

	img, err := in.FromURI("data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	img, err = in.FromURI("https://example.com/cow.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cow.jpg", img.URL)

	_, err = in.FromURI("file:///etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = in.FromURI("data:image/png;base64,aGVsbG8=")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("image/jpeg"))
	assert.Equal(t, ".webp", Extension("IMAGE/WEBP"))
	assert.Equal(t, ".bin", Extension("application/pdf"))
}
