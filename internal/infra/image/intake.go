// Package image checks uploaded or inline cow photos before they reach a model.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
)

var ErrInvalidImage = errors.New("invalid image")

// Intake validates image payloads against size and format limits.
type Intake struct {
	maxBytes int64
	allowed  []string
	log      *zap.Logger
}

func NewIntake(maxBytes int64, allowedFormats []string, log *zap.Logger) *Intake {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make([]string, 0, len(allowedFormats))
	for _, f := range allowedFormats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "jpg" {
			f = "jpeg"
		}
		allowed = append(allowed, f)
	}
	return &Intake{maxBytes: maxBytes, allowed: allowed, log: log}
}

// MaxBytes is the largest accepted payload.
func (in *Intake) MaxBytes() int64 { return in.maxBytes }

// FromBytes sniffs the format by decoding the header and returns an inline image.
func (in *Intake) FromBytes(raw []byte) (ai.Image, error) {
	if len(raw) == 0 {
		return ai.Image{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if in.maxBytes > 0 && int64(len(raw)) > in.maxBytes {
		in.log.Warn("oversized image rejected", zap.Int("size", len(raw)), zap.Int64("max", in.maxBytes))
		return ai.Image{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidImage, len(raw), in.maxBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		in.log.Warn("undecodable image rejected", zap.String("header", fmt.Sprintf("%x", raw[:min(len(raw), 16)])))
		return ai.Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(in.allowed) > 0 && !slices.Contains(in.allowed, format) {
		return ai.Image{}, fmt.Errorf("%w: format %s not allowed", ErrInvalidImage, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ai.Image{}, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}
	return ai.Image{MIMEType: "image/" + format, Data: raw}, nil
}

// FromURI accepts a data URL or an http(s) URL. Inline payloads are checked
// like uploads; remote images are fetched by the provider.
func (in *Intake) FromURI(ref string) (ai.Image, error) {
	img, err := ai.ParseImageURI(ref)
	if err != nil {
		return ai.Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if !img.Inline() {
		return img, nil
	}
	return in.FromBytes(img.Data)
}

// Extension maps an image MIME type to a file extension for archiving.
func Extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
