package ai

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Image is either inline content (Data + MIMEType) or a remote reference (URL).
type Image struct {
	MIMEType string
	Data     []byte
	URL      string
}

// Inline reports whether the image carries its bytes.
func (i Image) Inline() bool { return len(i.Data) > 0 }

// URI renders the image as a data URL, or returns the remote URL.
func (i Image) URI() string {
	if !i.Inline() {
		return i.URL
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ParseImageURI accepts a base64 data URL or an http(s) URL.
func ParseImageURI(ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Image{}, fmt.Errorf("image reference is empty")
	}
	if strings.HasPrefix(ref, "data:") {
		return parseDataURL(ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Image{}, fmt.Errorf("invalid image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Image{}, fmt.Errorf("unsupported image url scheme: %q", u.Scheme)
	}
	return Image{URL: ref}, nil
}

func parseDataURL(ref string) (Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return Image{}, fmt.Errorf("data url must be base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode data url: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("data url carries no bytes")
	}
	return Image{MIMEType: mime, Data: data}, nil
}
