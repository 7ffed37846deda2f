package middleware

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

const (
	maxPromptLen  = 4000
	maxDiseaseLen = 500
)

// IPResolver resolves host names; *net.Resolver satisfies it.
type IPResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ImageURLValidator accepts data URLs and public http(s) URLs. Named hosts are
// resolved and refused when any address is loopback, private or link-local.
type ImageURLValidator struct {
	resolver IPResolver
}

// NewImageURLValidator uses net.DefaultResolver when resolver is nil.
func NewImageURLValidator(resolver IPResolver) *ImageURLValidator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &ImageURLValidator{resolver: resolver}
}

var defaultImageURLValidator = NewImageURLValidator(nil)

// ValidateImageURL checks rawURL with the default resolver.
func ValidateImageURL(ctx context.Context, rawURL string) error {
	return defaultImageURLValidator.Validate(ctx, rawURL)
}

func (v *ImageURLValidator) Validate(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("imageUrl cannot be empty")
	}
	if strings.HasPrefix(rawURL, "data:") {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https, data)", u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("localhost/internal hosts are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if !publicIP(ip) {
			return fmt.Errorf("private IP ranges are not allowed")
		}
		return nil
	}

	addrs, err := v.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if !publicIP(a.IP) {
			return fmt.Errorf("host %s resolves to a private address", host)
		}
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}

// ValidatePrompt checks the free-text instruction sent with an image
func ValidatePrompt(prompt string) error {
	if utf8.RuneCountInString(prompt) > maxPromptLen {
		return fmt.Errorf("prompt too long (max %d characters)", maxPromptLen)
	}
	return nil
}

// ValidateDisease checks the disease description for the standalone stages
func ValidateDisease(disease string) error {
	if strings.TrimSpace(disease) == "" {
		return fmt.Errorf("disease cannot be empty")
	}
	if utf8.RuneCountInString(disease) > maxDiseaseLen {
		return fmt.Errorf("disease too long (max %d characters)", maxDiseaseLen)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates history limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
