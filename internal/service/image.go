package service

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"storefront/internal/apperr"
	"storefront/internal/config"
	"storefront/internal/model"
)

// ImageUpload is a file as received from the browser, not yet accepted
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// ImageValidator checks uploads against the allowed MIME set and size limit
type ImageValidator struct {
	maxBytes int64
	allowed  []string
}

// NewImageValidator creates a validator from image config
func NewImageValidator(cfg config.ImageConfig) *ImageValidator {
	allowed := make([]string, 0, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed = append(allowed, normalizeContentType(t))
	}
	return &ImageValidator{maxBytes: cfg.MaxBytes, allowed: allowed}
}

// AllowedTypes returns the accepted MIME types
func (v *ImageValidator) AllowedTypes() []string {
	return append([]string(nil), v.allowed...)
}

// Validate accepts an upload or returns a validation error with the reason.
// The declared type must be allowed and so must the type sniffed from the bytes.
func (v *ImageValidator) Validate(upload ImageUpload) (model.ImageData, error) {
	size := upload.Size
	if n := int64(len(upload.Data)); n > size {
		size = n
	}
	if size <= 0 {
		return model.ImageData{}, apperr.Validation("image file is empty")
	}
	if size > v.maxBytes {
		return model.ImageData{}, apperr.Validation(fmt.Sprintf(
			"image is %s, larger than the %s limit", humanBytes(size), humanBytes(v.maxBytes)))
	}

	declared := normalizeContentType(upload.ContentType)
	if declared != "" && !v.isAllowed(declared) {
		return model.ImageData{}, apperr.Validation(fmt.Sprintf("image type %q is not allowed", upload.ContentType))
	}

	detected := mimetype.Detect(upload.Data)
	sniffed := ""
	for _, t := range v.allowed {
		if detected.Is(t) {
			sniffed = t
			break
		}
	}
	if sniffed == "" {
		return model.ImageData{}, apperr.Validation(fmt.Sprintf("file content is %s, not an allowed image", detected.String()))
	}

	return model.ImageData{
		Filename:    upload.Filename,
		ContentType: sniffed,
		Size:        size,
		Data:        upload.Data,
	}, nil
}

func (v *ImageValidator) isAllowed(contentType string) bool {
	for _, t := range v.allowed {
		if t == contentType {
			return true
		}
	}
	return false
}

func normalizeContentType(contentType string) string {
	normalized, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(normalized))
}

func humanBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
