package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/config"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func testImageValidator() *ImageValidator {
	return NewImageValidator(config.ImageConfig{
		MaxBytes:     10 * 1024 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	})
}

func TestImageValidator_Accepts(t *testing.T) {
	v := testImageValidator()

	img, err := v.Validate(ImageUpload{Filename: "shoe.png", ContentType: "image/png", Size: int64(len(pngHeader)), Data: pngHeader})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "shoe.png", img.Filename)

	// declared type parameters are ignored
	img, err = v.Validate(ImageUpload{Filename: "a.jpg", ContentType: "image/JPEG; q=1", Data: jpegHeader})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.ContentType)
}

func TestImageValidator_Rejects(t *testing.T) {
	v := testImageValidator()

	tooBig := make([]byte, 15*1024*1024)
	copy(tooBig, pngHeader)

	tests := []struct {
		name   string
		upload ImageUpload
		reason string
	}{
		{"15MB png", ImageUpload{Filename: "big.png", ContentType: "image/png", Size: int64(len(tooBig)), Data: tooBig}, "limit"},
		{"declared type not allowed", ImageUpload{Filename: "x.bmp", ContentType: "image/bmp", Data: pngHeader}, "not allowed"},
		{"content is not an image", ImageUpload{Filename: "x.png", ContentType: "image/png", Data: []byte("just some text")}, "not an allowed image"},
		{"empty", ImageUpload{Filename: "x.png", ContentType: "image/png"}, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.upload)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
