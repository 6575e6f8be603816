package storage

import (
	"encoding/base64"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dmchat/internal/pkg/errs"
)

const (
	// MaxImageSizeMB is the maximum allowed image size in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is the maximum allowed image size in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024

	// PresignedURLDuration is the fixed duration for which an upload URL is valid.
	PresignedURLDuration = 5 * time.Minute

	// ImageKeyPrefix is the top-level folder for message images.
	ImageKeyPrefix = "images"
)

// AllowedMIMETypes defines the set of permitted image MIME types.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// mimeToExt is the canonical extension for each allowed MIME type.
var mimeToExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxImageSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the file name extension and MIME type agree and are allowed.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}

// IsDataURL reports whether s looks like an inline image payload.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURL decodes a base64 image data URL such as "data:image/png;base64,iVBOR...".
func DecodeDataURL(s string) (mimeType string, data []byte, cErr *errs.CustomError) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}

	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}

	mimeType, ok = strings.CutSuffix(strings.ToLower(meta), ";base64")
	if !ok {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}
	if _, allowed := AllowedMIMETypes[mimeType]; !allowed {
		return "", nil, errs.NewError(errs.ErrFileTypeInvalid)
	}

	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageSize+3 {
		return "", nil, errs.NewError(errs.ErrFileSizeTooLarge)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}
	if cErr := ValidateFileSize(int64(len(data))); cErr != nil {
		return "", nil, cErr
	}

	return mimeType, data, nil
}

// ImageKey builds a unique object key for an image owned by ownerID.
func ImageKey(ownerID, mimeType string) string {
	return ImageKeyPrefix + "/" + ownerID + "/" + uuid.NewString() + mimeToExt[strings.ToLower(mimeType)]
}
