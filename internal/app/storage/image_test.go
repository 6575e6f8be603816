package storage

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/pkg/errs"
)

func TestValidateFileType(t *testing.T) {
	assert.Nil(t, ValidateFileType("cat.PNG", "image/png"))
	assert.Nil(t, ValidateFileType("cat.jpeg", "IMAGE/JPEG"))

	assert.Equal(t, errs.ErrFileTypeInvalid, ValidateFileType("cat.png", "image/jpeg").Code)
	assert.Equal(t, errs.ErrFileTypeInvalid, ValidateFileType("cat", "image/png").Code)
	assert.Equal(t, errs.ErrFileTypeInvalid, ValidateFileType("doc.pdf", "application/pdf").Code)
}

func TestValidateFileSize(t *testing.T) {
	assert.Nil(t, ValidateFileSize(1))
	assert.Equal(t, errs.ErrInvalidParams, ValidateFileSize(0).Code)
	assert.Equal(t, errs.ErrFileSizeTooLarge, ValidateFileSize(MaxImageSize+1).Code)
}

func TestDecodeDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	mime, data, cErr := DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(payload))
	require.Nil(t, cErr)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, payload, data)

	cases := map[string]int{
		"https://x.test/a.png":            errs.ErrImageInvalid,
		"data:image/png,abc":              errs.ErrImageInvalid,
		"data:image/png;base64":           errs.ErrImageInvalid,
		"data:image/png;base64,@@@":       errs.ErrImageInvalid,
		"data:text/plain;base64,aGVsbG8=": errs.ErrFileTypeInvalid,
		"data:image/gif;base64,":          errs.ErrInvalidParams,
	}
	for in, code := range cases {
		_, _, cErr := DecodeDataURL(in)
		require.NotNil(t, cErr, in)
		assert.Equal(t, code, cErr.Code, in)
	}

	huge := "data:image/png;base64," + strings.Repeat("A", (MaxImageSize/3+10)*4)
	_, _, cErr = DecodeDataURL(huge)
	require.NotNil(t, cErr)
	assert.Equal(t, errs.ErrFileSizeTooLarge, cErr.Code)
}

func TestImageKeyAndPublicURL(t *testing.T) {
	key := ImageKey("u1", "image/jpeg")
	assert.True(t, strings.HasPrefix(key, "images/u1/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	c := &s3Client{cfg: ServiceConfig{PublicBaseURL: "https://cdn.test/bucket/"}}
	assert.Equal(t, "https://cdn.test/bucket/images/u%201/a.png", c.PublicURL("images/u 1/a.png"))
}
