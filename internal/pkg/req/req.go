/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates JSON decoding with content-type and size checks, mapping every
failure onto an errs.CustomError the handlers can return directly.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dmchat/internal/pkg/errs"
)

// MaxJSONBodySize bounds JSON request bodies. Message bodies may carry an
// inline image as a data URL, so the limit sits above the image size cap.
const MaxJSONBodySize int64 = 8 << 20 // 8 MB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
