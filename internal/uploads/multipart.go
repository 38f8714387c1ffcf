package uploads

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
)

const maxMemoryBytes = 8 << 20

// FromRequest returns the single file under FieldName, or nil when the
// request carries no upload. Requests that are not multipart count as
// carrying no upload.
func FromRequest(r *http.Request) (*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File[FieldName]
	switch len(files) {
	case 0:
		return nil, nil
	case 1:
		return files[0], nil
	default:
		return nil, ErrUnexpectedFile
	}
}
