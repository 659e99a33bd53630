package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/httputil"
)

func writeSuccess(w http.ResponseWriter, message string, data any) {
	httputil.WriteSuccess(w, http.StatusOK, message, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads a JSON body into dst. Errors come back as validation
// errors ready to write.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.ValidationError(apperrors.FieldErrors{"body": "request body too large"})
		case errors.Is(err, io.EOF):
			return apperrors.ValidationError(apperrors.FieldErrors{"body": "request body is required"})
		default:
			return apperrors.ValidationError(apperrors.FieldErrors{"body": "malformed JSON"})
		}
	}
	return nil
}
