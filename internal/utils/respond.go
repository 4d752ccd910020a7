package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/quanport/internal/domain"
)

// ContentTypeMsgpack is the media type clients send in Accept to receive msgpack
const ContentTypeMsgpack = "application/msgpack"

// WantsMsgpack reports whether the client asked for a msgpack body
func WantsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, ContentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// WriteResponse encodes data as JSON, or as msgpack when the request asks for it.
// msgpack payloads reuse the json struct tags so both encodings carry the same keys.
func WriteResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}, log zerolog.Logger) {
	if r != nil && WantsMsgpack(r) {
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)

		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes an {"error": message} body
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, log zerolog.Logger) {
	WriteResponse(w, r, status, map[string]string{"error": message}, log)
}

// ErrorStatus maps domain errors to HTTP status codes
func ErrorStatus(err error) int {
	var (
		validationErr    *domain.ValidationError
		dataErr          *domain.InsufficientDataError
		historyErr       *domain.InsufficientHistoryError
		combinatorialErr *domain.CombinatorialLimitError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &dataErr), errors.As(err, &historyErr), errors.As(err, &combinatorialErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
