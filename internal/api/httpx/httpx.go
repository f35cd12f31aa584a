package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/baharkarakas/credits-backend/internal/services"
)

const maxBodyBytes = 1 << 20

type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(kind services.Kind) int {
	switch kind {
	case services.KindInvalidAmount,
		services.KindInvalidRequest,
		services.KindSelfAllocation,
		services.KindInsufficientBalance,
		services.KindInsufficientCredits:
		return http.StatusBadRequest
	case services.KindInvalidCredentials:
		return http.StatusUnauthorized
	case services.KindUnauthorized:
		return http.StatusForbidden
	case services.KindActorNotFound, services.KindTargetNotFound, services.KindUserNotFound:
		return http.StatusNotFound
	case services.KindConcurrentModification, services.KindConflict:
		return http.StatusConflict
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteServiceError renders err with the status of its kind. Errors that
// carry no kind are reported as internal without their text.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	code := string(kind)
	if code == "" {
		code = "internal_error"
	}
	WriteError(w, StatusFor(kind), code, services.Message(err), nil)
}

// DecodeJSON reads a single JSON object from the request body.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("field %q has the wrong type", typeErr.Field)
		}
		return err
	}
	return nil
}

// BadRequest writes a 400 invalid_request response.
func BadRequest(w http.ResponseWriter, msg string, details any) {
	WriteError(w, http.StatusBadRequest, string(services.KindInvalidRequest), msg, details)
}
