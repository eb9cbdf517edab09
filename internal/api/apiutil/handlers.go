package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
)

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Field  string            `json:"field,omitempty"`
	Reason bookingerr.Reason `json:"reason,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// ReadBody returns the raw request body for handlers that decode it later.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("missing request body")
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("missing request body")
	}
	return body, nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// StatusFor maps an error to the HTTP status it should be reported with.
func StatusFor(err error) int {
	var (
		handlerErr HandlerError
		fieldErr   FieldError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &handlerErr):
		return handlerErr.Status
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case bookingerr.IsInvariantViolation(err):
		return http.StatusInternalServerError
	}
	if reason, ok := bookingerr.ReasonOf(err); ok {
		return ReasonStatus(reason)
	}
	return http.StatusInternalServerError
}

// ReasonStatus is the HTTP status for a booking rejection reason.
func ReasonStatus(reason bookingerr.Reason) int {
	switch reason {
	case bookingerr.ReasonOverlap:
		return http.StatusConflict
	case bookingerr.ReasonHourClosed:
		return http.StatusUnprocessableEntity
	case bookingerr.ReasonInvalidInterval, bookingerr.ReasonSeriesBounds:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes it as an ErrorResponse. Server-side
// failures are reported with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())
	status := StatusFor(err)

	resp := ErrorResponse{Error: err.Error()}
	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		resp.Field = fieldErr.Field
	}
	if reason, ok := bookingerr.ReasonOf(err); ok {
		resp.Reason = reason
	}

	if status >= http.StatusInternalServerError {
		event := logger.Error().Err(err)
		if bookingerr.IsInvariantViolation(err) {
			event = event.Bool("invariant_violation", true)
		}
		event.Int("status", status).Msg("Request failed")
		resp = ErrorResponse{Error: http.StatusText(status)}
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	if writeErr := WriteJSON(w, status, resp); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
