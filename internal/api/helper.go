package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"clipstack/internal/domain"
)

type httpError struct {
	StatusCode int
	StatusMsg  string
	Details    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusMsg)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type helper struct {
	ctx context.Context
	log *zerolog.Logger
	r   *http.Request
	w   http.ResponseWriter
}

func newHelper(w http.ResponseWriter, r *http.Request, op string) *helper {
	logger := hlog.FromRequest(r).With().Str("op", op).Logger()
	return &helper{
		ctx: logger.WithContext(r.Context()),
		log: &logger,
		w:   w,
		r:   r,
	}
}

func (h *helper) Ctx() context.Context {
	return h.ctx
}

func (h *helper) Logger() *zerolog.Logger {
	return h.log
}

func (h *helper) WriteError(err error) {
	httpErr := h.mapError(err)
	h.WriteResponse(errorResponse{Error: httpErr.StatusMsg, Details: httpErr.Details}, httpErr.StatusCode)
}

func (h *helper) mapError(err error) *httpError {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &httpError{http.StatusRequestEntityTooLarge, "upload is too large", err.Error()}
	}

	switch {
	case errors.Is(err, domain.ErrMissingFile),
		errors.Is(err, domain.ErrMissingOwner),
		errors.Is(err, domain.ErrMissingTaskIDs),
		errors.Is(err, domain.ErrNotEnoughSources),
		errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrMetadataIncomplete):
		return &httpError{http.StatusBadRequest, rootMessage(err), err.Error()}
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrNoValidTasks):
		return &httpError{http.StatusNotFound, rootMessage(err), err.Error()}
	case errors.Is(err, domain.ErrRenderInProgress):
		return &httpError{http.StatusConflict, rootMessage(err), err.Error()}
	case errors.Is(err, domain.ErrUpload):
		h.log.Error().Err(err).Msg("hosting provider error")
		return &httpError{http.StatusInternalServerError, "Upload to hosting provider failed", err.Error()}
	case errors.Is(err, domain.ErrRenderSubmission):
		h.log.Error().Err(err).Msg("render provider error")
		return &httpError{http.StatusInternalServerError, "Error communicating with render provider", err.Error()}
	}

	h.log.Error().Err(err).Msg("unhandled error has been detected")
	return &httpError{http.StatusInternalServerError, "An unexpected error occurred", err.Error()}
}

func (h *helper) WriteResponse(resp any, statusCode int) {
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(statusCode)
	if err := json.NewEncoder(h.w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("write response failed")
	}
}

func (h *helper) ReadRequest(req any) error {
	if err := json.NewDecoder(h.r.Body).Decode(req); err != nil {
		h.log.Warn().Err(err).Msg("can't parse request body")
		return &httpError{http.StatusBadRequest, "can't parse request body", err.Error()}
	}
	return nil
}

// rootMessage returns the text of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
