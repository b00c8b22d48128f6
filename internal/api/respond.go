package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/apperr"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON value into dst. An empty body decodes as {};
// anything after the value other than whitespace is rejected.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("Invalid request body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError is the single place where a failed request is logged and
// rendered.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	}
	switch apperr.KindOf(err) {
	case apperr.KindTransient:
		h.logger.Warn("store unavailable", fields...)
	case apperr.KindUnexpected:
		h.logger.Error("request failed", fields...)
	}
	h.renderError(w, err)
}

func (h *APIHandler) renderError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	resp := errorResponse{Error: apperr.MessageOf(err)}
	if kind == apperr.KindUnexpected && !h.production {
		resp.Detail = err.Error()
	}
	writeJSON(w, statusFor(kind), resp)
}
