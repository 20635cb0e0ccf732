package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"diagnostics/internal/logger"
	"diagnostics/internal/service"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Message: message, Code: code}})
}

// statusFor maps a service error kind onto an HTTP status
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError hides internal failures behind a generic message and logs them
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal {
		log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, service.Code(err), "internal error")
		return
	}
	writeError(w, statusFor(kind), service.Code(err), err.Error())
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(service.ErrInvalidRequest, err)
	}
	return nil
}
