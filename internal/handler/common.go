package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ecopower/ecopower/internal/apperror"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application errors to HTTP responses. Unclassified errors
// are logged and masked as a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		body := map[string]any{"error": ae.Error(), "kind": string(ae.Kind)}
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
		writeJSON(w, apperror.HTTPStatus(err), body)
		return
	}
	logger.Error("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation("invalid JSON body")
	}
	return nil
}

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, apperror.Validation("invalid id")
	}
	return id, nil
}

func parseFormID(r *http.Request, field string) (int64, error) {
	id, err := strconv.ParseInt(r.FormValue(field), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("%s is required", field)
	}
	return id, nil
}
