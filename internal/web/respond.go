// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parleychat/parley/pkg/errutil"
	"github.com/parleychat/parley/pkg/fielderr"
)

// fieldErrorResponse is the body of every 422 response: each rejected field
// mapped to its user-facing message.
type fieldErrorResponse struct {
	FieldErrors map[string]string `json:"field_errors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

// writeFieldErrors sends a 422 with every field rejection. Later errors for
// the same field do not overwrite earlier ones.
func writeFieldErrors(w http.ResponseWriter, errs []*fielderr.Error) {
	resp := fieldErrorResponse{FieldErrors: make(map[string]string, len(errs))}
	for _, fe := range errs {
		if _, seen := resp.FieldErrors[fe.Field]; !seen {
			resp.FieldErrors[fe.Field] = fe.Message
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

// writeError sends either a 422 field rejection or a generic 500, never the
// internal error text.
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	if fe, ok := fielderr.As(err); ok {
		writeFieldErrors(w, []*fielderr.Error{fe})
		return
	}
	errutil.LogError(logger, msg, err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
}
