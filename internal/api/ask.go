package api

import (
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer    string   `json:"answer"`
	Intent    string   `json:"intent"`
	SQL       string   `json:"sql,omitempty"`
	Validated bool     `json:"validated"`
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Outcome   string   `json:"outcome"`
	RequestID string   `json:"request_id"`
}

// handleAsk always answers 200 when the pipeline ran: a failed stage is part
// of the answer, not a transport error.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	var request askRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	resp := deps.Asker.Handle(r.Context(), question)
	body := askResponse{
		Answer:    resp.Text,
		Intent:    string(resp.Intent),
		SQL:       resp.SQL,
		Validated: resp.Validated,
		Outcome:   pipeline.Outcome(resp),
		RequestID: resp.RequestID,
	}
	if resp.Result != nil {
		body.Columns = resp.Result.Columns
		body.Rows = resp.Result.Rows
		body.Truncated = resp.Result.Truncated
	}
	writeJSON(w, http.StatusOK, body)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema provider is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Schema.Describe())
}
