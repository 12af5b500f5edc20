package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/records"
)

type addRecordRequest struct {
	Texto string `json:"texto"`
}

type recordActionRequest struct {
	Request string `json:"request"`
}

func handleAddRecord(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Records == nil {
		writeRecordsNotConfigured(w, r)
		return
	}
	var request addRecordRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid record body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Texto) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXTO_REQUIRED", "texto is required", false, nil)
		return
	}
	record, err := deps.Records.Add(r.Context(), request.Texto)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RECORD_ADD_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func handleGetRecord(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Records == nil {
		writeRecordsNotConfigured(w, r)
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	record, err := deps.Records.Get(r.Context(), id)
	if errors.Is(err, records.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "RECORD_NOT_FOUND", "No encontrado", false, map[string]any{"id": id})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RECORD_GET_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func handleDeleteRecord(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Records == nil {
		writeRecordsNotConfigured(w, r)
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	err := deps.Records.Delete(r.Context(), id)
	if errors.Is(err, records.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "RECORD_NOT_FOUND", "No encontrado", false, map[string]any{"id": id})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RECORD_DELETE_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "message": "Eliminado"})
}

func handleRecordRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.RecordAssistant == nil {
		writeRecordsNotConfigured(w, r)
		return
	}
	var request recordActionRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid record request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Request) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "REQUEST_REQUIRED", "request is required", false, nil)
		return
	}
	reply, err := deps.RecordAssistant.Do(r.Context(), request.Request)
	if errors.Is(err, records.ErrUnsupportedAction) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNSUPPORTED_ACTION", err.Error(), false, nil)
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "RECORD_REQUEST_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ID", "record id must be a positive integer", false, map[string]any{"id": r.PathValue("id")})
		return 0, false
	}
	return id, true
}

func writeRecordsNotConfigured(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotImplemented, "RECORDS_NOT_CONFIGURED", "record store is not configured", false, nil)
}
