package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/retaillens/retaillens/internal/agent"
	"github.com/retaillens/retaillens/internal/warehouse"
)

const maxAskBodyBytes = 64 << 10

// handleAsk forwards the message to the agent and returns its envelope
// verbatim. Only transport problems produce an error body; every pipeline
// failure is already a degraded envelope.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	var request agent.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "No message provided", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, deps.Agent.Query(r.Context(), request))
}

type schemaResponse struct {
	Dataset string             `json:"dataset"`
	Columns []warehouse.Column `json:"columns"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema lookup is not configured", false, nil)
		return
	}
	dataset, err := warehouse.ParseDataset(deps.Dataset)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INVALID_DATASET", err.Error(), false, nil)
		return
	}
	columns, err := deps.Schema.Columns(r.Context(), dataset)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_FETCH_FAILED", "failed to load table schema", true, map[string]any{"details": err.Error()})
		return
	}
	if columns == nil {
		columns = []warehouse.Column{}
	}
	writeJSON(w, http.StatusOK, schemaResponse{Dataset: dataset.String(), Columns: columns})
}
