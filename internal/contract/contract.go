package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/retaillens/retaillens/internal/envelope"
)

const noTextMessage = "Model returned no text."

var ErrEmptyOutput = errors.New("model returned no text")

type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type analysisPayload struct {
	Type          envelope.Type           `json:"type"`
	Visualization *envelope.Visualization `json:"visualization"`
	RawSQL        string                  `json:"raw_sql"`
}

type summaryPayload struct {
	Content string `json:"content"`
}

// ParseAnalysis turns the first-stage model output into an envelope plan.
// On failure the returned envelope is already a degraded text envelope that
// describes the problem, and the error says which failure it was.
func ParseAnalysis(raw string) (envelope.Envelope, error) {
	if strings.TrimSpace(raw) == "" {
		return envelope.Degraded(noTextMessage), ErrEmptyOutput
	}

	var payload analysisPayload
	if err := decode(raw, &payload); err != nil {
		return envelope.Degradedf("Error parsing JSON: %v. Raw output: %s", err.Err, strings.TrimSpace(raw)), err
	}

	plan := envelope.Envelope{
		Type:   payload.Type,
		RawSQL: trimStatement(payload.RawSQL),
		Data:   []envelope.Row{},
	}
	if payload.Visualization != nil {
		plan.Visualization = *payload.Visualization
	}
	return plan, nil
}

// ParseSummary extracts the content field of a second-stage model reply.
// A reply without a content field yields an empty string and no error.
func ParseSummary(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyOutput
	}
	var payload summaryPayload
	if err := decode(raw, &payload); err != nil {
		return "", err
	}
	return payload.Content, nil
}

// trimStatement drops surrounding space and trailing semicolons so the plan
// carries the statement exactly as the warehouse runs it.
func trimStatement(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func decode(raw string, dst any) *ParseError {
	if trimmed := strings.TrimSpace(raw); json.Valid([]byte(trimmed)) {
		if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
			return &ParseError{Raw: raw, Err: err}
		}
		return nil
	}
	body := StripFence(raw)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}
