package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/retaillens/retaillens/internal/contract"
	"github.com/retaillens/retaillens/internal/envelope"
	"github.com/retaillens/retaillens/internal/llm"
	"github.com/retaillens/retaillens/internal/observability"
	"github.com/retaillens/retaillens/internal/prompt"
	"github.com/retaillens/retaillens/internal/warehouse"
)

const noResponseMessage = "I'm sorry, I couldn't generate a response."

const (
	stageSchema         = "schema"
	stageAnalysis       = "analysis"
	stageQuery          = "query"
	stageSummary        = "summary"
	stageConversational = "conversational"
	stageTotal          = "total"
)

const (
	OutcomeAnswered     = "answered"
	OutcomeModelFailed  = "model_failed"
	OutcomeEmptyOutput  = "empty_output"
	OutcomeParseFailed  = "parse_failed"
	OutcomeQueryFailed  = "query_failed"
	OutcomeInternalFail = "internal_error"
)

// SchemaHinter renders the schema fragment for the analysis prompt. It must
// not fail; an empty string means no hint.
type SchemaHinter interface {
	Hint(ctx context.Context, datasetID string) string
}

type Request struct {
	Message string `json:"message"`
}

type Dependencies struct {
	Model     llm.Model
	Schema    SchemaHinter
	Warehouse warehouse.Querier
	Dataset   string
	Logger    *slog.Logger
}

// Agent answers one question per Query call. It keeps no per-request state
// and is safe for concurrent use when its collaborators are.
type Agent struct {
	model     llm.Model
	schema    SchemaHinter
	warehouse warehouse.Querier
	dataset   string
	logger    *slog.Logger
}

func New(deps Dependencies) (*Agent, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("warehouse is required")
	}
	if strings.TrimSpace(deps.Dataset) == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	return &Agent{
		model:     deps.Model,
		schema:    deps.Schema,
		warehouse: deps.Warehouse,
		dataset:   strings.TrimSpace(deps.Dataset),
		logger:    deps.Logger,
	}, nil
}

func (a *Agent) Dataset() string {
	return a.dataset
}

// Query runs the two-stage pipeline and always returns a normalized
// envelope. Failures become degraded text envelopes; a panicking
// collaborator is recovered the same way.
func (a *Agent) Query(ctx context.Context, req Request) (result envelope.Envelope) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, a.logger)
	outcome := OutcomeInternalFail

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "pipeline panicked", slog.Any("panic", recovered))
			result = envelope.Degradedf("Internal error: %v", recovered)
			outcome = OutcomeInternalFail
		}
		result = envelope.Normalize(result)
		if err := envelope.Validate(result); err != nil {
			logger.WarnContext(ctx, "inconsistent envelope", slog.Any("error", err), slog.String("raw_sql", result.RawSQL))
		}
		observability.ObserveAgentRequest(outcome)
		observability.ObserveStage(stageTotal, time.Since(start))
		logger.InfoContext(ctx, "question answered",
			slog.String("outcome", outcome),
			slog.String("type", string(result.Type)),
			slog.String("chart_type", string(result.Visualization.ChartType)),
			slog.Int("rows", len(result.Data)),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	result, outcome = a.run(ctx, logger, req.Message)
	return result
}

func (a *Agent) run(ctx context.Context, logger *slog.Logger, message string) (envelope.Envelope, string) {
	hint := a.schemaHint(ctx)

	raw, err := a.generate(ctx, stageAnalysis, llm.UserContent(prompt.Analysis(a.dataset, hint), message))
	if err != nil {
		logger.WarnContext(ctx, "analysis model call failed", slog.Any("error", err))
		return envelope.Degradedf("Model returned no text. Error: %v", err), OutcomeModelFailed
	}

	plan, err := contract.ParseAnalysis(raw)
	if err != nil {
		logger.WarnContext(ctx, "analysis output rejected", slog.Any("error", err))
		if errors.Is(err, contract.ErrEmptyOutput) {
			return plan, OutcomeEmptyOutput
		}
		return plan, OutcomeParseFailed
	}

	if plan.RawSQL != "" {
		rows, err := a.query(ctx, plan.RawSQL)
		if err != nil {
			logger.WarnContext(ctx, "query execution failed", slog.Any("error", err), slog.String("raw_sql", plan.RawSQL))
			return envelope.Degradedf("Error executing SQL: %v", err), OutcomeQueryFailed
		}
		plan.Data = rows
		plan.Content = a.summarize(ctx, logger, message, rows)
	} else {
		plan.Content = a.converse(ctx, logger, message)
	}
	return plan, OutcomeAnswered
}

func (a *Agent) schemaHint(ctx context.Context) string {
	if a.schema == nil {
		return ""
	}
	start := time.Now()
	defer func() { observability.ObserveStage(stageSchema, time.Since(start)) }()
	return a.schema.Hint(ctx, a.dataset)
}

func (a *Agent) query(ctx context.Context, sqlText string) ([]envelope.Row, error) {
	start := time.Now()
	rows, err := a.warehouse.Query(ctx, sqlText)
	observability.ObserveStage(stageQuery, time.Since(start))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []envelope.Row{}
	}
	observability.ObserveQueryRows(len(rows))
	return rows, nil
}

// summarize grounds the reply in the query result. Any failure leaves the
// content empty; the rows are still returned.
func (a *Agent) summarize(ctx context.Context, logger *slog.Logger, message string, rows []envelope.Row) string {
	instruction, err := prompt.DataSummary(message, rows)
	if err != nil {
		logger.WarnContext(ctx, "build summary prompt failed", slog.Any("error", err))
		return ""
	}
	raw, err := a.generate(ctx, stageSummary, llm.UserContent(instruction))
	if err != nil {
		logger.WarnContext(ctx, "summary model call failed", slog.Any("error", err))
		return ""
	}
	content, err := contract.ParseSummary(raw)
	if err != nil {
		logger.WarnContext(ctx, "summary output rejected", slog.Any("error", err))
		return ""
	}
	return content
}

func (a *Agent) converse(ctx context.Context, logger *slog.Logger, message string) string {
	raw, err := a.generate(ctx, stageConversational, llm.UserContent(prompt.Conversational(message)))
	if err != nil {
		logger.WarnContext(ctx, "conversational model call failed", slog.Any("error", err))
		return ""
	}
	content, err := contract.ParseSummary(raw)
	switch {
	case errors.Is(err, contract.ErrEmptyOutput):
		return noResponseMessage
	case err != nil:
		logger.WarnContext(ctx, "conversational output rejected", slog.Any("error", err))
		return ""
	}
	return content
}

func (a *Agent) generate(ctx context.Context, stage string, contents []llm.Content) (string, error) {
	start := time.Now()
	text, err := a.model.Generate(ctx, contents)
	observability.ObserveStage(stage, time.Since(start))
	switch {
	case err != nil:
		observability.ObserveModelCall(stage, "error")
	case strings.TrimSpace(text) == "":
		observability.ObserveModelCall(stage, "empty")
	default:
		observability.ObserveModelCall(stage, "ok")
	}
	return text, err
}
