package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeText      Type = "text"
	TypeAnalytics Type = "analytics"
)

type ChartType string

const (
	ChartNone  ChartType = "none"
	ChartBar   ChartType = "bar_chart"
	ChartLine  ChartType = "line_chart"
	ChartPie   ChartType = "pie_chart"
	ChartTable ChartType = "table"
)

type Row map[string]any

type Visualization struct {
	ChartType ChartType `json:"chart_type"`
	XAxis     string    `json:"x_axis,omitempty"`
	YAxis     string    `json:"y_axis,omitempty"`
}

// Envelope is the response returned for every request, on success and on
// every failure path alike.
type Envelope struct {
	Type          Type          `json:"type"`
	Content       string        `json:"content"`
	Visualization Visualization `json:"visualization"`
	Data          []Row         `json:"data"`
	RawSQL        string        `json:"raw_sql"`
}

func Degraded(content string) Envelope {
	return Envelope{
		Type:          TypeText,
		Content:       content,
		Visualization: Visualization{ChartType: ChartNone},
		Data:          []Row{},
		RawSQL:        "",
	}
}

func Degradedf(format string, args ...any) Envelope {
	return Degraded(fmt.Sprintf(format, args...))
}

// Normalize reconciles type, visualization, raw_sql and data so the returned
// envelope is internally consistent whatever the model claimed. An empty
// ChartType stands for an absent visualization.
func Normalize(env Envelope) Envelope {
	chart := env.Visualization.ChartType
	switch {
	case env.RawSQL == "" && (chart == "" || chart == ChartNone):
		env.Type = TypeText
		env.RawSQL = ""
		env.Data = []Row{}
		env.Visualization = Visualization{ChartType: ChartNone}
	case chart != "" && chart != ChartNone:
		env.Type = TypeAnalytics
	default:
		env.Type = TypeText
	}

	if env.Data == nil {
		env.Data = []Row{}
	}
	if env.Visualization.ChartType == "" {
		env.Visualization = Visualization{ChartType: ChartNone}
	}
	return env
}

var (
	ErrTextWithQuery         = errors.New("text envelope carries raw_sql or a chart")
	ErrAnalyticsWithoutChart = errors.New("analytics envelope has no chart")
	ErrUnknownType           = errors.New("unknown envelope type")
	ErrMissingData           = errors.New("data is nil")
)

// Validate reports the first broken envelope invariant, if any.
func Validate(env Envelope) error {
	switch env.Type {
	case TypeText:
		if env.RawSQL != "" || env.Visualization.ChartType != ChartNone {
			return ErrTextWithQuery
		}
	case TypeAnalytics:
		if env.Visualization.ChartType == "" || env.Visualization.ChartType == ChartNone {
			return ErrAnalyticsWithoutChart
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if env.Data == nil {
		return ErrMissingData
	}
	return nil
}

// MarshalJSON keeps data a JSON array even for a zero-value Envelope.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	out := alias(e)
	if out.Data == nil {
		out.Data = []Row{}
	}
	return json.Marshal(out)
}
