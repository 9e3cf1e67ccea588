package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/retaillens/retaillens/internal/envelope"
)

func TestAnalysisEmbedsDatasetSchemaAndRules(t *testing.T) {
	hint := "The table schema for retail.sales is: region: STRING, sales_amount: FLOAT64\n\n"
	got := Analysis("retail.sales", hint)

	for _, want := range []string{
		"Answer questions for dataset: retail.sales.",
		hint,
		ResponseSchema,
		"Do not include the 'content' field",
		"OMITTING 'raw_sql', 'data', and 'visualization'",
		"'chart_type': 'bar_chart'",
		"'visualization.chart_type' to 'table'",
		"Always include the SQL query in `raw_sql`",
		"EXTRACT(MONTH FROM transaction_date)",
		"fully qualified with the dataset name (e.g., retail.sales)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Analysis() missing %q", want)
		}
	}
	if !strings.HasSuffix(got, "Return ONLY valid JSON.") {
		t.Fatalf("Analysis() should end with the JSON-only instruction")
	}
}

func TestAnalysisWithoutSchemaHint(t *testing.T) {
	got := Analysis("retail.sales", "")
	if strings.Contains(got, "The table schema for") {
		t.Fatal("unexpected schema hint")
	}
}

func TestResponseSchemaIsValidJSON(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(ResponseSchema), &schema); err != nil {
		t.Fatalf("ResponseSchema is not JSON: %v", err)
	}
	required, ok := schema["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "type" {
		t.Fatalf("required = %#v", schema["required"])
	}
}

func TestDataSummaryEmbedsQuestionAndRows(t *testing.T) {
	got, err := DataSummary("What is the highest sale amount?", []envelope.Row{{"max_sale": 499.87}})
	if err != nil {
		t.Fatalf("DataSummary() error = %v", err)
	}
	if !strings.Contains(got, "The user's original question was: What is the highest sale amount?") {
		t.Fatalf("question missing: %s", got)
	}
	if !strings.Contains(got, `The data is: [{"max_sale":499.87}]`) {
		t.Fatalf("data missing: %s", got)
	}
	if !strings.Contains(got, "only the 'content' field") {
		t.Fatalf("contract missing: %s", got)
	}
}

func TestDataSummaryEmptyRows(t *testing.T) {
	got, err := DataSummary("any sales in 2030?", nil)
	if err != nil {
		t.Fatalf("DataSummary() error = %v", err)
	}
	if !strings.Contains(got, "The data is: []") {
		t.Fatalf("empty data not rendered as []: %s", got)
	}
}

func TestConversationalCarriesNoData(t *testing.T) {
	got := Conversational("Hello")
	if !strings.Contains(got, "User's question: Hello") {
		t.Fatalf("question missing: %s", got)
	}
	if strings.Contains(got, "The data is") {
		t.Fatal("conversational prompt must not embed data")
	}
}
