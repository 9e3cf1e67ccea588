package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/retaillens/retaillens/internal/envelope"
	"github.com/retaillens/retaillens/internal/llm"
)

const dataset = "retail_data.sales"

func TestQueryGreetingIsText(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"type":"text"}`, `{"content":"Hello! Ask me about your sales."}`}}
	wh := &fakeWarehouse{}
	a := newTestAgent(t, model, wh)

	got := a.Query(context.Background(), Request{Message: "Hello"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || got.RawSQL != "" || len(got.Data) != 0 || got.Visualization.ChartType != envelope.ChartNone {
		t.Fatalf("envelope = %#v", got)
	}
	if got.Content != "Hello! Ask me about your sales." {
		t.Fatalf("Content = %q", got.Content)
	}
	if len(wh.queries) != 0 {
		t.Fatalf("warehouse queried %v", wh.queries)
	}
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.calls))
	}
	second := joinedText(model.calls[1])
	if !strings.Contains(second, "general conversational question") || !strings.Contains(second, "User's question: Hello") {
		t.Fatalf("second prompt = %q", second)
	}
}

func TestQueryBarChart(t *testing.T) {
	sqlText := "SELECT region, SUM(sales_amount) AS total_sales FROM retail_data.sales GROUP BY region"
	model := &scriptedModel{replies: []string{
		"```json\n" + `{"type":"analytics","visualization":{"chart_type":"bar_chart","x_axis":"region","y_axis":"total_sales"},"raw_sql":"` + sqlText + `"}` + "\n```",
		`{"content":"North leads with 1520.4 in sales."}`,
	}}
	wh := &fakeWarehouse{rows: []envelope.Row{
		{"region": "North", "total_sales": 1520.4},
		{"region": "South", "total_sales": 1300.25},
		{"region": "East", "total_sales": 990.0},
		{"region": "West", "total_sales": 870.11},
	}}
	a := newTestAgent(t, model, wh)

	got := a.Query(context.Background(), Request{Message: "Show me a bar chart of sales by region"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeAnalytics {
		t.Fatalf("Type = %q", got.Type)
	}
	if got.Visualization != (envelope.Visualization{ChartType: envelope.ChartBar, XAxis: "region", YAxis: "total_sales"}) {
		t.Fatalf("Visualization = %#v", got.Visualization)
	}
	if got.RawSQL != sqlText || !strings.Contains(got.RawSQL, dataset) {
		t.Fatalf("RawSQL = %q", got.RawSQL)
	}
	if len(got.Data) != 4 || got.Data[0]["region"] != "North" {
		t.Fatalf("Data = %#v", got.Data)
	}
	if got.Content != "North leads with 1520.4 in sales." {
		t.Fatalf("Content = %q", got.Content)
	}
	if len(wh.queries) != 1 || wh.queries[0] != sqlText {
		t.Fatalf("queries = %v", wh.queries)
	}
	summaryPrompt := joinedText(model.calls[1])
	if !strings.Contains(summaryPrompt, "Show me a bar chart of sales by region") || !strings.Contains(summaryPrompt, `"region":"North"`) {
		t.Fatalf("summary prompt = %q", summaryPrompt)
	}
}

func TestQuerySingleValueTable(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"type":"analytics","visualization":{"chart_type":"table"},"raw_sql":"SELECT MAX(sales_amount) AS max_sale FROM retail_data.sales"}`,
		`{"content":"The highest sale was 499.87."}`,
	}}
	wh := &fakeWarehouse{rows: []envelope.Row{{"max_sale": 499.87}}}
	a := newTestAgent(t, model, wh)

	got := a.Query(context.Background(), Request{Message: "What is the highest sale amount?"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeAnalytics || got.Visualization.ChartType != envelope.ChartTable {
		t.Fatalf("envelope = %#v", got)
	}
	if len(got.Data) != 1 {
		t.Fatalf("Data = %#v", got.Data)
	}
}

func TestQueryStripsFenceFromGreetingPlan(t *testing.T) {
	model := &scriptedModel{replies: []string{"```json\n{\"type\":\"text\"}\n```", `{"content":"Hi!"}`}}
	got := newTestAgent(t, model, &fakeWarehouse{}).Query(context.Background(), Request{Message: "Hi"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || got.Content != "Hi!" {
		t.Fatalf("envelope = %#v", got)
	}
}

func TestQueryExecutionErrorSkipsSummary(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"type":"analytics","visualization":{"chart_type":"table"},"raw_sql":"SELEC * FROM retail_data.sales"}`,
		`{"content":"should never be requested"}`,
	}}
	wh := &fakeWarehouse{err: errors.New(`Syntax error: Unexpected identifier "SELEC"`)}
	got := newTestAgent(t, model, wh).Query(context.Background(), Request{Message: "show everything"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || got.RawSQL != "" || len(got.Data) != 0 {
		t.Fatalf("envelope = %#v", got)
	}
	if !strings.HasPrefix(got.Content, "Error executing SQL: ") || !strings.Contains(got.Content, `Unexpected identifier "SELEC"`) {
		t.Fatalf("Content = %q", got.Content)
	}
	if len(model.calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(model.calls))
	}
}

func TestQueryMalformedPlanIsDegraded(t *testing.T) {
	for _, raw := range []string{"Sure, here is your chart!", "```json\n{\"type\": \"analytics\", ", "```\n[1,2]\n```"} {
		model := &scriptedModel{replies: []string{raw}}
		wh := &fakeWarehouse{}
		got := newTestAgent(t, model, wh).Query(context.Background(), Request{Message: "chart please"})

		assertWellFormed(t, got)
		if got.Type != envelope.TypeText || !strings.HasPrefix(got.Content, "Error parsing JSON: ") {
			t.Fatalf("raw %q: envelope = %#v", raw, got)
		}
		if !strings.Contains(got.Content, "Raw output: ") {
			t.Fatalf("raw %q: content lacks raw output: %q", raw, got.Content)
		}
		if len(model.calls) != 1 || len(wh.queries) != 0 {
			t.Fatalf("raw %q: model calls = %d, queries = %d", raw, len(model.calls), len(wh.queries))
		}
	}
}

func TestQueryEmptyPlanIsDegraded(t *testing.T) {
	model := &scriptedModel{replies: []string{"  \n"}}
	got := newTestAgent(t, model, &fakeWarehouse{}).Query(context.Background(), Request{Message: "sales?"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || got.Content != "Model returned no text." {
		t.Fatalf("envelope = %#v", got)
	}
	if len(model.calls) != 1 {
		t.Fatalf("model calls = %d", len(model.calls))
	}
}

func TestQueryAnalysisModelErrorIsDegraded(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("quota exceeded")}}
	got := newTestAgent(t, model, &fakeWarehouse{}).Query(context.Background(), Request{Message: "sales?"})

	assertWellFormed(t, got)
	if !strings.HasPrefix(got.Content, "Model returned no text.") || !strings.Contains(got.Content, "quota exceeded") {
		t.Fatalf("Content = %q", got.Content)
	}
}

func TestQuerySummaryFailureKeepsResults(t *testing.T) {
	plan := `{"type":"analytics","visualization":{"chart_type":"line_chart","x_axis":"month","y_axis":"total"},"raw_sql":"SELECT 1"}`
	cases := map[string]*scriptedModel{
		"unparseable": {replies: []string{plan, "The data shows growth."}},
		"empty":       {replies: []string{plan, ""}},
		"model error": {replies: []string{plan}, errs: []error{nil, errors.New("deadline exceeded")}},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			wh := &fakeWarehouse{rows: []envelope.Row{{"month": "2024-01", "total": 10.5}}}
			got := newTestAgent(t, model, wh).Query(context.Background(), Request{Message: "monthly trend as a line chart"})

			assertWellFormed(t, got)
			if got.Content != "" {
				t.Fatalf("Content = %q, want empty", got.Content)
			}
			if got.Type != envelope.TypeAnalytics || got.RawSQL != "SELECT 1" || len(got.Data) != 1 {
				t.Fatalf("envelope = %#v", got)
			}
			if got.Visualization.ChartType != envelope.ChartLine {
				t.Fatalf("ChartType = %q", got.Visualization.ChartType)
			}
		})
	}
}

func TestQueryConversationalFallbacks(t *testing.T) {
	cases := []struct {
		name  string
		model *scriptedModel
		want  string
	}{
		{name: "no text", model: &scriptedModel{replies: []string{`{"type":"text"}`, ""}}, want: noResponseMessage},
		{name: "not json", model: &scriptedModel{replies: []string{`{"type":"text"}`, "Hello there"}}, want: ""},
		{name: "model error", model: &scriptedModel{replies: []string{`{"type":"text"}`}, errs: []error{nil, errors.New("boom")}}, want: ""},
		{name: "no content field", model: &scriptedModel{replies: []string{`{"type":"text"}`, `{"answer":"hi"}`}}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newTestAgent(t, tc.model, &fakeWarehouse{}).Query(context.Background(), Request{Message: "Thanks"})
			assertWellFormed(t, got)
			if got.Type != envelope.TypeText || got.Content != tc.want {
				t.Fatalf("envelope = %#v, want content %q", got, tc.want)
			}
		})
	}
}

func TestQueryOverridesModelClaimedAnalyticsWithoutSQL(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"type":"analytics"}`, `{"content":"I can help with sales questions."}`}}
	got := newTestAgent(t, model, &fakeWarehouse{}).Query(context.Background(), Request{Message: "What can you do?"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || got.Visualization.ChartType != envelope.ChartNone {
		t.Fatalf("envelope = %#v", got)
	}
}

// A query plan without a chart is returned as text but keeps its SQL and
// rows; the inconsistency is only logged.
func TestQueryPlanWithoutChartKeepsSQLAsText(t *testing.T) {
	sqlText := "SELECT region, COUNT(*) AS n FROM retail_data.sales GROUP BY region"
	model := &scriptedModel{replies: []string{
		`{"type":"analytics","visualization":{"chart_type":"none"},"raw_sql":"` + sqlText + `"}`,
		`{"content":"Four regions have sales."}`,
	}}
	wh := &fakeWarehouse{rows: []envelope.Row{{"region": "North", "n": int64(3)}}}

	got := newTestAgent(t, model, wh).Query(context.Background(), Request{Message: "count sales per region"})

	if got.Type != envelope.TypeText || got.Visualization.ChartType != envelope.ChartNone {
		t.Fatalf("envelope = %#v", got)
	}
	if got.RawSQL != sqlText || len(got.Data) != 1 || got.Content != "Four regions have sales." {
		t.Fatalf("envelope = %#v", got)
	}
	if err := envelope.Validate(got); !errors.Is(err, envelope.ErrTextWithQuery) {
		t.Fatalf("Validate() error = %v, want ErrTextWithQuery", err)
	}
}

func TestQueryRawSQLMatchesExecutedStatement(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"type":"analytics","visualization":{"chart_type":"table"},"raw_sql":"SELECT MAX(sales_amount) AS max_sale FROM retail_data.sales;"}`,
		`{"content":"The highest sale was 499.87."}`,
	}}
	wh := &fakeWarehouse{rows: []envelope.Row{{"max_sale": 499.87}}}

	got := newTestAgent(t, model, wh).Query(context.Background(), Request{Message: "highest sale"})

	assertWellFormed(t, got)
	if len(wh.queries) != 1 || wh.queries[0] != got.RawSQL {
		t.Fatalf("executed %v, raw_sql %q", wh.queries, got.RawSQL)
	}
	if strings.HasSuffix(got.RawSQL, ";") {
		t.Fatalf("RawSQL = %q", got.RawSQL)
	}
}

func TestQueryRecoversCollaboratorPanic(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"type":"analytics","visualization":{"chart_type":"table"},"raw_sql":"SELECT 1"}`}}
	got := newTestAgent(t, model, &fakeWarehouse{panicWith: "driver bug"}).Query(context.Background(), Request{Message: "x"})

	assertWellFormed(t, got)
	if got.Type != envelope.TypeText || !strings.Contains(got.Content, "driver bug") {
		t.Fatalf("envelope = %#v", got)
	}
}

func TestQueryInjectsSchemaHintAndMessage(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"type":"text"}`, `{"content":"ok"}`}}
	schema := &fakeSchema{hint: "The table schema for retail_data.sales is: region: STRING\n\n"}
	a, err := New(Dependencies{Model: model, Schema: schema, Warehouse: &fakeWarehouse{}, Dataset: dataset})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a.Query(context.Background(), Request{Message: "Good morning team"})

	if schema.datasetID != dataset {
		t.Fatalf("schema looked up %q", schema.datasetID)
	}
	first := model.calls[0]
	if len(first) != 1 || first[0].Role != llm.RoleUser || len(first[0].Parts) != 2 {
		t.Fatalf("first call contents = %#v", first)
	}
	instruction := first[0].Parts[0].Text
	if !strings.Contains(instruction, "region: STRING") || !strings.Contains(instruction, "dataset: retail_data.sales") {
		t.Fatalf("instruction = %q", instruction)
	}
	if strings.Contains(instruction, "Good morning team") {
		t.Fatal("user message leaked into the instruction part")
	}
	if first[0].Parts[1].Text != "Good morning team" {
		t.Fatalf("message part = %q", first[0].Parts[1].Text)
	}
}

func TestQueryIsSafeForConcurrentUse(t *testing.T) {
	a, err := New(Dependencies{Model: routingModel{}, Warehouse: &lockedWarehouse{}, Dataset: dataset})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	results := make([]envelope.Envelope, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			message := "Hello"
			if i%2 == 1 {
				message = fmt.Sprintf("table of region %d", i)
			}
			results[i] = a.Query(context.Background(), Request{Message: message})
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assertWellFormed(t, got)
		wantType := envelope.TypeText
		if i%2 == 1 {
			wantType = envelope.TypeAnalytics
		}
		if got.Type != wantType {
			t.Fatalf("results[%d].Type = %q, want %q", i, got.Type, wantType)
		}
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	cases := []Dependencies{
		{Warehouse: &fakeWarehouse{}, Dataset: dataset},
		{Model: &scriptedModel{}, Dataset: dataset},
		{Model: &scriptedModel{}, Warehouse: &fakeWarehouse{}, Dataset: " "},
	}
	for i, deps := range cases {
		if _, err := New(deps); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

// assertWellFormed checks the invariants every returned envelope must hold.
func assertWellFormed(t *testing.T, got envelope.Envelope) {
	t.Helper()
	if got.RawSQL == "" || got.Visualization.ChartType != envelope.ChartNone {
		if err := envelope.Validate(got); err != nil {
			t.Fatalf("Validate() error = %v for %#v", err, got)
		}
	}
	if got.Data == nil {
		t.Fatal("Data is nil")
	}
	body, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"type", "content", "visualization", "data", "raw_sql"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("marshalled envelope %s lacks %q", body, key)
		}
	}
}

func newTestAgent(t *testing.T, model llm.Model, wh *fakeWarehouse) *Agent {
	t.Helper()
	a, err := New(Dependencies{Model: model, Warehouse: wh, Dataset: dataset})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func joinedText(contents []llm.Content) string {
	var b strings.Builder
	for _, content := range contents {
		for _, part := range content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// scriptedModel replays replies and errors in call order.
type scriptedModel struct {
	replies []string
	errs    []error
	calls   [][]llm.Content
}

func (m *scriptedModel) Generate(_ context.Context, contents []llm.Content) (string, error) {
	i := len(m.calls)
	m.calls = append(m.calls, contents)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", nil
}

// routingModel answers by prompt stage so it can serve concurrent requests.
type routingModel struct{}

func (routingModel) Generate(_ context.Context, contents []llm.Content) (string, error) {
	text := joinedText(contents)
	switch {
	case strings.Contains(text, "Your first task") && strings.Contains(text, "table of region"):
		return `{"type":"analytics","visualization":{"chart_type":"table"},"raw_sql":"SELECT region FROM retail_data.sales"}`, nil
	case strings.Contains(text, "Your first task"):
		return `{"type":"text"}`, nil
	default:
		return `{"content":"done"}`, nil
	}
}

type fakeWarehouse struct {
	rows      []envelope.Row
	err       error
	panicWith string
	queries   []string
}

func (w *fakeWarehouse) Query(_ context.Context, sqlText string) ([]envelope.Row, error) {
	w.queries = append(w.queries, sqlText)
	if w.panicWith != "" {
		panic(w.panicWith)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.rows, nil
}

type lockedWarehouse struct {
	mu    sync.Mutex
	count int
}

func (w *lockedWarehouse) Query(context.Context, string) ([]envelope.Row, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	return []envelope.Row{{"region": "North"}}, nil
}

type fakeSchema struct {
	hint      string
	datasetID string
}

func (s *fakeSchema) Hint(_ context.Context, datasetID string) string {
	s.datasetID = datasetID
	return s.hint
}
