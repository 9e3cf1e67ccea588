package retaillensctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("retaillensctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "RetailLens API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	format := fs.String("format", "json", "output format for ask: json or text")
	traceID := fs.String("trace-id", "", "X-Trace-ID to send with the request")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *format != "json" && *format != "text" {
		_, _ = fmt.Fprintf(stderr, "invalid -format %q\n", *format)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	var (
		method = http.MethodGet
		path   string
		body   []byte
	)
	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		path = "/v1/health"
	case "ready":
		path = "/v1/ready"
	case "schema":
		path = "/v1/schema"
	case "ask":
		message := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if message == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a message")
			return 2
		}
		method, path = http.MethodPost, "/v1/query"
		body, _ = json.Marshal(map[string]string{"message": message})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body, *traceID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" && *format == "text" {
		if err := writeAnswer(stdout, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "decode answer: %v\n", err)
			return 1
		}
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte, traceID string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID = strings.TrimSpace(traceID); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

type answer struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	Visualization struct {
		ChartType string `json:"chart_type"`
		XAxis     string `json:"x_axis"`
		YAxis     string `json:"y_axis"`
	} `json:"visualization"`
	Data   []map[string]any `json:"data"`
	RawSQL string           `json:"raw_sql"`
}

// writeAnswer prints the answer text, then the SQL and rows for analytics
// answers as an aligned table.
func writeAnswer(w io.Writer, raw []byte) error {
	var a answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, a.Content)
	if a.Type != "analytics" {
		return nil
	}
	_, _ = fmt.Fprintf(w, "\nchart: %s", a.Visualization.ChartType)
	if a.Visualization.XAxis != "" || a.Visualization.YAxis != "" {
		_, _ = fmt.Fprintf(w, " (x=%s, y=%s)", a.Visualization.XAxis, a.Visualization.YAxis)
	}
	_, _ = fmt.Fprintf(w, "\nsql: %s\n\n", a.RawSQL)
	if len(a.Data) == 0 {
		_, _ = fmt.Fprintln(w, "(no rows)")
		return nil
	}

	columns := make([]string, 0, len(a.Data[0]))
	for column := range a.Data[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range a.Data {
		cells := make([]string, len(columns))
		for i, column := range columns {
			cells[i] = fmt.Sprint(row[column])
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: retaillensctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  ask <message>    POST /v1/query")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
