package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/retaillens/retaillens/internal/envelope"
)

// ResponseSchema is the JSON schema of the response contract shown to the
// model in the analysis prompt. Only type is required.
const ResponseSchema = `{"type":"object","properties":{` +
	`"content":{"type":"string"},` +
	`"type":{"type":"string"},` +
	`"visualization":{"type":"object","properties":{"chart_type":{"type":"string"},"x_axis":{"type":"string"},"y_axis":{"type":"string"}}},` +
	`"data":{"type":"array","items":{"type":"object"}},` +
	`"raw_sql":{"type":"string"}},` +
	`"required":["type"]}`

func Analysis(dataset, schemaHint string) string {
	var b strings.Builder
	b.WriteString("You are a Retail Analytics AI. Your first task is to analyze the user's request. ")
	b.WriteString("If it's a general conversation, respond with only text. ")
	b.WriteString("If it requires data analysis, generate a SQL query and a visualization object.\n")
	fmt.Fprintf(&b, "Answer questions for dataset: %s.\n\n", dataset)
	b.WriteString(schemaHint)
	b.WriteString("Your response MUST match the required JSON schema and rules. Do not include the 'content' field in this response.\n")
	b.WriteString(ResponseSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. For general conversational questions (e.g., 'Hello', 'How are you?', 'Thank you', 'What can you do?', 'Wonderful'), " +
		"respond by setting 'type' to 'text' and by OMITTING 'raw_sql', 'data', and 'visualization'. " +
		"DO NOT generate SQL or visualization for these questions.\n")
	b.WriteString("2. If the user asks for a chart (e.g., 'bar chart', 'line chart', 'pie chart'), set 'type' to 'analytics' and populate the " +
		"'visualization' object with 'chart_type', 'x_axis' (the column for the x-axis or categories), and 'y_axis' (the column for the y-axis or values). " +
		"For example, for a bar chart of sales by region, set `visualization: {'chart_type': 'bar_chart', 'x_axis': 'region', 'y_axis': 'total_sales'}`.\n")
	b.WriteString("3. If the user asks for data in a 'table', 'tabular' format, or asks a question that results in a single row or value " +
		"(e.g., 'what is the highest...'), set 'type' to 'analytics' and 'visualization.chart_type' to 'table'.\n")
	b.WriteString("4. Always include the SQL query in `raw_sql` if a visualization is requested (i.e., when 'type' is 'analytics').\n")
	b.WriteString("5. When filtering by date in SQL, use direct comparisons like `transaction_date <= 'YYYY-MM-DD'` or " +
		"`EXTRACT(MONTH FROM transaction_date) = 6` if extracting date parts. Do NOT use column names as date part names " +
		"(e.g., `transaction_date` in `EXTRACT(transaction_date FROM transaction_date)` is incorrect).\n")
	fmt.Fprintf(&b, "6. All table names in SQL queries MUST be fully qualified with the dataset name (e.g., %s).\n", dataset)
	b.WriteString("Return ONLY valid JSON.")
	return b.String()
}

func DataSummary(message string, rows []envelope.Row) (string, error) {
	if rows == nil {
		rows = []envelope.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal query rows: %w", err)
	}
	return "You are a Retail Analytics AI. Your second task is to generate a concise, natural language summary of the provided data.\n" +
		"The user's original question was: " + message + "\n" +
		"The data is: " + string(data) + "\n" +
		"Based on the data, provide a short summary (1-2 sentences) in the 'content' field. " +
		"Your response must be a valid JSON with only the 'content' field.", nil
}

func Conversational(message string) string {
	return "You are a Retail Analytics AI assistant. The user asked a general conversational question:\n" +
		"User's question: " + message + "\n" +
		"Please provide a helpful and concise text response in the 'content' field. " +
		"Your response must be a valid JSON with only the 'content' field."
}
