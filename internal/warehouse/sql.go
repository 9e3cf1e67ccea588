package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/viant/bigquery"

	"github.com/retaillens/retaillens/internal/envelope"
)

type Dialect string

const (
	DialectBigQuery Dialect = "bigquery"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(raw string) (Dialect, error) {
	switch dialect := Dialect(strings.ToLower(strings.TrimSpace(raw))); dialect {
	case DialectBigQuery, DialectDuckDB, DialectPostgres:
		return dialect, nil
	default:
		return "", fmt.Errorf("unsupported warehouse driver %q", raw)
	}
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return string(d)
}

// SQLWarehouse serves schema lookups and query execution over database/sql.
type SQLWarehouse struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
	cleanup      []func()
}

func New(db *sql.DB, dialect Dialect, queryTimeout time.Duration) *SQLWarehouse {
	return &SQLWarehouse{db: db, dialect: dialect, queryTimeout: queryTimeout}
}

func (w *SQLWarehouse) DB() *sql.DB {
	return w.db
}

func (w *SQLWarehouse) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

func (w *SQLWarehouse) Close() error {
	err := w.db.Close()
	for i := len(w.cleanup) - 1; i >= 0; i-- {
		w.cleanup[i]()
	}
	w.cleanup = nil
	return err
}

func (w *SQLWarehouse) Columns(ctx context.Context, dataset Dataset) ([]Column, error) {
	rows, err := w.db.QueryContext(ctx, columnsQuery(w.dialect, dataset))
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", dataset, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// columnsQuery inlines the identifiers; ParseDataset has already restricted
// them to identifier characters.
func columnsQuery(dialect Dialect, dataset Dataset) string {
	if dialect == DialectBigQuery {
		return fmt.Sprintf("SELECT column_name, data_type FROM `%s`.INFORMATION_SCHEMA.COLUMNS WHERE table_name = '%s' ORDER BY ordinal_position",
			dataset.Namespace, dataset.Table)
	}
	return fmt.Sprintf("SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = '%s' AND table_name = '%s' ORDER BY ordinal_position",
		dataset.Namespace, dataset.Table)
}

func (w *SQLWarehouse) Query(ctx context.Context, sqlText string) ([]envelope.Row, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}
	if !isAllowedSQL(sqlText) {
		return nil, fmt.Errorf("only read-only SELECT/WITH queries are allowed")
	}
	if w.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.queryTimeout)
		defer cancel()
	}

	rows, err := w.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	typeNames := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(typeNames) {
				typeNames[i] = columnType.DatabaseTypeName()
			}
		}
	}

	normalizer := valueNormalizer{dialect: w.dialect}
	result := make([]envelope.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(envelope.Row, len(columns))
		for i, column := range columns {
			row[column] = normalizer.normalize(values[i], typeNames[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
