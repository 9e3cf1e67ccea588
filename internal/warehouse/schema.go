package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var errNoColumns = errors.New("table has no columns")

// Introspector renders the schema hint for the analysis prompt. Lookup
// failures are logged and degrade to an empty hint.
type Introspector struct {
	Lookup SchemaLookup
	Logger *slog.Logger
}

func (i *Introspector) Hint(ctx context.Context, datasetID string) string {
	if i == nil || i.Lookup == nil {
		return ""
	}
	dataset, err := ParseDataset(datasetID)
	if err != nil {
		i.warn(ctx, datasetID, err)
		return ""
	}
	columns, err := i.Lookup.Columns(ctx, dataset)
	if err != nil {
		i.warn(ctx, datasetID, err)
		return ""
	}
	if len(columns) == 0 {
		i.warn(ctx, datasetID, errNoColumns)
		return ""
	}
	return SchemaHint(datasetID, columns)
}

func (i *Introspector) warn(ctx context.Context, datasetID string, err error) {
	if i.Logger == nil {
		return
	}
	i.Logger.WarnContext(ctx, "schema lookup failed",
		slog.String("dataset", datasetID),
		slog.Any("error", err),
	)
}

func SchemaHint(datasetID string, columns []Column) string {
	if len(columns) == 0 {
		return ""
	}
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, column.Name+": "+column.Type)
	}
	return fmt.Sprintf("The table schema for %s is: %s\n\n", datasetID, strings.Join(parts, ", "))
}

// CachedSchemaLookup memoizes successful, non-empty column lookups for ttl.
type CachedSchemaLookup struct {
	next  SchemaLookup
	cache *expirable.LRU[string, []Column]
}

func NewCachedSchemaLookup(next SchemaLookup, size int, ttl time.Duration) *CachedSchemaLookup {
	if size <= 0 {
		size = 16
	}
	return &CachedSchemaLookup{
		next:  next,
		cache: expirable.NewLRU[string, []Column](size, nil, ttl),
	}
}

func (c *CachedSchemaLookup) Columns(ctx context.Context, dataset Dataset) ([]Column, error) {
	key := dataset.String()
	if columns, ok := c.cache.Get(key); ok {
		return append([]Column(nil), columns...), nil
	}
	columns, err := c.next.Columns(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		c.cache.Add(key, append([]Column(nil), columns...))
	}
	return columns, nil
}
