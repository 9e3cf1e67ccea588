package warehouse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/retaillens/retaillens/internal/envelope"
)

var ErrInvalidDataset = errors.New("invalid dataset identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,1023}$`)

// Dataset identifies the single table the system answers questions about.
type Dataset struct {
	Namespace string
	Table     string
}

func (d Dataset) String() string {
	return d.Namespace + "." + d.Table
}

func ParseDataset(id string) (Dataset, error) {
	parts := strings.Split(strings.TrimSpace(id), ".")
	if len(parts) != 2 {
		return Dataset{}, fmt.Errorf("%w: %q: expected <namespace>.<table>", ErrInvalidDataset, id)
	}
	for _, part := range parts {
		if !identPattern.MatchString(part) {
			return Dataset{}, fmt.Errorf("%w: %q", ErrInvalidDataset, id)
		}
	}
	return Dataset{Namespace: parts[0], Table: parts[1]}, nil
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaLookup interface {
	Columns(ctx context.Context, dataset Dataset) ([]Column, error)
}

// Querier runs a statement and returns its rows already normalized for the
// response envelope.
type Querier interface {
	Query(ctx context.Context, sqlText string) ([]envelope.Row, error)
}
