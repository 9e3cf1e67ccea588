package warehouse

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"
)

const (
	isoDate          = "2006-01-02"
	isoLocalDateTime = "2006-01-02T15:04:05.999999"
)

type valueNormalizer struct {
	dialect Dialect
}

// normalize rounds floating point values to two decimals and renders
// temporal values as ISO-8601 strings; everything else passes through.
func (n valueNormalizer) normalize(value any, typeName string) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case float64:
		return roundCents(typed)
	case float32:
		return roundCents(float64(typed))
	case *big.Rat:
		if typed == nil {
			return nil
		}
		f, _ := typed.Float64()
		return roundCents(f)
	case time.Time:
		return n.formatTime(typed, typeName)
	case []byte:
		return string(typed)
	case interface{ Float64() float64 }:
		return roundCents(typed.Float64())
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = n.normalize(item, "")
		}
		return out
	default:
		return n.normalizeMap(typed)
	}
}

// normalizeMap turns driver maps such as DuckDB MAP values, whose keys are
// not strings, into string-keyed maps JSON can encode. Non-map values are
// returned unchanged.
func (n valueNormalizer) normalizeMap(value any) any {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return value
	}
	if rv.IsNil() {
		return nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = n.normalize(iter.Value().Interface(), "")
	}
	return out
}

func (n valueNormalizer) formatTime(value time.Time, typeName string) string {
	switch strings.ToUpper(strings.TrimSpace(typeName)) {
	case "DATE":
		return value.Format(isoDate)
	case "DATETIME", "TIMESTAMP WITHOUT TIME ZONE":
		return value.Format(isoLocalDateTime)
	case "TIMESTAMP":
		// BigQuery timestamps are absolute; elsewhere TIMESTAMP has no zone.
		if n.dialect != DialectBigQuery {
			return value.Format(isoLocalDateTime)
		}
	}
	return value.Format(time.RFC3339Nano)
}

// roundCents returns nil for NaN and infinities, which JSON cannot carry.
func roundCents(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return math.Round(value*100) / 100
}
