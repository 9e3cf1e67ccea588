package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	categories = []string{"Electronics", "Apparel", "Home Goods", "Books", "Outdoor"}
	regions    = []string{"North", "South", "East", "West"}
)

// Sale is one row of the sample retail table.
type Sale struct {
	TransactionDate int32   `parquet:"transaction_date,date"`
	CustomerID      string  `parquet:"customer_id"`
	ProductID       string  `parquet:"product_id"`
	ProductCategory string  `parquet:"product_category"`
	SalesAmount     float64 `parquet:"sales_amount"`
	Quantity        int64   `parquet:"quantity"`
	Region          string  `parquet:"region"`
}

// Date returns the transaction date as midnight UTC.
func (s Sale) Date() time.Time {
	return time.Unix(int64(s.TransactionDate)*86400, 0).UTC()
}

type Generator struct {
	rnd  *rand.Rand
	year int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:  rand.New(rand.NewSource(seed)),
		year: 2024,
	}
}

func (g *Generator) Next() Sale {
	month := time.Month(g.rnd.Intn(12) + 1)
	day := g.rnd.Intn(28) + 1
	date := time.Date(g.year, month, day, 0, 0, 0, 0, time.UTC)

	return Sale{
		TransactionDate: int32(date.Unix() / 86400),
		CustomerID:      fmt.Sprintf("CUST%04d", 1000+g.rnd.Intn(9000)),
		ProductID:       fmt.Sprintf("PROD%03d", 100+g.rnd.Intn(900)),
		ProductCategory: pickOne(g.rnd, categories),
		SalesAmount:     round2(5 + g.rnd.Float64()*495),
		Quantity:        int64(g.rnd.Intn(5) + 1),
		Region:          pickOne(g.rnd, regions),
	}
}

func (g *Generator) Generate(n int) []Sale {
	if n <= 0 {
		return nil
	}
	rows := make([]Sale, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, g.Next())
	}
	return rows
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
