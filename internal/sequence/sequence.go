package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tokobill/backend/internal/domain"
)

const DefaultName = "bill_seq"

var ErrInvalidInvoiceNumber = errors.New("invalid invoice number")

// Counter is an atomic fetch-and-increment keyed by name. Implementations
// must create the counter on first use so that the first value returned
// equals start.
type Counter interface {
	NextSequence(ctx context.Context, name string, start int64) (int64, error)
}

type Generator struct {
	counter Counter
	name    string
	start   int64
}

func NewGenerator(counter Counter, name string, start int64) *Generator {
	if name == "" {
		name = DefaultName
	}
	if start < 1 {
		start = 1
	}
	return &Generator{counter: counter, name: name, start: start}
}

func (g *Generator) Name() string {
	return g.name
}

// Next returns a value no other caller has observed. A value whose bill
// later fails to persist is skipped, never reissued.
func (g *Generator) Next(ctx context.Context) (int64, error) {
	value, err := g.counter.NextSequence(ctx, g.name, g.start)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", g.name, err)
	}
	return value, nil
}

func FormatInvoiceNumber(seq int64) string {
	return domain.InvoicePrefix + strconv.FormatInt(seq, 10)
}

func ParseInvoiceNumber(billNumber string) (int64, error) {
	raw, ok := strings.CutPrefix(billNumber, domain.InvoicePrefix)
	if !ok || raw == "" {
		return 0, ErrInvalidInvoiceNumber
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 1 || strconv.FormatInt(seq, 10) != raw {
		return 0, ErrInvalidInvoiceNumber
	}
	return seq, nil
}
