package store

import (
	"context"
	"time"

	"tokobill/backend/internal/domain"
)

// DefaultBillLimit caps ListBills when the caller passes no limit.
const DefaultBillLimit = 100

type Repository interface {
	Ping(ctx context.Context) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// NextSequence atomically advances the named counter and returns the
	// new value. The counter is created on first use so that the first
	// value issued equals start.
	NextSequence(ctx context.Context, name string, start int64) (int64, error)

	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	// ListBills returns bills created at or after since, newest first.
	ListBills(ctx context.Context, since time.Time, limit int) ([]domain.Bill, error)
	// ListBillsInRange returns bills in [from, to) ordered by creation
	// time then sequence.
	ListBillsInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error)
}

// Aggregator is implemented by stores that can summarize a bill window
// without shipping every bill to the caller.
type Aggregator interface {
	AggregateBills(ctx context.Context, q domain.AggregateQuery) (domain.SalesAggregate, error)
}

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultBillLimit*10 {
		return DefaultBillLimit
	}
	return limit
}
