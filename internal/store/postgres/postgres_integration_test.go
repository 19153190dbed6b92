package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestNextSequenceIsUniqueUnderConcurrency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("it_seq_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM counters WHERE name = $1`, name)
	})

	const workers = 50
	var wg sync.WaitGroup
	values := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextSequence(ctx, name, 1)
			if err != nil {
				t.Errorf("next sequence: %v", err)
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool, workers)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		seen[v] = true
	}
	for v := int64(1); v <= workers; v++ {
		if !seen[v] {
			t.Fatalf("missing sequence value %d", v)
		}
	}
}

func TestBillRoundTripAndAggregate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	base := time.Date(2031, 1, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(stamp%1000) * time.Millisecond)

	bills := []domain.Bill{
		{
			ID: fmt.Sprintf("bill-it-a-%d", stamp), Seq: 1, BillNumber: fmt.Sprintf("INV-IT-A-%d", stamp),
			Total: decimal.NewFromInt(100), PaymentMode: domain.PaymentModeCash, CreatedAt: base,
			Items: []domain.BillItem{{Name: "A", Qty: 2, Price: decimal.NewFromInt(50)}},
		},
		{
			ID: fmt.Sprintf("bill-it-b-%d", stamp), Seq: 2, BillNumber: fmt.Sprintf("INV-IT-B-%d", stamp),
			CustomerPhone: "0812", Total: decimal.NewFromInt(50), PaymentMode: "qris", CreatedAt: base.Add(time.Hour),
			Items: []domain.BillItem{{Name: "A", Qty: 1}, {Name: "B", Qty: 5}},
		},
	}
	t.Cleanup(func() {
		for _, b := range bills {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, b.ID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, b.ID)
		}
	})

	for _, b := range bills {
		if _, err := s.CreateBill(ctx, b); err != nil {
			t.Fatalf("create bill: %v", err)
		}
	}
	if _, err := s.CreateBill(ctx, bills[0]); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate bill, got %v", err)
	}

	got, err := s.GetBill(ctx, bills[1].ID)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if got.CustomerPhone != "0812" || len(got.Items) != 2 || got.Items[1].Name != "B" {
		t.Fatalf("unexpected bill %+v", got)
	}

	from := base.Add(-time.Minute)
	to := base.Add(2 * time.Hour)
	ranged, err := s.ListBillsInRange(ctx, from, to)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(ranged) != 2 || ranged[0].ID != bills[0].ID {
		t.Fatalf("expected ascending range, got %d bills", len(ranged))
	}

	agg, err := s.AggregateBills(ctx, domain.AggregateQuery{From: from, To: to, Location: time.UTC, TopN: 5})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Orders != 2 || !agg.Revenue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected totals %+v", agg)
	}
	if !agg.Cash.Equal(decimal.NewFromInt(100)) || !agg.Online.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected split cash=%s online=%s", agg.Cash, agg.Online)
	}
	if len(agg.TopProducts) != 2 || agg.TopProducts[0].Name != "B" || agg.TopProducts[1].Qty != 3 {
		t.Fatalf("unexpected top products %+v", agg.TopProducts)
	}
	if len(agg.Days) != 1 || !agg.Days[0].Total.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected day totals %+v", agg.Days)
	}
}

func TestGetBillNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetBill(context.Background(), "bill-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
