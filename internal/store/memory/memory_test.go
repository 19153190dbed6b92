package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
)

func newBill(seq int64, at time.Time) domain.Bill {
	return domain.Bill{
		Seq:         seq,
		BillNumber:  "INV-" + decimal.NewFromInt(seq).String(),
		Items:       []domain.BillItem{{Name: "Kopi Sachet", Qty: 1}},
		Total:       decimal.NewFromInt(2600),
		PaymentMode: domain.PaymentModeCash,
		CreatedAt:   at,
	}
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.Product{Name: "Mie Kuah", Barcode: "8991001100011", Price: decimal.NewFromInt(3000)})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateProductMovesBarcode(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.CreateProduct(ctx, domain.Product{Name: "A", Barcode: "111", Price: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateProduct(ctx, domain.Product{Name: "B", Barcode: "222", Price: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	b.Barcode = "111"
	if _, err := s.UpdateProduct(ctx, *b); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict when taking a's barcode, got %v", err)
	}

	a.Barcode = "333"
	if _, err := s.UpdateProduct(ctx, *a); err != nil {
		t.Fatalf("update a: %v", err)
	}
	if _, err := s.GetProductByBarcode(ctx, "111"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected old barcode to be released, got %v", err)
	}
	b.Barcode = "111"
	if _, err := s.UpdateProduct(ctx, *b); err != nil {
		t.Fatalf("expected released barcode to be reusable, got %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	s := New()
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.Product{Name: "A", Barcode: "111", Price: decimal.Zero})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteProduct(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestNextSequenceStartsAtConfiguredValue(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.NextSequence(ctx, "bill_seq", 1000)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, _ := s.NextSequence(ctx, "bill_seq", 1000)
	if first != 1000 || second != 1001 {
		t.Fatalf("expected 1000 then 1001, got %d then %d", first, second)
	}

	other, _ := s.NextSequence(ctx, "other_seq", 1)
	if other != 1 {
		t.Fatalf("expected independent counter to start at 1, got %d", other)
	}
}

func TestNextSequenceConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 200
	values := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextSequence(ctx, "bill_seq", 1)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool, n)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d values, got %d", n, len(seen))
	}
}

func TestCreateBillValidates(t *testing.T) {
	s := New()
	ctx := context.Background()

	bill := newBill(1, time.Now().UTC())
	bill.Total = decimal.NewFromInt(-5)
	if _, err := s.CreateBill(ctx, bill); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bill = newBill(1, time.Now().UTC())
	bill.PaymentMode = ""
	if _, err := s.CreateBill(ctx, bill); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for missing payment mode, got %v", err)
	}
}

func TestCreateBillReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateBill(ctx, newBill(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created.Items[0].Name = "tampered"

	got, err := s.GetBill(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Items[0].Name != "Kopi Sachet" {
		t.Fatalf("expected stored bill to be unaffected, got %q", got.Items[0].Name)
	}

	if _, err := s.CreateBill(ctx, newBill(1, time.Now().UTC())); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate bill number to conflict, got %v", err)
	}
}

func TestCreateBillRejectsReusedNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for seq := int64(1); seq <= 500; seq++ {
		if _, err := s.CreateBill(ctx, newBill(seq, base.Add(time.Duration(seq)*time.Second))); err != nil {
			t.Fatalf("create %d: %v", seq, err)
		}
	}

	dup := newBill(3, base)
	dup.ID = "bill-other"
	if _, err := s.CreateBill(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected INV-3 to conflict, got %v", err)
	}
	if _, err := s.GetBill(ctx, "bill-other"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected bill must not be stored, got %v", err)
	}
	if _, err := s.CreateBill(ctx, newBill(501, base)); err != nil {
		t.Fatalf("fresh number should be accepted: %v", err)
	}
}

func TestListBillsOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 5; i++ {
		if _, err := s.CreateBill(ctx, newBill(i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	recent, err := s.ListBills(ctx, base.Add(2*time.Hour), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].Seq != 5 || recent[1].Seq != 4 {
		t.Fatalf("expected seq 5,4 newest first, got %+v", recent)
	}

	ranged, err := s.ListBillsInRange(ctx, base.Add(2*time.Hour), base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(ranged) != 2 || ranged[0].Seq != 2 || ranged[1].Seq != 3 {
		t.Fatalf("expected seq 2,3 ascending with exclusive upper bound, got %+v", ranged)
	}
}
