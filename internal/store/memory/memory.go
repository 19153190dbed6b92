package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/xid"
)

// Store keeps everything in process. Counters have their own mutex so a
// long analytics read never holds up invoice numbering.
type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	barcodes  map[string]string
	bills         []domain.Bill
	billsByID     map[string]int
	billsByNumber map[string]int

	seqMu    sync.Mutex
	counters map[string]int64
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		barcodes:      make(map[string]string),
		bills:         make([]domain.Bill, 0, 128),
		billsByID:     make(map[string]int),
		billsByNumber: make(map[string]int),
		counters:      make(map[string]int64),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []struct {
		name    string
		barcode string
		price   string
	}{
		{"Mie Goreng Instan", "8991001100011", "3500"},
		{"Telur 10 Butir", "8991001100028", "26500"},
		{"Susu UHT 1L", "8991001100035", "18900"},
		{"Roti Tawar", "8991001100042", "17800"},
		{"Kopi Sachet", "8991001100059", "2600"},
		{"Gula 1kg", "8991001100066", "17400"},
		{"Teh Celup", "8991001100073", "9800"},
		{"Air Mineral 600ml", "8991001100080", "3900"},
	}
	for i, item := range seed {
		p := domain.Product{
			ID:        xid.New("prd"),
			Name:      item.name,
			Barcode:   item.barcode,
			Price:     decimal.RequireFromString(item.price),
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
		p.UpdatedAt = p.CreatedAt
		s.products[p.ID] = p
		s.barcodes[p.Barcode] = p.ID
	}
	return s
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.barcodes[product.Barcode]; exists {
		return nil, store.Conflict("barcode " + product.Barcode)
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	s.products[product.ID] = product
	s.barcodes[product.Barcode] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.barcodes[strings.TrimSpace(barcode)]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := s.products[id]
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if owner, taken := s.barcodes[product.Barcode]; taken && owner != product.ID {
		return nil, store.Conflict("barcode " + product.Barcode)
	}

	delete(s.barcodes, existing.Barcode)
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	s.barcodes[product.Barcode] = product.ID
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	delete(s.barcodes, product.Barcode)
	return nil
}

func (s *Store) NextSequence(_ context.Context, name string, start int64) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	value, exists := s.counters[name]
	if !exists {
		value = start - 1
	}
	value++
	s.counters[name] = value
	return value, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	if err := store.ValidateBill(bill); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if _, exists := s.billsByID[bill.ID]; exists {
		return nil, store.Conflict("bill " + bill.ID)
	}
	if _, exists := s.billsByNumber[bill.BillNumber]; exists {
		return nil, store.Conflict("bill number " + bill.BillNumber)
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	stored := cloneBill(bill)
	s.billsByID[stored.ID] = len(s.bills)
	s.billsByNumber[stored.BillNumber] = len(s.bills)
	s.bills = append(s.bills, stored)
	created := cloneBill(stored)
	return &created, nil
}

func (s *Store) GetBill(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.billsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	bill := cloneBill(s.bills[idx])
	return &bill, nil
}

func (s *Store) ListBills(_ context.Context, since time.Time, limit int) ([]domain.Bill, error) {
	limit = store.NormalizeLimit(limit)

	s.mu.RLock()
	matched := make([]domain.Bill, 0, 32)
	for _, bill := range s.bills {
		if bill.CreatedAt.Before(since) {
			continue
		}
		matched = append(matched, cloneBill(bill))
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Bill) int {
		return compareBills(b, a)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) ListBillsInRange(_ context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	matched := make([]domain.Bill, 0, 64)
	for _, bill := range s.bills {
		if bill.CreatedAt.Before(from) || !bill.CreatedAt.Before(to) {
			continue
		}
		matched = append(matched, cloneBill(bill))
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, compareBills)
	return matched, nil
}

func compareBills(a domain.Bill, b domain.Bill) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneBill(src domain.Bill) domain.Bill {
	dup := src
	dup.Items = make([]domain.BillItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}
