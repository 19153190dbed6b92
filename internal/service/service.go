package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"tokobill/backend/internal/analytics"
	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/metrics"
	"tokobill/backend/internal/sequence"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/xid"
)

const DefaultListDays = 7

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readinessCheck struct {
	name   string
	pinger Pinger
}

type Service struct {
	repo      store.Repository
	sequence  *sequence.Generator
	analytics *analytics.Engine
	logger    *zap.Logger
	metrics   *metrics.Metrics
	listLimit int
	now       func() time.Time
	checks    []readinessCheck
}

func New(repo store.Repository, gen *sequence.Generator, engine *analytics.Engine, logger *zap.Logger, m *metrics.Metrics, listLimit int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if listLimit <= 0 {
		listLimit = store.DefaultBillLimit
	}

	return &Service{
		repo:      repo,
		sequence:  gen,
		analytics: engine,
		logger:    logger.Named("service"),
		metrics:   m,
		listLimit: listLimit,
		now:       time.Now,
		checks:    []readinessCheck{{name: "store", pinger: repo}},
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddReadinessCheck registers a dependency that must answer Ping before
// the service reports ready.
func (s *Service) AddReadinessCheck(name string, p Pinger) {
	s.checks = append(s.checks, readinessCheck{name: name, pinger: p})
}

func (s *Service) Ready(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check.pinger.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", check.name, err)
		}
	}
	return nil
}

// CreateBill validates the request before drawing a sequence value so a
// rejected request never consumes an invoice number.
func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (domain.BillCreateResponse, error) {
	req.PaymentMode = strings.TrimSpace(req.PaymentMode)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	items := req.Items
	if items == nil {
		items = []domain.BillItem{}
	}
	bill := domain.Bill{
		CustomerPhone: req.CustomerPhone,
		Items:         items,
		Total:         req.Total,
		PaymentMode:   req.PaymentMode,
	}
	if err := store.ValidateBillContent(bill); err != nil {
		return domain.BillCreateResponse{}, err
	}

	seq, err := s.sequence.Next(ctx)
	if err != nil {
		s.metrics.SequenceFailed()
		s.logger.Error("sequence generation failed", zap.String("counter", s.sequence.Name()), zap.Error(err))
		return domain.BillCreateResponse{}, err
	}

	bill.ID = xid.New("bill")
	bill.Seq = seq
	bill.BillNumber = sequence.FormatInvoiceNumber(seq)
	bill.CreatedAt = s.now().UTC()

	created, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		s.logger.Error("persist bill failed; invoice number skipped",
			zap.String("bill_number", bill.BillNumber),
			zap.Error(err),
		)
		return domain.BillCreateResponse{}, fmt.Errorf("create bill %s: %w", bill.BillNumber, err)
	}

	s.metrics.BillCreated()
	s.logger.Info("bill created",
		zap.String("bill_id", created.ID),
		zap.String("bill_number", created.BillNumber),
		zap.String("payment_mode", created.PaymentMode),
		zap.Stringer("total", created.Total),
		zap.Int("items", len(created.Items)),
	)

	return domain.BillCreateResponse{
		BillID:     created.ID,
		BillNumber: created.BillNumber,
		Date:       created.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListBills(ctx context.Context, days int, limit int) (domain.BillListResponse, error) {
	if days < 1 {
		days = DefaultListDays
	}
	if limit < 1 || limit > s.listLimit {
		limit = s.listLimit
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	bills, err := s.repo.ListBills(ctx, since, limit)
	if err != nil {
		return domain.BillListResponse{}, err
	}
	if bills == nil {
		bills = []domain.Bill{}
	}
	return domain.BillListResponse{
		Bills: bills,
		Since: since.Format(time.RFC3339),
		Limit: limit,
	}, nil
}

func (s *Service) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Bill{}, store.Invalid("id", "is required")
	}
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func (s *Service) Analytics(ctx context.Context) (domain.AnalyticsSummary, error) {
	return s.analytics.Summary(ctx)
}

// ExportAnalytics writes the current summary as an xlsx workbook.
func (s *Service) ExportAnalytics(ctx context.Context, w io.Writer) error {
	summary, err := s.analytics.Summary(ctx)
	if err != nil {
		return err
	}
	if err := analytics.WriteWorkbook(w, summary, s.now()); err != nil {
		return fmt.Errorf("write analytics workbook: %w", err)
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.Invalid("barcode", "is required")
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Name:      strings.TrimSpace(req.Name),
		Barcode:   strings.TrimSpace(req.Barcode),
		Price:     req.Price,
		CreatedAt: s.now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", created.ID), zap.String("barcode", created.Barcode))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}
