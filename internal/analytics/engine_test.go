package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/metrics"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/store/memory"
)

type aggregatingSource struct {
	agg   domain.SalesAggregate
	err   error
	calls int
	query domain.AggregateQuery
}

func (s *aggregatingSource) ListBillsInRange(context.Context, time.Time, time.Time) ([]domain.Bill, error) {
	return nil, errors.New("fold should not be used")
}

func (s *aggregatingSource) AggregateBills(_ context.Context, q domain.AggregateQuery) (domain.SalesAggregate, error) {
	s.calls++
	s.query = q
	return s.agg, s.err
}

func seedBills(t *testing.T, repo *memory.Store) {
	t.Helper()
	ctx := context.Background()
	bills := []domain.Bill{
		{Seq: 1, BillNumber: "INV-1", Total: dec(100), PaymentMode: "cash", CreatedAt: fixedNow.Add(-time.Hour), Items: []domain.BillItem{{Name: "A", Qty: 2}}},
		{Seq: 2, BillNumber: "INV-2", Total: dec(50), PaymentMode: "upi", CreatedAt: fixedNow.Add(-30 * time.Minute), Items: []domain.BillItem{{Name: "A", Qty: 1}, {Name: "B", Qty: 5}}},
		// Outside the window entirely.
		{Seq: 3, BillNumber: "INV-3", Total: dec(999), PaymentMode: "cash", CreatedAt: fixedNow.AddDate(0, 0, -9), Items: []domain.BillItem{{Name: "Z", Qty: 50}}},
	}
	for _, b := range bills {
		_, err := repo.CreateBill(ctx, b)
		require.NoError(t, err)
	}
}

func TestEngineFoldsWhenStoreHasNoAggregation(t *testing.T) {
	repo := memory.New()
	seedBills(t, repo)

	engine := NewEngine(repo, StrategyNative, time.UTC, nil, metrics.New()).WithClock(func() time.Time { return fixedNow })
	assert.Equal(t, StrategyMemory, engine.Strategy())

	summary, err := engine.Summary(context.Background())
	require.NoError(t, err)
	assertDecimal(t, 150, summary.TotalRevenue)
	assert.Equal(t, int64(2), summary.TotalOrders)
	assert.Equal(t, []domain.ProductQty{{Name: "B", Qty: 5}, {Name: "A", Qty: 3}}, summary.TopProducts)
}

func TestEngineReadsAreIdempotent(t *testing.T) {
	repo := memory.New()
	seedBills(t, repo)
	engine := NewEngine(repo, StrategyMemory, time.UTC, nil, nil).WithClock(func() time.Time { return fixedNow })

	first, err := engine.Summary(context.Background())
	require.NoError(t, err)
	second, err := engine.Summary(context.Background())
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
}

func TestEngineUsesNativeAggregation(t *testing.T) {
	src := &aggregatingSource{agg: domain.SalesAggregate{
		Orders:      1,
		Revenue:     dec(20),
		Online:      dec(20),
		Days:        []domain.DayTotal{{Day: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Total: dec(20)}},
		TopProducts: []domain.ProductQty{{Name: "Teh", Qty: 4}},
	}}
	engine := NewEngine(src, StrategyNative, time.UTC, nil, nil).WithClock(func() time.Time { return fixedNow })
	require.Equal(t, StrategyNative, engine.Strategy())

	summary, err := engine.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, TopN, src.query.TopN)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), src.query.From)
	assertDecimal(t, 20, summary.Chart.Data[5])
	assert.Equal(t, "9/3", summary.Chart.Labels[5])
}

func TestEngineMemoryStrategyIgnoresAggregator(t *testing.T) {
	src := &aggregatingSource{}
	engine := NewEngine(src, StrategyMemory, time.UTC, nil, nil)
	assert.Equal(t, StrategyMemory, engine.Strategy())
}

func TestEngineSurfacesStoreFailure(t *testing.T) {
	src := &aggregatingSource{err: store.Unavailable("aggregate", errors.New("socket closed"))}
	engine := NewEngine(src, StrategyNative, time.UTC, nil, nil)

	_, err := engine.Summary(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestWriteWorkbook(t *testing.T) {
	bills := []domain.Bill{
		{Total: dec(100), PaymentMode: "cash", CreatedAt: fixedNow, Items: []domain.BillItem{{Name: "A", Qty: 2}}},
	}
	summary := Summarize(bills, NewWindow(fixedNow, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, summary, fixedNow))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetDaily, sheetTop}, f.GetSheetList())

	daily, err := f.GetRows(sheetDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1+ChartDays)
	assert.Equal(t, []string{"10/3", "100"}, daily[ChartDays])

	top, err := f.GetRows(sheetTop)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, []string{"1", "A", "2"}, top[1])

	orders, err := f.GetCellValue(sheetSummary, "B4")
	require.NoError(t, err)
	assert.Equal(t, "1", orders)
}
