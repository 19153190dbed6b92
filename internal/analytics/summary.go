package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
)

// Summarize folds bills into a summary for w. It is pure: the same bills
// and window always give the same result.
func Summarize(bills []domain.Bill, w Window) domain.AnalyticsSummary {
	acc := newAccumulator(w)
	for _, bill := range bills {
		acc.addBill(bill)
	}
	return acc.summary()
}

// FromAggregate shapes a store-computed aggregate into the same summary
// Summarize would produce for the underlying bills.
func FromAggregate(agg domain.SalesAggregate, w Window) domain.AnalyticsSummary {
	acc := newAccumulator(w)
	acc.orders = agg.Orders
	acc.revenue = agg.Revenue
	acc.cash = agg.Cash
	acc.online = agg.Online
	for _, day := range agg.Days {
		acc.addToDay(DayLabel(day.Day, w.Location), day.Total)
	}
	for _, p := range agg.TopProducts {
		acc.addQty(p.Name, p.Qty)
	}
	return acc.summary()
}

type accumulator struct {
	window  Window
	orders  int64
	revenue decimal.Decimal
	cash    decimal.Decimal
	online  decimal.Decimal

	labels   []string
	dayIndex map[string]int
	dayTotal []decimal.Decimal

	qtyByName map[string]int64
	nameOrder []string
}

func newAccumulator(w Window) *accumulator {
	labels := w.Labels()
	index := make(map[string]int, len(labels))
	totals := make([]decimal.Decimal, len(labels))
	for i, label := range labels {
		index[label] = i
		totals[i] = decimal.Zero
	}
	return &accumulator{
		window:    w,
		revenue:   decimal.Zero,
		cash:      decimal.Zero,
		online:    decimal.Zero,
		labels:    labels,
		dayIndex:  index,
		dayTotal:  totals,
		qtyByName: make(map[string]int64),
	}
}

func (a *accumulator) addBill(bill domain.Bill) {
	a.orders++
	a.revenue = a.revenue.Add(bill.Total)

	// Every mode other than cash is reported as online.
	if bill.PaymentMode == domain.PaymentModeCash {
		a.cash = a.cash.Add(bill.Total)
	} else {
		a.online = a.online.Add(bill.Total)
	}

	a.addToDay(DayLabel(bill.CreatedAt, a.window.Location), bill.Total)

	for _, item := range bill.Items {
		a.addQty(item.Name, item.Qty)
	}
}

func (a *accumulator) addToDay(label string, total decimal.Decimal) {
	idx, ok := a.dayIndex[label]
	if !ok {
		return
	}
	a.dayTotal[idx] = a.dayTotal[idx].Add(total)
}

func (a *accumulator) addQty(name string, qty int64) {
	if _, seen := a.qtyByName[name]; !seen {
		a.nameOrder = append(a.nameOrder, name)
	}
	a.qtyByName[name] += qty
}

func (a *accumulator) summary() domain.AnalyticsSummary {
	ranked := make([]domain.ProductQty, 0, len(a.nameOrder))
	for _, name := range a.nameOrder {
		ranked = append(ranked, domain.ProductQty{Name: name, Qty: a.qtyByName[name]})
	}
	slices.SortStableFunc(ranked, func(x, y domain.ProductQty) int {
		switch {
		case x.Qty > y.Qty:
			return -1
		case x.Qty < y.Qty:
			return 1
		}
		return 0
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}

	return domain.AnalyticsSummary{
		TotalRevenue: a.revenue,
		TotalOrders:  a.orders,
		PaymentStats: domain.PaymentStats{Cash: a.cash, Online: a.online},
		Chart: domain.ChartSeries{
			Labels: a.labels,
			Data:   a.dayTotal,
		},
		TopProducts: ranked,
	}
}
