package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Any payment mode other than cash counts as online in analytics.
const PaymentModeCash = "cash"

const InvoicePrefix = "INV-"

// Money goes over the wire as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Name    string          `json:"name"`
	Barcode string          `json:"barcode"`
	Price   decimal.Decimal `json:"price"`
}

type ProductUpdateRequest struct {
	Name    *string          `json:"name,omitempty"`
	Barcode *string          `json:"barcode,omitempty"`
	Price   *decimal.Decimal `json:"price,omitempty"`
}

type BillItem struct {
	Name    string          `json:"name"`
	Qty     int64           `json:"qty"`
	Price   decimal.Decimal `json:"price"`
	Barcode string          `json:"barcode,omitempty"`
}

// Bill is immutable once persisted. Seq is the sequence value the
// BillNumber was derived from.
type Bill struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	BillNumber    string          `json:"billNumber"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	Items         []BillItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMode   string          `json:"paymentMode"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type BillCreateRequest struct {
	CustomerPhone string          `json:"customerPhone,omitempty"`
	Items         []BillItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMode   string          `json:"paymentMode"`
}

type BillCreateResponse struct {
	BillID     string `json:"billId"`
	BillNumber string `json:"billNumber"`
	Date       string `json:"date"`
}

type BillListResponse struct {
	Bills []Bill `json:"bills"`
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

type PaymentStats struct {
	Cash   decimal.Decimal `json:"cash"`
	Online decimal.Decimal `json:"online"`
}

type ChartSeries struct {
	Labels []string          `json:"labels"`
	Data   []decimal.Decimal `json:"data"`
}

type ProductQty struct {
	Name string `json:"name"`
	Qty  int64  `json:"qty"`
}

type AnalyticsSummary struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalOrders  int64           `json:"totalOrders"`
	PaymentStats PaymentStats    `json:"paymentStats"`
	Chart        ChartSeries     `json:"chart"`
	TopProducts  []ProductQty    `json:"topProducts"`
}

// DayTotal is revenue for one calendar day, Day being midnight in the
// location the aggregate was grouped in.
type DayTotal struct {
	Day   time.Time
	Total decimal.Decimal
}

// SalesAggregate is what a store computes natively over a bill window
// before it is shaped into an AnalyticsSummary.
type SalesAggregate struct {
	Orders      int64
	Revenue     decimal.Decimal
	Cash        decimal.Decimal
	Online      decimal.Decimal
	Days        []DayTotal
	TopProducts []ProductQty
}

type AggregateQuery struct {
	From     time.Time
	To       time.Time
	Location *time.Location
	TopN     int
}
