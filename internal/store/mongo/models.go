package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
)

type productModel struct {
	ID        string          `bson:"_id"`
	Name      string          `bson:"name"`
	Barcode   string          `bson:"barcode"`
	Price     bson.Decimal128 `bson:"price"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type billItemModel struct {
	Name    string          `bson:"name"`
	Qty     int64           `bson:"qty"`
	Price   bson.Decimal128 `bson:"price"`
	Barcode string          `bson:"barcode,omitempty"`
}

// billModel embeds its line items; a bill is written once and never
// updated, so there is no separate items collection.
type billModel struct {
	ID            string          `bson:"_id"`
	Seq           int64           `bson:"seq"`
	BillNumber    string          `bson:"bill_number"`
	CustomerPhone string          `bson:"customer_phone,omitempty"`
	Items         []billItemModel `bson:"items"`
	Total         bson.Decimal128 `bson:"total"`
	PaymentMode   string          `bson:"payment_mode"`
	CreatedAt     time.Time       `bson:"created_at"`
}

type counterModel struct {
	ID    string `bson:"_id"`
	Base  int64  `bson:"base"`
	Value int64  `bson:"value"`
}

// toDecimal128 fails with a validation error when d has more significant
// digits than Decimal128 holds.
func toDecimal128(field string, d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, store.Invalid(field, "cannot be stored exactly")
	}
	return v, nil
}

func fromDecimal128(v bson.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v.String(), err)
	}
	return d, nil
}

func toProductModel(p domain.Product) (productModel, error) {
	price, err := toDecimal128("price", p.Price)
	if err != nil {
		return productModel{}, err
	}
	return productModel{
		ID:        p.ID,
		Name:      p.Name,
		Barcode:   p.Barcode,
		Price:     price,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func fromProductModel(m productModel) (domain.Product, error) {
	price, err := fromDecimal128(m.Price)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:        m.ID,
		Name:      m.Name,
		Barcode:   m.Barcode,
		Price:     price,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

func toBillModel(b domain.Bill) (billModel, error) {
	total, err := toDecimal128("total", b.Total)
	if err != nil {
		return billModel{}, err
	}
	items := make([]billItemModel, 0, len(b.Items))
	for _, item := range b.Items {
		price, err := toDecimal128("items.price", item.Price)
		if err != nil {
			return billModel{}, err
		}
		items = append(items, billItemModel{
			Name:    item.Name,
			Qty:     item.Qty,
			Price:   price,
			Barcode: item.Barcode,
		})
	}
	return billModel{
		ID:            b.ID,
		Seq:           b.Seq,
		BillNumber:    b.BillNumber,
		CustomerPhone: b.CustomerPhone,
		Items:         items,
		Total:         total,
		PaymentMode:   b.PaymentMode,
		CreatedAt:     b.CreatedAt,
	}, nil
}

func fromBillModel(m billModel) (domain.Bill, error) {
	total, err := fromDecimal128(m.Total)
	if err != nil {
		return domain.Bill{}, err
	}
	items := make([]domain.BillItem, 0, len(m.Items))
	for _, item := range m.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return domain.Bill{}, err
		}
		items = append(items, domain.BillItem{
			Name:    item.Name,
			Qty:     item.Qty,
			Price:   price,
			Barcode: item.Barcode,
		})
	}
	return domain.Bill{
		ID:            m.ID,
		Seq:           m.Seq,
		BillNumber:    m.BillNumber,
		CustomerPhone: m.CustomerPhone,
		Items:         items,
		Total:         total,
		PaymentMode:   m.PaymentMode,
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}
