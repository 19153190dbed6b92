package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.Unavailable("ping postgres", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("ping postgres", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, price, created_at, updated_at
		FROM products
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classify("scan product", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list products", err)
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.Barcode, product.Price, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, classify("barcode "+product.Barcode, err)
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.findProduct(ctx, "id", id)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.findProduct(ctx, "barcode", strings.TrimSpace(barcode))
}

func (s *Store) findProduct(ctx context.Context, column string, value string) (*domain.Product, error) {
	if column != "id" && column != "barcode" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var p domain.Product
	query := fmt.Sprintf(`
		SELECT id, name, barcode, price, created_at, updated_at
		FROM products
		WHERE %s = $1
	`, column)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, classify("get product", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	var updated domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, price = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, barcode, price, created_at, updated_at
	`, product.ID, product.Name, product.Barcode, product.Price).Scan(
		&updated.ID, &updated.Name, &updated.Barcode, &updated.Price, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if err != nil {
		return nil, classify("barcode "+product.Barcode, err)
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	updated.UpdatedAt = updated.UpdatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return classify("delete product", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify("delete product", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// NextSequence is a single upsert-increment so concurrent callers can
// never read the same value.
func (s *Store) NextSequence(ctx context.Context, name string, start int64) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name, start).Scan(&value)
	if err != nil {
		return 0, classify("next sequence "+name, err)
	}
	return value, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if err := store.ValidateBill(bill); err != nil {
		return nil, err
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin bill tx", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO bills (id, seq, bill_number, customer_phone, total, payment_mode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, bill.ID, bill.Seq, bill.BillNumber, nullIfEmpty(bill.CustomerPhone), bill.Total, bill.PaymentMode, bill.CreatedAt)
	if err != nil {
		return nil, classify("bill "+bill.BillNumber, err)
	}

	for i, item := range bill.Items {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO bill_items (bill_id, position, name, qty, price, barcode)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, bill.ID, i, item.Name, item.Qty, item.Price, nullIfEmpty(item.Barcode))
		if err != nil {
			return nil, classify("bill item", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, classify("commit bill", err)
	}

	created := cloneBill(bill)
	return &created, nil
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	bills, err := s.queryBills(ctx, `
		SELECT id, seq, bill_number, customer_phone, total, payment_mode, created_at
		FROM bills
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, store.ErrNotFound
	}
	return &bills[0], nil
}

func (s *Store) ListBills(ctx context.Context, since time.Time, limit int) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT id, seq, bill_number, customer_phone, total, payment_mode, created_at
		FROM bills
		WHERE created_at >= $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`, since, store.NormalizeLimit(limit))
}

func (s *Store) ListBillsInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	return s.queryBills(ctx, `
		SELECT id, seq, bill_number, customer_phone, total, payment_mode, created_at
		FROM bills
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at ASC, seq ASC
	`, from, to)
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query bills", err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	index := make(map[string]int)
	for rows.Next() {
		var b domain.Bill
		var phone sql.NullString
		if err := rows.Scan(&b.ID, &b.Seq, &b.BillNumber, &phone, &b.Total, &b.PaymentMode, &b.CreatedAt); err != nil {
			return nil, classify("scan bill", err)
		}
		if phone.Valid {
			b.CustomerPhone = phone.String
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.Items = make([]domain.BillItem, 0, 4)
		index[b.ID] = len(bills)
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query bills", err)
	}
	if len(bills) == 0 {
		return bills, nil
	}

	ids := make([]string, 0, len(bills))
	for _, b := range bills {
		ids = append(ids, b.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT bill_id, name, qty, price, barcode
		FROM bill_items
		WHERE bill_id = ANY($1)
		ORDER BY bill_id, position
	`, ids)
	if err != nil {
		return nil, classify("query bill items", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var billID string
		var item domain.BillItem
		var barcode sql.NullString
		if err := itemRows.Scan(&billID, &item.Name, &item.Qty, &item.Price, &barcode); err != nil {
			return nil, classify("scan bill item", err)
		}
		if barcode.Valid {
			item.Barcode = barcode.String
		}
		if idx, ok := index[billID]; ok {
			bills[idx].Items = append(bills[idx].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, classify("query bill items", err)
	}

	return bills, nil
}

// AggregateBills groups the window in SQL. Ties in product quantity go
// to the product whose first line item came earliest.
func (s *Store) AggregateBills(ctx context.Context, q domain.AggregateQuery) (domain.SalesAggregate, error) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	agg := domain.SalesAggregate{
		Days:        make([]domain.DayTotal, 0, 8),
		TopProducts: make([]domain.ProductQty, 0, q.TopN),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(total),0),
			COALESCE(SUM(CASE WHEN payment_mode = $3 THEN total ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN payment_mode = $3 THEN 0 ELSE total END),0)
		FROM bills
		WHERE created_at >= $1
			AND created_at < $2
	`, q.From, q.To, domain.PaymentModeCash).Scan(&agg.Orders, &agg.Revenue, &agg.Cash, &agg.Online)
	if err != nil {
		return agg, classify("aggregate totals", err)
	}

	dayRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day, SUM(total)
		FROM bills
		WHERE created_at >= $1
			AND created_at < $2
		GROUP BY day
		ORDER BY day
	`, q.From, q.To, loc.String())
	if err != nil {
		return agg, classify("aggregate days", err)
	}
	for dayRows.Next() {
		var raw string
		var total decimal.Decimal
		if err := dayRows.Scan(&raw, &total); err != nil {
			_ = dayRows.Close()
			return agg, classify("scan day total", err)
		}
		day, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			_ = dayRows.Close()
			return agg, fmt.Errorf("parse day %q: %w", raw, err)
		}
		agg.Days = append(agg.Days, domain.DayTotal{Day: day, Total: total})
	}
	if err := dayRows.Err(); err != nil {
		_ = dayRows.Close()
		return agg, classify("aggregate days", err)
	}
	_ = dayRows.Close()

	if q.TopN <= 0 {
		return agg, nil
	}
	topRows, err := s.db.QueryContext(ctx, `
		SELECT name, SUM(qty)::bigint AS qty
		FROM (
			SELECT bi.name, bi.qty,
				ROW_NUMBER() OVER (ORDER BY b.created_at, b.seq, bi.position) AS ord
			FROM bill_items bi
			JOIN bills b ON b.id = bi.bill_id
			WHERE b.created_at >= $1
				AND b.created_at < $2
		) lines
		GROUP BY name
		ORDER BY SUM(qty) DESC, MIN(ord) ASC
		LIMIT $3
	`, q.From, q.To, q.TopN)
	if err != nil {
		return agg, classify("aggregate top products", err)
	}
	for topRows.Next() {
		var row domain.ProductQty
		if err := topRows.Scan(&row.Name, &row.Qty); err != nil {
			_ = topRows.Close()
			return agg, classify("scan top product", err)
		}
		agg.TopProducts = append(agg.TopProducts, row)
	}
	if err := topRows.Err(); err != nil {
		_ = topRows.Close()
		return agg, classify("aggregate top products", err)
	}
	_ = topRows.Close()

	return agg, nil
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return store.Conflict(op)
	case isRejectedValue(err):
		return rejectedValue(err)
	case isUnavailable(err):
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isRejectedValue covers values the schema refuses: numeric overflow
// (22003) and CHECK constraints (23514).
func isRejectedValue(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22003" || pgErr.Code == "23514"
	}
	return false
}

func rejectedValue(err error) error {
	var pgErr *pgconn.PgError
	errors.As(err, &pgErr)
	field := pgErr.ColumnName
	if field == "" {
		field = "value"
		if pgErr.ConstraintName != "" {
			field = pgErr.ConstraintName
		}
	}
	return store.Invalid(field, pgErr.Message)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 53: insufficient resources, 57P0x: shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func cloneBill(src domain.Bill) domain.Bill {
	dup := src
	dup.Items = make([]domain.BillItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}
