package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/xid"
)

const (
	colProducts = "products"
	colBills    = "bills"
	colCounters = "counters"
)

var (
	_ store.Repository = (*Store)(nil)
	_ store.Aggregator = (*Store)(nil)
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.Unavailable("ping mongo", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Migrate creates the indexes the store relies on for uniqueness and
// window scans.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return classify("migrate "+col+" indexes", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return store.Unavailable("ping mongo", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cur, err := s.db.Collection(colProducts).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify("list products", err)
	}
	var models []productModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, classify("list products", err)
	}

	products := make([]domain.Product, 0, len(models))
	for _, m := range models {
		p, err := fromProductModel(m)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
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
		product.CreatedAt = now()
	}
	product.UpdatedAt = product.CreatedAt

	m, err := toProductModel(product)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(colProducts).InsertOne(ctx, m); err != nil {
		return nil, classify("barcode "+product.Barcode, err)
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.findProduct(ctx, bson.M{"_id": id})
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.findProduct(ctx, bson.M{"barcode": strings.TrimSpace(barcode)})
}

func (s *Store) findProduct(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var m productModel
	if err := s.db.Collection(colProducts).FindOne(ctx, filter).Decode(&m); err != nil {
		return nil, classify("get product", err)
	}
	p, err := fromProductModel(m)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	price, err := toDecimal128("price", product.Price)
	if err != nil {
		return nil, err
	}

	var m productModel
	err = s.db.Collection(colProducts).FindOneAndUpdate(ctx,
		bson.M{"_id": product.ID},
		bson.M{"$set": bson.M{
			"name":       product.Name,
			"barcode":    product.Barcode,
			"price":      price,
			"updated_at": now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, classify("barcode "+product.Barcode, err)
	}
	updated, err := fromProductModel(m)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.Collection(colProducts).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify("delete product", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// NextSequence increments the named counter in one findAndModify. The
// first upsert records base = start-1 so the issued value is base+value.
func (s *Store) NextSequence(ctx context.Context, name string, start int64) (int64, error) {
	coll := s.db.Collection(colCounters)
	update := bson.M{
		"$inc":         bson.M{"value": int64(1)},
		"$setOnInsert": bson.M{"base": start - 1},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterModel
	err := coll.FindOneAndUpdate(ctx, bson.M{"_id": name}, update, opts).Decode(&counter)
	if mongo.IsDuplicateKeyError(err) {
		// Two first-time upserts raced; the loser retries against the
		// document the winner created.
		err = coll.FindOneAndUpdate(ctx, bson.M{"_id": name}, update, opts).Decode(&counter)
	}
	if err != nil {
		return 0, classify("next sequence "+name, err)
	}
	return counter.Base + counter.Value, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if err := store.ValidateBill(bill); err != nil {
		return nil, err
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now()
	}

	m, err := toBillModel(bill)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(colBills).InsertOne(ctx, m); err != nil {
		return nil, classify("bill "+bill.BillNumber, err)
	}

	created, err := fromBillModel(m)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	var m billModel
	if err := s.db.Collection(colBills).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, classify("get bill", err)
	}
	b, err := fromBillModel(m)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBills(ctx context.Context, since time.Time, limit int) ([]domain.Bill, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))
	return s.findBills(ctx, bson.M{"created_at": bson.M{"$gte": since}}, opts)
}

func (s *Store) ListBillsInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}})
	return s.findBills(ctx, windowFilter(from, to), opts)
}

func (s *Store) findBills(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.Bill, error) {
	cur, err := s.db.Collection(colBills).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify("query bills", err)
	}
	var models []billModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, classify("query bills", err)
	}

	bills := make([]domain.Bill, 0, len(models))
	for _, m := range models {
		b, err := fromBillModel(m)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

type totalsRow struct {
	Orders  int64           `bson:"orders"`
	Revenue bson.Decimal128 `bson:"revenue"`
	Cash    bson.Decimal128 `bson:"cash"`
	Online  bson.Decimal128 `bson:"online"`
}

type dayRow struct {
	Day   string          `bson:"_id"`
	Total bson.Decimal128 `bson:"total"`
}

type productRow struct {
	Name string `bson:"_id"`
	Qty  int64  `bson:"qty"`
}

// AggregateBills runs three pipelines over the window. Ties in product
// quantity go to the product whose first line item came earliest.
func (s *Store) AggregateBills(ctx context.Context, q domain.AggregateQuery) (domain.SalesAggregate, error) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	agg := domain.SalesAggregate{
		Days:        make([]domain.DayTotal, 0, 8),
		TopProducts: make([]domain.ProductQty, 0, q.TopN),
	}
	zero, _ := bson.ParseDecimal128("0")
	match := bson.D{{Key: "$match", Value: windowFilter(q.From, q.To)}}
	isCash := bson.M{"$eq": bson.A{"$payment_mode", domain.PaymentModeCash}}

	var totals []totalsRow
	err := s.aggregate(ctx, "aggregate totals", mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"orders":  bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": "$total"},
			"cash":    bson.M{"$sum": bson.M{"$cond": bson.A{isCash, "$total", zero}}},
			"online":  bson.M{"$sum": bson.M{"$cond": bson.A{isCash, zero, "$total"}}},
		}}},
	}, &totals)
	if err != nil {
		return agg, err
	}
	if len(totals) > 0 {
		row := totals[0]
		agg.Orders = row.Orders
		if agg.Revenue, err = fromDecimal128(row.Revenue); err != nil {
			return agg, err
		}
		if agg.Cash, err = fromDecimal128(row.Cash); err != nil {
			return agg, err
		}
		if agg.Online, err = fromDecimal128(row.Online); err != nil {
			return agg, err
		}
	}

	var days []dayRow
	err = s.aggregate(ctx, "aggregate days", mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   "%Y-%m-%d",
				"date":     "$created_at",
				"timezone": loc.String(),
			}},
			"total": bson.M{"$sum": "$total"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}, &days)
	if err != nil {
		return agg, err
	}
	for _, row := range days {
		day, err := time.ParseInLocation("2006-01-02", row.Day, loc)
		if err != nil {
			return agg, fmt.Errorf("parse day %q: %w", row.Day, err)
		}
		total, err := fromDecimal128(row.Total)
		if err != nil {
			return agg, err
		}
		agg.Days = append(agg.Days, domain.DayTotal{Day: day, Total: total})
	}

	if q.TopN <= 0 {
		return agg, nil
	}
	var top []productRow
	err = s.aggregate(ctx, "aggregate top products", mongo.Pipeline{
		match,
		{{Key: "$unwind", Value: bson.M{"path": "$items", "includeArrayIndex": "idx"}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}, {Key: "idx", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$items.name",
			"qty":       bson.M{"$sum": "$items.qty"},
			"first_at":  bson.M{"$first": "$created_at"},
			"first_seq": bson.M{"$first": "$seq"},
			"first_idx": bson.M{"$first": "$idx"},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "qty", Value: -1},
			{Key: "first_at", Value: 1},
			{Key: "first_seq", Value: 1},
			{Key: "first_idx", Value: 1},
		}}},
		{{Key: "$limit", Value: int64(q.TopN)}},
	}, &top)
	if err != nil {
		return agg, err
	}
	for _, row := range top {
		agg.TopProducts = append(agg.TopProducts, domain.ProductQty{Name: row.Name, Qty: row.Qty})
	}

	return agg, nil
}

func (s *Store) aggregate(ctx context.Context, op string, pipeline mongo.Pipeline, out any) error {
	cur, err := s.db.Collection(colBills).Aggregate(ctx, pipeline)
	if err != nil {
		return classify(op, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return classify(op, err)
	}
	return nil
}

func windowFilter(from time.Time, to time.Time) bson.M {
	return bson.M{"created_at": bson.M{"$gte": from, "$lt": to}}
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNoDocuments(err):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.Conflict(op)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, mongo.ErrClientDisconnected):
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProducts: {
			{
				Keys:    bson.D{{Key: "barcode", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colBills: {
			{
				Keys:    bson.D{{Key: "bill_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
