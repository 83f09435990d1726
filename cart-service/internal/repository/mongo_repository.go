package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "cart_items"

// mongo error code for "collection already exists"
const codeNamespaceExists = 48

type productDoc struct {
	ID          string   `bson:"id"`
	Name        string   `bson:"name"`
	Description string   `bson:"description,omitempty"`
	Price       string   `bson:"price"`
	ImageURL    string   `bson:"image_url"`
	Moods       []string `bson:"moods"`
	Inventory   int      `bson:"inventory"`
	Category    string   `bson:"category"`
}

// cartItemDoc is one row of cart_items. Money is stored as decimal strings.
type cartItemDoc struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty"`
	LineID    string             `bson:"line_id"`
	UserID    string             `bson:"user_id"`
	ProductID string             `bson:"product_id"`
	Quantity  int                `bson:"quantity"`
	UnitPrice string             `bson:"unit_price"`
	Product   productDoc         `bson:"product"`
	Version   int64              `bson:"version"`
	Origin    string             `bson:"origin"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func toProductDoc(p client.ProductView) productDoc {
	moods := make([]string, len(p.Moods))
	for i, m := range p.Moods {
		moods[i] = m.String()
	}
	return productDoc{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		ImageURL:    p.ImageURL,
		Moods:       moods,
		Inventory:   p.Inventory,
		Category:    p.Category,
	}
}

func (d cartItemDoc) toLine() (domain.CartLine, error) {
	unit, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("line %s: bad unit price %q: %w", d.LineID, d.UnitPrice, err)
	}
	price := unit
	if d.Product.Price != "" {
		if price, err = decimal.NewFromString(d.Product.Price); err != nil {
			return domain.CartLine{}, fmt.Errorf("line %s: bad product price %q: %w", d.LineID, d.Product.Price, err)
		}
	}
	moods := make([]mood.Tag, len(d.Product.Moods))
	for i, m := range d.Product.Moods {
		moods[i] = mood.Parse(m)
	}

	return domain.CartLine{
		ID:        d.LineID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		UnitPrice: unit,
		Product: client.ProductView{
			ID:          d.Product.ID,
			Name:        d.Product.Name,
			Description: d.Product.Description,
			Price:       price,
			ImageURL:    d.Product.ImageURL,
			Moods:       moods,
			Inventory:   d.Product.Inventory,
			Category:    d.Product.Category,
		},
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// MongoConfig describes the cart database. Zero durations and pool sizes
// fall back to the package defaults.
type MongoConfig struct {
	URI            string
	Database       string
	AppName        string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 50
)

type MongoStore struct {
	collection *mongo.Collection
	log        *slog.Logger
}

// OpenMongoStore dials the cart database, waits for a primary and ensures the
// cart_items indexes exist. Close releases the client.
func OpenMongoStore(ctx context.Context, cfg MongoConfig, log *slog.Logger) (*MongoStore, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = defaultMaxPoolSize
	}
	if cfg.AppName == "" {
		cfg.AppName = "cart-service"
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Database, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w", cfg.Database, err)
	}

	store := NewMongoStore(client.Database(cfg.Database), log)
	if err := store.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func NewMongoStore(db *mongo.Database, log *slog.Logger) *MongoStore {
	if log == nil {
		log = slog.Default()
	}
	return &MongoStore{
		collection: db.Collection(collectionName),
		log:        log,
	}
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}

func (m *MongoStore) Fetch(ctx context.Context, userID string) ([]domain.CartLine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}

	var docs []cartItemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(docs))
	for _, d := range docs {
		line, err := d.toLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (m *MongoStore) UpsertIncrement(ctx context.Context, userID string, line domain.CartLine) error {
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID, "product_id": line.ProductID}
	update := bson.M{
		"$inc": bson.M{"quantity": line.Quantity},
		"$max": bson.M{"version": line.Version},
		"$set": bson.M{
			"origin":     domain.OriginFrom(ctx),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"line_id":    line.ID,
			"unit_price": line.UnitPrice.String(),
			"product":    toProductDoc(line.Product),
			"created_at": now,
		},
	}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on the unique index; the row exists now
		_, err = m.collection.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return nil
}

func (m *MongoStore) SetQuantity(ctx context.Context, userID, productID string, quantity int, version int64) error {
	filter := bson.M{
		"user_id":    userID,
		"product_id": productID,
		"version":    bson.M{"$lt": version},
	}
	update := bson.M{
		"$set": bson.M{
			"quantity":   quantity,
			"version":    version,
			"origin":     domain.OriginFrom(ctx),
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := m.collection.CountDocuments(ctx, bson.M{"user_id": userID, "product_id": productID})
	if err != nil {
		return fmt.Errorf("failed to check cart line: %w", err)
	}
	if n > 0 {
		return domain.ErrStaleWrite
	}
	return domain.ErrLineNotFound
}

func (m *MongoStore) Delete(ctx context.Context, userID, productID string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID, "product_id": productID})
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	return nil
}

func (m *MongoStore) DeleteAll(ctx context.Context, userID string) error {
	_, err := m.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

type changeDoc struct {
	OperationType            string       `bson:"operationType"`
	FullDocument             *cartItemDoc `bson:"fullDocument"`
	FullDocumentBeforeChange *cartItemDoc `bson:"fullDocumentBeforeChange"`
}

// Watch needs a replica set. Deletes are attributed to a user through
// pre-images, see EnablePreImages.
func (m *MongoStore) Watch(ctx context.Context, userID string) (<-chan domain.ChangeEvent, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": bson.A{
		bson.M{"fullDocument.user_id": userID},
		bson.M{"fullDocumentBeforeChange.user_id": userID},
	}}}}}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := m.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var c changeDoc
			if err := stream.Decode(&c); err != nil {
				m.log.Warn("undecodable cart change", "user_id", userID, "err", err)
				continue
			}
			ev, ok := c.event(userID)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			m.log.Error("cart change stream stopped", "user_id", userID, "err", err)
		}
	}()
	return out, nil
}

func (c changeDoc) event(userID string) (domain.ChangeEvent, bool) {
	doc := c.FullDocument
	kind := domain.ChangeUpsert
	switch c.OperationType {
	case "insert", "update", "replace":
	case "delete":
		doc = c.FullDocumentBeforeChange
		kind = domain.ChangeDelete
	default:
		return domain.ChangeEvent{}, false
	}
	ev := domain.ChangeEvent{UserID: userID, Kind: kind}
	if doc != nil {
		ev.ProductID = doc.ProductID
		// a pre-image names the previous writer, not the deleting session
		if kind == domain.ChangeUpsert {
			ev.Origin = doc.Origin
		}
	}
	return ev, true
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// EnablePreImages turns on change stream pre-images for cart_items so that
// delete events carry the removed row.
func (m *MongoStore) EnablePreImages(ctx context.Context) error {
	db := m.collection.Database()
	opts := options.CreateCollection().SetChangeStreamPreAndPostImages(bson.M{"enabled": true})
	err := db.CreateCollection(ctx, collectionName, opts)
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Code != codeNamespaceExists {
		return fmt.Errorf("failed to create %s: %w", collectionName, err)
	}
	cmd := bson.D{
		{Key: "collMod", Value: collectionName},
		{Key: "changeStreamPreAndPostImages", Value: bson.M{"enabled": true}},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to enable pre-images: %w", err)
	}
	return nil
}
