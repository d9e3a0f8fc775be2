package repository

import (
	"context"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBCartRepository implements CartRepository using one document per row.
type MongoDBCartRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        logrus.FieldLogger
}

// cartItemDocument is a cart row in MongoDB. Price is kept as a decimal string.
type cartItemDocument struct {
	UserID    string    `bson:"user_id"`
	ProductID string    `bson:"product_id"`
	Title     string    `bson:"title"`
	Price     string    `bson:"price"`
	ImageURL  *string   `bson:"image_url,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBCartRepository connects and ensures the (user_id, product_id) unique index.
func NewMongoDBCartRepository(uri, database, collection string, log logrus.FieldLogger) (*MongoDBCartRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	coll := client.Database(database).Collection(collection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.WithError(err).Warn("failed to create cart index")
	}

	log.WithFields(logrus.Fields{"database": database, "collection": collection}).Info("MongoDB cart repository initialized")
	return &MongoDBCartRepository{client: client, collection: coll, log: log}, nil
}

// FetchRows returns the user's rows in insertion order.
func (r *MongoDBCartRepository) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query cart rows")
	}
	defer cursor.Close(ctx)

	var docs []cartItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "failed to decode cart rows")
	}

	result := make([]model.RemoteCartRow, 0, len(docs))
	for _, doc := range docs {
		price, err := decimal.NewFromString(doc.Price)
		if err != nil {
			r.log.WithError(err).WithField("product_id", doc.ProductID).Warn("skipping row with bad price")
			continue
		}
		result = append(result, model.RemoteCartRow{
			UserID:    doc.UserID,
			ProductID: doc.ProductID,
			Title:     doc.Title,
			Price:     price,
			ImageURL:  doc.ImageURL,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return result, nil
}

// InsertRow upserts with $setOnInsert so an existing row keeps its snapshot.
func (r *MongoDBCartRepository) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	now := time.Now().UTC()
	doc := cartItemDocument{
		UserID:    row.UserID,
		ProductID: row.ProductID,
		Title:     row.Title,
		Price:     row.Price.String(),
		ImageURL:  row.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	filter := bson.M{"user_id": row.UserID, "product_id": row.ProductID}
	update := bson.M{"$setOnInsert": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return errors.Wrapf(err, "failed to insert cart row %s", row.ProductID)
	}
	return nil
}

// DeleteRow removes one row.
func (r *MongoDBCartRepository) DeleteRow(ctx context.Context, userID, productID string) error {
	filter := bson.M{"user_id": userID, "product_id": productID}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return errors.Wrapf(err, "failed to delete cart row %s", productID)
	}
	return nil
}

// DeleteAllRows removes every row for the user.
func (r *MongoDBCartRepository) DeleteAllRows(ctx context.Context, userID string) error {
	result, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return errors.Wrap(err, "failed to clear cart rows")
	}
	if result.DeletedCount > 0 {
		r.log.WithFields(logrus.Fields{"user_id": userID, "rows": result.DeletedCount}).Debug("cleared remote cart")
	}
	return nil
}

// Ping checks the connection.
func (r *MongoDBCartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBCartRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBCartRepository implements CartRepository
var _ CartRepository = (*MongoDBCartRepository)(nil)
