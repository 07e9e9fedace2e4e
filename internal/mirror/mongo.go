package mirror

import (
	"context"
	"fmt"
	"time"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// productDoc is the mirror's wire representation. IDs are stored as strings
// so documents stay readable and queryable without driver-specific UUID
// codecs.
type productDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Quantity     int       `bson:"quantity"`
	Price        float64   `bson:"price"`
	ImageURL     string    `bson:"image_url"`
	Rating       float64   `bson:"rating"`
	IsFeatured   bool      `bson:"is_featured"`
	LastModified time.Time `bson:"last_modified"`
}

func toDoc(p *domain.Product) productDoc {
	return productDoc{
		ID:           p.ID.String(),
		Name:         p.Name,
		Quantity:     p.Quantity,
		Price:        p.Price,
		ImageURL:     p.ImageURL,
		Rating:       p.Rating,
		IsFeatured:   p.IsFeatured,
		LastModified: p.LastModified,
	}
}

func (d productDoc) toProduct() (*domain.Product, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID %q in mirror document: %w", d.ID, err)
	}
	return &domain.Product{
		ID:           id,
		Name:         d.Name,
		Quantity:     d.Quantity,
		Price:        d.Price,
		ImageURL:     d.ImageURL,
		Rating:       d.Rating,
		IsFeatured:   d.IsFeatured,
		LastModified: d.LastModified,
	}, nil
}

// mongoMirror implements Client on a MongoDB database. Each user's logical
// users/{uid}/products path maps to its own collection, products_{uid}, so
// change streams and fetches are naturally scoped per user.
type mongoMirror struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoMirror creates a Client on the given database.
func NewMongoMirror(db *mongo.Database, logger *zap.Logger) Client {
	return &mongoMirror{db: db, logger: logger}
}

func (m *mongoMirror) collection(userID uuid.UUID) *mongo.Collection {
	return m.db.Collection("products_" + userID.String())
}

// Upsert writes the product document, replacing any existing one.
func (m *mongoMirror) Upsert(ctx context.Context, userID uuid.UUID, product *domain.Product) error {
	doc := toDoc(product)

	_, err := m.collection(userID).ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product in mirror: %w", err)
	}

	return nil
}

// Delete removes the product document; a missing document is not an error.
func (m *mongoMirror) Delete(ctx context.Context, userID uuid.UUID, productID uuid.UUID) error {
	_, err := m.collection(userID).DeleteOne(ctx, bson.M{"_id": productID.String()})
	if err != nil {
		return fmt.Errorf("failed to delete product from mirror: %w", err)
	}

	return nil
}

// FetchAll pulls the user's entire remote set.
func (m *mongoMirror) FetchAll(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	cursor, err := m.collection(userID).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mirror documents: %w", err)
	}
	defer cursor.Close(ctx)

	products := []*domain.Product{}
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode mirror document: %w", err)
		}

		product, err := doc.toProduct()
		if err != nil {
			m.logger.Warn("Skipping malformed mirror document", zap.Error(err))
			continue
		}
		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror documents: %w", err)
	}

	return products, nil
}

// changeStreamEvent is the subset of a MongoDB change stream document the
// mirror consumes.
type changeStreamEvent struct {
	OperationType string     `bson:"operationType"`
	FullDocument  productDoc `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Subscribe opens a change stream on the user's collection and converts its
// events to ChangeEvent batches. Modified documents are delivered with
// their post-image (fullDocument update lookup).
func (m *mongoMirror) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := m.collection(userID).Watch(
		streamCtx,
		mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open mirror change stream: %w", err)
	}

	events := make(chan []domain.ChangeEvent)

	go func() {
		defer close(events)
		defer stream.Close(context.Background())

		for stream.Next(streamCtx) {
			batch := []domain.ChangeEvent{}
			if event, ok := m.decodeEvent(stream); ok {
				batch = append(batch, event)
			}

			// Drain whatever else is already buffered so related changes
			// arrive as one batch.
			for stream.TryNext(streamCtx) {
				if event, ok := m.decodeEvent(stream); ok {
					batch = append(batch, event)
				}
			}

			if len(batch) == 0 {
				continue
			}

			select {
			case events <- batch:
			case <-streamCtx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			m.logger.Error("Mirror change stream terminated", zap.Error(err))
		}
	}()

	return NewSubscription(events, cancel), nil
}

func (m *mongoMirror) decodeEvent(stream *mongo.ChangeStream) (domain.ChangeEvent, bool) {
	var raw changeStreamEvent
	if err := stream.Decode(&raw); err != nil {
		m.logger.Warn("Failed to decode change stream event", zap.Error(err))
		return domain.ChangeEvent{}, false
	}

	switch raw.OperationType {
	case "insert":
		product, err := raw.FullDocument.toProduct()
		if err != nil {
			m.logger.Warn("Skipping malformed change event", zap.Error(err))
			return domain.ChangeEvent{}, false
		}
		return domain.ChangeEvent{Kind: domain.ChangeAdded, Product: *product}, true

	case "update", "replace":
		product, err := raw.FullDocument.toProduct()
		if err != nil {
			m.logger.Warn("Skipping malformed change event", zap.Error(err))
			return domain.ChangeEvent{}, false
		}
		return domain.ChangeEvent{Kind: domain.ChangeModified, Product: *product}, true

	case "delete":
		id, err := uuid.Parse(raw.DocumentKey.ID)
		if err != nil {
			m.logger.Warn("Skipping delete event with malformed ID",
				zap.String("id", raw.DocumentKey.ID),
				zap.Error(err),
			)
			return domain.ChangeEvent{}, false
		}
		return domain.ChangeEvent{Kind: domain.ChangeRemoved, Product: domain.Product{ID: id}}, true

	default:
		return domain.ChangeEvent{}, false
	}
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, client.Database(database), nil
}
