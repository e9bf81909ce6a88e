package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const productViewsCollection = "product_views"

// ProductViewStore mantiene las vistas de producto en MongoDB.
type ProductViewStore struct {
	coll *mongo.Collection
}

func NewProductViewStore(ctx context.Context, client *mongo.Client, dbName string) (*ProductViewStore, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}
	return &ProductViewStore{coll: client.Database(dbName).Collection(productViewsCollection)}, nil
}

// --- Structs de BSON para el mapeo ---

type mongoProductView struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	PriceCents  int64     `bson:"priceCents"`
	Stock       int       `bson:"stock"`
	Active      bool      `bson:"active"`
	Version     int64     `bson:"version"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func toMongoView(v catalogDomain.ProductView) mongoProductView {
	return mongoProductView{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		PriceCents:  v.PriceCents,
		Stock:       v.Stock,
		Active:      v.Active,
		Version:     v.Version,
		UpdatedAt:   v.UpdatedAt,
	}
}

func (m mongoProductView) toDomain() *catalogDomain.ProductView {
	return &catalogDomain.ProductView{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		PriceCents:  m.PriceCents,
		Stock:       m.Stock,
		Active:      m.Active,
		Version:     m.Version,
		UpdatedAt:   m.UpdatedAt,
	}
}

// Upsert solo reemplaza documentos con versión menor. Si el documento ya tiene
// una versión igual o mayor el filtro no casa, el upsert intenta insertar el
// mismo _id y Mongo responde con duplicate key, que aquí no es un error.
func (s *ProductViewStore) Upsert(ctx context.Context, v catalogDomain.ProductView) error {
	filter := bson.M{"_id": v.ID, "version": bson.M{"$lt": v.Version}}
	update := bson.M{"$set": toMongoView(v)}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to upsert product view %s: %w", v.ID, err)
	}
	return nil
}

func (s *ProductViewStore) Get(ctx context.Context, id string) (*catalogDomain.ProductView, error) {
	var doc mongoProductView
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sharedDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}
