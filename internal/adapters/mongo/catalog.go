package mongo

import (
	"context"
	"time"

	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository serves the sellable product catalog: jump tickets,
// add-ons and memberships.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("products"),
		logger: logger,
	}
}

type ProductDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Price           float64   `bson:"price"`
	Category        string    `bson:"category"` // ticket | addon | membership
	DurationMinutes int       `bson:"duration_minutes,omitempty"`
	Color           string    `bson:"color,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// Entry converts a catalog product into an unassigned cart entry.
func (p ProductDoc) Entry() domain.CartEntry {
	return domain.CartEntry{
		ItemID:   p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Category: domain.ItemCategory(p.Category),
	}
}

func (c *CatalogRepository) GetProduct(ctx context.Context, id string) (*ProductDoc, error) {
	var product ProductDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get product", err)
		return nil, err
	}
	return &product, nil
}

func (c *CatalogRepository) ListProducts(ctx context.Context) ([]ProductDoc, error) {
	cursor, err := c.coll.Find(ctx, bson.M{})
	if err != nil {
		c.logger.Error("failed to list products", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []ProductDoc
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *CatalogRepository) UpsertProduct(ctx context.Context, product ProductDoc) error {
	product.UpdatedAt = time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = product.UpdatedAt
	}
	opts := options.Replace().SetUpsert(true)
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": product.ID}, product, opts)
	if err != nil {
		c.logger.Error("failed to upsert product", err)
		return err
	}
	return nil
}

// SeedDefaults loads the standard park catalog when the collection is
// empty, so a fresh install can sell immediately.
func (c *CatalogRepository) SeedDefaults(ctx context.Context) error {
	count, err := c.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	defaults := []ProductDoc{
		{ID: "tkt_gift", Name: "Gift Card", Price: 0, Category: "ticket", Color: "blue-500"},
		{ID: "tkt_60", Name: "1 hour jump", Price: 500, Category: "ticket", DurationMinutes: 60, Color: "yellow-400"},
		{ID: "tkt_90", Name: "1.5 hour jump", Price: 700, Category: "ticket", DurationMinutes: 90, Color: "yellow-400"},
		{ID: "tkt_120", Name: "2 hour jump", Price: 850, Category: "ticket", DurationMinutes: 120, Color: "orange-400"},
		{ID: "tkt_day", Name: "All Day Pass", Price: 1200, Category: "ticket", DurationMinutes: 480, Color: "orange-400"},
		{ID: "addon_socks", Name: "Jump Socks", Price: 100, Category: "addon", Color: "red-500"},
		{ID: "addon_water", Name: "600ml Drinks", Price: 30, Category: "addon", Color: "green-500"},
		{ID: "addon_treats", Name: "Healthy Treats", Price: 150, Category: "addon", Color: "orange-500"},
		{ID: "addon_hotfood", Name: "Hot Food", Price: 250, Category: "addon", Color: "pink-500"},
	}
	for _, p := range defaults {
		if err := c.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
