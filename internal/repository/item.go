package repository

import (
	"context"

	"secondchance/internal/domain"
)

// ItemRepository exposes persistence operations for listed items.
type ItemRepository interface {
	Init(ctx context.Context) error
	// CreateNext assigns the next sequential id to item and inserts it.
	CreateNext(ctx context.Context, item *domain.Item) error
	Get(ctx context.Context, id int64) (*domain.Item, error)
	List(ctx context.Context) ([]domain.Item, error)
	// Update applies patch and returns the item as it is after the update.
	Update(ctx context.Context, id int64, patch domain.ItemPatch) (*domain.Item, error)
	Delete(ctx context.Context, id int64) error
}
