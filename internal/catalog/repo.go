package catalog

import (
	"context"

	"github.com/Lavavarshney/Library-Management-System/internal/repo"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/Lavavarshney/Library-Management-System/pkg/pagination"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for items and patrons.
type Repository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	FindItem(ctx context.Context, itemID string) (*models.Item, error)
	ListItems(ctx context.Context, params listParams) ([]models.Item, *pagination.Cursor, error)
	SetItemAvailable(ctx context.Context, itemID string, available bool) (bool, error)
	CreatePatron(ctx context.Context, patron *models.Patron) error
	FindPatron(ctx context.Context, patronID string) (*models.Patron, error)
	ListPatrons(ctx context.Context, params listParams) ([]models.Patron, *pagination.Cursor, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type listParams struct {
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) CreateItem(ctx context.Context, item *models.Item) error {
	return r.DB(ctx).Create(item).Error
}

func (r *repositoryImpl) FindItem(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	found, err := r.TakeBy(ctx, &item, "item_id", itemID)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) ListItems(ctx context.Context, params listParams) ([]models.Item, *pagination.Cursor, error) {
	var items []models.Item
	err := r.DB(ctx).Scopes(pagination.Scope(params.Cursor, "item_id", params.Limit)).Find(&items).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(items, params.Limit, func(it models.Item) pagination.Cursor {
		return pagination.Cursor{CreatedAt: it.CreatedAt, ID: it.ItemID}
	})
	return page, next, nil
}

// SetItemAvailable reports false when no item matched.
func (r *repositoryImpl) SetItemAvailable(ctx context.Context, itemID string, available bool) (bool, error) {
	if found, err := r.ExistsBy(ctx, &models.Item{}, "item_id", itemID); err != nil || !found {
		return false, err
	}
	result := r.DB(ctx).
		Model(&models.Item{}).
		Where("item_id = ?", itemID).
		UpdateColumn("available", available)
	if result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

func (r *repositoryImpl) CreatePatron(ctx context.Context, patron *models.Patron) error {
	return r.DB(ctx).Create(patron).Error
}

func (r *repositoryImpl) FindPatron(ctx context.Context, patronID string) (*models.Patron, error) {
	var patron models.Patron
	found, err := r.TakeBy(ctx, &patron, "patron_id", patronID)
	if err != nil || !found {
		return nil, err
	}
	return &patron, nil
}

func (r *repositoryImpl) ListPatrons(ctx context.Context, params listParams) ([]models.Patron, *pagination.Cursor, error) {
	var patrons []models.Patron
	err := r.DB(ctx).Scopes(pagination.Scope(params.Cursor, "patron_id", params.Limit)).Find(&patrons).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(patrons, params.Limit, func(p models.Patron) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.PatronID}
	})
	return page, next, nil
}
