// Package repo holds the gorm plumbing shared by the loan and catalog repositories.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base is embedded by the concrete repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx; a nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// TakeBy loads the single row of dest's table where column equals value.
// A missing row reports false with a nil error.
func (b Base) TakeBy(ctx context.Context, dest any, column string, value any) (bool, error) {
	err := b.DB(ctx).Where(column+" = ?", value).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ExistsBy reports whether model's table has a row where column equals value.
func (b Base) ExistsBy(ctx context.Context, model any, column string, value any) (bool, error) {
	var n int64
	if err := b.DB(ctx).Model(model).Where(column+" = ?", value).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
