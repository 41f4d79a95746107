package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a lendable catalog entry. Only the loan ledger flips Available after creation.
type Item struct {
	ItemID        string          `gorm:"column:item_id;type:text;primaryKey"`
	Title         string          `gorm:"column:title;type:text;not null"`
	Category      string          `gorm:"column:category;type:text"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	PublicationID *string         `gorm:"column:publication_id;type:text"`
	Available     bool            `gorm:"column:available;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string { return "items" }
