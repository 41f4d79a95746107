package models

import "time"

// Patron is a registered borrower.
type Patron struct {
	PatronID       string    `gorm:"column:patron_id;type:text;primaryKey"`
	Name           string    `gorm:"column:name;type:text;not null"`
	Semester       int       `gorm:"column:semester;not null;default:0"`
	Address        string    `gorm:"column:address;type:text"`
	ContactNumbers string    `gorm:"column:contact_numbers;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Patron) TableName() string { return "patrons" }
