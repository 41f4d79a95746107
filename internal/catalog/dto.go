package catalog

import (
	"strings"
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/shopspring/decimal"
)

// ItemDTO is the public representation of an item.
type ItemDTO struct {
	ItemID        string          `json:"item_id"`
	Title         string          `json:"title"`
	Category      string          `json:"category,omitempty"`
	Price         decimal.Decimal `json:"price"`
	PublicationID *string         `json:"publication_id,omitempty"`
	Available     bool            `json:"available"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewItemDTO(item models.Item) ItemDTO {
	return ItemDTO{
		ItemID:        item.ItemID,
		Title:         item.Title,
		Category:      item.Category,
		Price:         item.Price,
		PublicationID: item.PublicationID,
		Available:     item.Available,
		CreatedAt:     item.CreatedAt,
	}
}

// PatronDTO is the public representation of a patron.
type PatronDTO struct {
	PatronID       string    `json:"patron_id"`
	Name           string    `json:"name"`
	Semester       int       `json:"semester"`
	Address        string    `json:"address,omitempty"`
	ContactNumbers []string  `json:"contact_numbers"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewPatronDTO(patron models.Patron) PatronDTO {
	contacts := []string{}
	if patron.ContactNumbers != "" {
		contacts = strings.Split(patron.ContactNumbers, ",")
	}
	return PatronDTO{
		PatronID:       patron.PatronID,
		Name:           patron.Name,
		Semester:       patron.Semester,
		Address:        patron.Address,
		ContactNumbers: contacts,
		CreatedAt:      patron.CreatedAt,
	}
}
