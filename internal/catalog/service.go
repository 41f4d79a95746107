package catalog

import (
	"context"
	"strings"

	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/pagination"
	"github.com/shopspring/decimal"
)

// Service defines the catalog operations used by the request layer and the
// loan ledger.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*models.Item, error)
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	ListItems(ctx context.Context, params pagination.Params) (*ItemList, error)
	SetItemAvailable(ctx context.Context, itemID string, available bool) error
	CreatePatron(ctx context.Context, input CreatePatronInput) (*models.Patron, error)
	GetPatron(ctx context.Context, patronID string) (*models.Patron, error)
	ListPatrons(ctx context.Context, params pagination.Params) (*PatronList, error)
}

type service struct {
	repo Repository
}

// CreateItemInput is the payload for registering a catalog item.
type CreateItemInput struct {
	ItemID        string          `json:"item_id" validate:"required,max=64"`
	Title         string          `json:"title" validate:"required,max=512"`
	Category      string          `json:"category" validate:"max=128"`
	Price         decimal.Decimal `json:"price"`
	PublicationID *string         `json:"publication_id,omitempty"`
}

// CreatePatronInput is the payload for registering a patron.
type CreatePatronInput struct {
	PatronID       string   `json:"patron_id" validate:"required,max=64"`
	Name           string   `json:"name" validate:"required,max=256"`
	Semester       int      `json:"semester" validate:"min=0,max=16"`
	Address        string   `json:"address" validate:"max=512"`
	ContactNumbers []string `json:"contact_numbers" validate:"max=5,dive,max=32"`
}

// ItemList is one page of items.
type ItemList struct {
	Items  []ItemDTO `json:"items"`
	Cursor string    `json:"cursor"`
}

// PatronList is one page of patrons.
type PatronList struct {
	Items  []PatronDTO `json:"items"`
	Cursor string      `json:"cursor"`
}

// NewService wires catalog dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*models.Item, error) {
	itemID := strings.TrimSpace(input.ItemID)
	title := strings.TrimSpace(input.Title)
	if itemID == "" || title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item_id and title are required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	item := &models.Item{
		ItemID:        itemID,
		Title:         title,
		Category:      strings.TrimSpace(input.Category),
		Price:         input.Price,
		PublicationID: input.PublicationID,
		Available:     true,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "item already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create item")
	}
	return item, nil
}

func (s *service) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return item, nil
}

func (s *service) ListItems(ctx context.Context, params pagination.Params) (*ItemList, error) {
	query, err := toListParams(params)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListItems(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	result := &ItemList{Items: make([]ItemDTO, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, NewItemDTO(row))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) SetItemAvailable(ctx context.Context, itemID string, available bool) error {
	found, err := s.repo.SetItemAvailable(ctx, itemID, available)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item availability")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return nil
}

func (s *service) CreatePatron(ctx context.Context, input CreatePatronInput) (*models.Patron, error) {
	patronID := strings.TrimSpace(input.PatronID)
	name := strings.TrimSpace(input.Name)
	if patronID == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron_id and name are required")
	}

	patron := &models.Patron{
		PatronID:       patronID,
		Name:           name,
		Semester:       input.Semester,
		Address:        strings.TrimSpace(input.Address),
		ContactNumbers: joinContacts(input.ContactNumbers),
	}
	if err := s.repo.CreatePatron(ctx, patron); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "patron already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create patron")
	}
	return patron, nil
}

func (s *service) GetPatron(ctx context.Context, patronID string) (*models.Patron, error) {
	patronID = strings.TrimSpace(patronID)
	if patronID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron id required")
	}
	patron, err := s.repo.FindPatron(ctx, patronID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load patron")
	}
	if patron == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "patron not found")
	}
	return patron, nil
}

func (s *service) ListPatrons(ctx context.Context, params pagination.Params) (*PatronList, error) {
	query, err := toListParams(params)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListPatrons(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list patrons")
	}
	result := &PatronList{Items: make([]PatronDTO, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, NewPatronDTO(row))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func toListParams(params pagination.Params) (listParams, error) {
	query := listParams{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return listParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	return query, nil
}

func joinContacts(numbers []string) string {
	clean := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	return strings.Join(clean, ",")
}
