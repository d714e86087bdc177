package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock quantity")
	ErrOptimisticLock    = errors.New("product has been modified by another transaction")
)

type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	PriceCents    int64
	StockQuantity int
	CreatedBy     string
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ProductRepository interface {
	NextID() (uuid.UUID, error)
	Create(product *Product) error
	Update(product *Product) error
	Find(id uuid.UUID) (*Product, error)
	FindAll() ([]*Product, error)
	SearchByName(name string) ([]*Product, error)
	Delete(id uuid.UUID) error

	// DecrementStock subtracts quantity from the product's stock only if
	// enough stock remains, as a single atomic statement against the
	// store, and reports how many rows changed (0 or 1). This is the one
	// place overselling is actually prevented; availability checks
	// upstream are advisory by comparison.
	DecrementStock(id uuid.UUID, quantity int) (int64, error)
	IsStockAvailable(id uuid.UUID, quantity int) (bool, error)
}
