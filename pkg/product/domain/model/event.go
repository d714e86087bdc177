package model

import "github.com/google/uuid"

type ProductCreated struct {
	ProductID uuid.UUID
	Name      string
	CreatedBy string
}

func (e ProductCreated) Type() string { return "ProductCreated" }

type ProductUpdated struct {
	ProductID uuid.UUID
}

func (e ProductUpdated) Type() string { return "ProductUpdated" }

type ProductDeleted struct {
	ProductID uuid.UUID
}

func (e ProductDeleted) Type() string { return "ProductDeleted" }

type StockDecremented struct {
	ProductID uuid.UUID
	Quantity  int
}

func (e StockDecremented) Type() string { return "StockDecremented" }

type StockIncremented struct {
	ProductID uuid.UUID
	Quantity  int
}

func (e StockIncremented) Type() string { return "StockIncremented" }
