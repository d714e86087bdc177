package model

import "github.com/google/uuid"

type OrderCreated struct {
	OrderID    uuid.UUID
	UserID     string
	TotalCents int64
}

func (e OrderCreated) Type() string { return "OrderCreated" }

type OrderConfirmed struct {
	OrderID uuid.UUID
}

func (e OrderConfirmed) Type() string { return "OrderConfirmed" }

type OrderStatusChanged struct {
	OrderID   uuid.UUID
	OldStatus OrderStatus
	NewStatus OrderStatus
}

func (e OrderStatusChanged) Type() string { return "OrderStatusChanged" }

type OrderCancelled struct {
	OrderID uuid.UUID
}

func (e OrderCancelled) Type() string { return "OrderCancelled" }

// StockReservationFailed is dispatched when a stock decrement fails after the
// order has already been persisted. The order still confirms; the event makes
// the resulting inventory drift observable instead of silent.
type StockReservationFailed struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Reason    string
}

func (e StockReservationFailed) Type() string { return "StockReservationFailed" }
