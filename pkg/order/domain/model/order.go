package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOptimisticLock = errors.New("order has been modified by another transaction")
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

var ErrUnknownStatus = errors.New("unknown order status")

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return OrderStatus(s), nil
	}
	return "", ErrUnknownStatus
}

type Order struct {
	ID         uuid.UUID
	UserID     string
	Username   string
	Status     OrderStatus
	TotalCents int64
	Items      []OrderItem
	OrderDate  time.Time
	UpdatedAt  time.Time
	Version    int
}

type OrderItem struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	PriceCents  int64
	Quantity    int
}

// RecalculateTotal keeps TotalCents equal to the sum of the snapshotted
// item prices. The total is derived and never accepted from callers.
func (o *Order) RecalculateTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.PriceCents * int64(item.Quantity)
	}
	o.TotalCents = total
}

// CanCancel reports whether the order may still be cancelled.
// CANCELLED and DELIVERED are terminal for cancellation.
func (o *Order) CanCancel() bool {
	return o.Status != StatusCancelled && o.Status != StatusDelivered
}

type OrderRepository interface {
	NextID() (uuid.UUID, error)
	Create(order *Order) error
	Update(order *Order) error // fails with ErrOptimisticLock on a stale version
	Find(id uuid.UUID) (*Order, error)
	FindByUser(userID string) ([]*Order, error) // newest first by order date
	FindAll() ([]*Order, error)
}
