package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ecommerce/pkg/order/domain/model"
	"ecommerce/pkg/order/inventory"
)

var (
	ErrOrderIsEmpty          = stderrors.New("cannot process an empty order")
	ErrInvalidQuantity       = stderrors.New("item quantity must be at least 1")
	ErrProductUnavailable    = stderrors.New("product is unavailable")
	ErrOrderAlreadyCancelled = stderrors.New("order is already cancelled")
	ErrOrderDelivered        = stderrors.New("a delivered order cannot be cancelled")
)

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(event Event) error
}

// NewOrder is a candidate order as submitted by a customer. Prices and
// product names are never accepted from the caller; they are snapshotted
// from the inventory side during validation.
type NewOrder struct {
	Items []NewOrderItem
}

type NewOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderResult carries the confirmed order plus the reservation
// outcome. PartiallyReserved is true when one or more stock decrements
// failed after the order was persisted; the order confirms anyway and the
// affected products are listed so callers can detect the inventory drift.
type CreateOrderResult struct {
	Order             *model.Order
	PartiallyReserved bool
	FailedProducts    []uuid.UUID
}

type OrderService interface {
	CreateOrder(ctx context.Context, candidate NewOrder, userID, username, token string) (*CreateOrderResult, error)
	GetOrder(id uuid.UUID) (*model.Order, error)
	ListOrdersForUser(userID string) ([]*model.Order, error)
	ListAllOrders() ([]*model.Order, error)
	UpdateStatus(id uuid.UUID, newStatus model.OrderStatus) (*model.Order, error)
	CancelOrder(id uuid.UUID) (*model.Order, error)
}

func NewOrderService(repo model.OrderRepository, inv inventory.Client, dispatcher EventDispatcher) OrderService {
	return &orderService{repo: repo, inventory: inv, dispatcher: dispatcher}
}

type orderService struct {
	repo       model.OrderRepository
	inventory  inventory.Client
	dispatcher EventDispatcher
}

// CreateOrder validates every line item against live inventory, persists the
// order as PENDING, decrements stock per item, and confirms. Validation is
// all-or-nothing: no durable write happens before every item has passed.
// There is no distributed transaction across the two durable writes and the
// inventory calls; a decrement failure after the PENDING write is logged and
// surfaced, not rolled back.
func (s *orderService) CreateOrder(ctx context.Context, candidate NewOrder, userID, username, token string) (*CreateOrderResult, error) {
	if len(candidate.Items) == 0 {
		return nil, ErrOrderIsEmpty
	}
	for _, item := range candidate.Items {
		if item.Quantity < 1 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", item.ProductID)
		}
	}

	log.WithFields(log.Fields{"userId": userID, "username": username}).Info("creating order")

	// Items are validated strictly one at a time so each price snapshot is
	// taken before the next item is touched.
	items := make([]model.OrderItem, 0, len(candidate.Items))
	for _, candidateItem := range candidate.Items {
		fetched := s.inventory.FetchProduct(ctx, token, candidateItem.ProductID)
		if !fetched.Found {
			return nil, errors.Wrapf(ErrProductUnavailable, "product %s (%s)", candidateItem.ProductID, fetched.Reason)
		}

		check := s.inventory.CheckAvailability(ctx, token, candidateItem.ProductID, candidateItem.Quantity)
		if !check.Available {
			return nil, errors.Wrapf(ErrProductUnavailable,
				"insufficient stock for product %q, requested quantity %d", fetched.Product.Name, candidateItem.Quantity)
		}

		items = append(items, model.OrderItem{
			ProductID:   candidateItem.ProductID,
			ProductName: fetched.Product.Name,
			PriceCents:  fetched.Product.PriceCents,
			Quantity:    candidateItem.Quantity,
		})
	}

	orderID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}
	for i := range items {
		itemID, err := s.repo.NextID()
		if err != nil {
			return nil, err
		}
		items[i].ID = itemID
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:        orderID,
		UserID:    userID,
		Username:  username,
		Status:    model.StatusPending,
		Items:     items,
		OrderDate: now,
		UpdatedAt: now,
		Version:   1,
	}
	order.RecalculateTotal()

	// First durable write.
	if err := s.repo.Create(order); err != nil {
		return nil, err
	}
	_ = s.dispatcher.Dispatch(model.OrderCreated{OrderID: orderID, UserID: userID, TotalCents: order.TotalCents})

	result := &CreateOrderResult{Order: order}
	for _, item := range order.Items {
		decremented := s.inventory.DecrementStock(ctx, token, item.ProductID, item.Quantity)
		if decremented.Decremented {
			continue
		}
		// Inherited policy: a failed decrement does not fail the order.
		// The gap is made observable instead of silently swallowed.
		log.WithFields(log.Fields{
			"orderId":   orderID,
			"productId": item.ProductID,
			"quantity":  item.Quantity,
			"reason":    decremented.Reason.String(),
		}).Warn("stock decrement failed, order will confirm anyway")

		result.PartiallyReserved = true
		result.FailedProducts = append(result.FailedProducts, item.ProductID)
		_ = s.dispatcher.Dispatch(model.StockReservationFailed{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Reason:    decremented.Reason.String(),
		})
	}

	order.Status = model.StatusConfirmed
	if err := s.updateOrder(order); err != nil {
		return nil, err
	}
	_ = s.dispatcher.Dispatch(model.OrderConfirmed{OrderID: orderID})

	log.WithFields(log.Fields{"orderId": orderID, "totalCents": order.TotalCents}).Info("order confirmed")
	return result, nil
}

func (s *orderService) GetOrder(id uuid.UUID) (*model.Order, error) {
	return s.repo.Find(id)
}

func (s *orderService) ListOrdersForUser(userID string) ([]*model.Order, error) {
	return s.repo.FindByUser(userID)
}

func (s *orderService) ListAllOrders() ([]*model.Order, error) {
	return s.repo.FindAll()
}

// UpdateStatus applies an administrative status change. Transition legality
// is deliberately not checked here; the caller is a trusted administrative
// actor.
func (s *orderService) UpdateStatus(id uuid.UUID, newStatus model.OrderStatus) (*model.Order, error) {
	order, err := s.repo.Find(id)
	if err != nil {
		return nil, err
	}

	oldStatus := order.Status
	order.Status = newStatus
	if err := s.updateOrder(order); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.OrderStatusChanged{OrderID: id, OldStatus: oldStatus, NewStatus: newStatus})
	return order, nil
}

// CancelOrder sets the order CANCELLED unless it is already cancelled or
// delivered. Stock decremented at creation time is not restored.
func (s *orderService) CancelOrder(id uuid.UUID) (*model.Order, error) {
	order, err := s.repo.Find(id)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.StatusCancelled:
		return nil, ErrOrderAlreadyCancelled
	case model.StatusDelivered:
		return nil, ErrOrderDelivered
	}

	order.Status = model.StatusCancelled
	if err := s.updateOrder(order); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.OrderCancelled{OrderID: id})
	log.WithField("orderId", id).Info("order cancelled")
	return order, nil
}

func (s *orderService) updateOrder(order *model.Order) error {
	order.RecalculateTotal()
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	return s.repo.Update(order)
}
