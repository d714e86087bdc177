package tests

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce/pkg/order/domain/model"
	"ecommerce/pkg/order/domain/service"
	"ecommerce/pkg/order/inventory"
)

func setup(t *testing.T) (service.OrderService, *mockOrderRepository, *mockInventoryClient, *mockEventDispatcher) {
	repo := &mockOrderRepository{store: make(map[uuid.UUID]*model.Order)}
	inv := newMockInventoryClient()
	dispatcher := &mockEventDispatcher{}
	orderService := service.NewOrderService(repo, inv, dispatcher)
	return orderService, repo, inv, dispatcher
}

func TestCreateOrder(t *testing.T) {
	orderService, repo, inv, dispatcher := setup(t)

	productA := inv.addProduct("Keyboard", 1000, 10)
	productB := inv.addProduct("Mouse", 1550, 5)

	candidate := service.NewOrder{Items: []service.NewOrderItem{
		{ProductID: productA, Quantity: 3},
		{ProductID: productB, Quantity: 2},
	}}

	result, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.False(t, result.PartiallyReserved)

	order := result.Order
	assert.Equal(t, int64(6100), order.TotalCents, "3x10.00 + 2x15.50 must total 61.00")
	assert.Equal(t, model.StatusConfirmed, order.Status)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, "alice", order.Username)
	assert.Equal(t, 2, order.Version, "two durable writes: PENDING then CONFIRMED")

	require.Len(t, order.Items, 2)
	assert.Equal(t, "Keyboard", order.Items[0].ProductName)
	assert.Equal(t, int64(1000), order.Items[0].PriceCents)
	assert.Equal(t, "Mouse", order.Items[1].ProductName)
	assert.Equal(t, int64(1550), order.Items[1].PriceCents)

	assert.Equal(t, model.StatusPending, repo.statusAtCreate, "first durable write must be PENDING")

	require.Len(t, inv.decrements, 2)
	assert.Equal(t, decrementCall{productA, 3}, inv.decrements[0])
	assert.Equal(t, decrementCall{productB, 2}, inv.decrements[1])

	saved, ok := repo.store[order.ID]
	require.True(t, ok)
	assert.Equal(t, model.StatusConfirmed, saved.Status)

	require.GreaterOrEqual(t, len(dispatcher.events), 2)
	_, ok = dispatcher.events[0].(model.OrderCreated)
	assert.True(t, ok)
	_, ok = dispatcher.events[len(dispatcher.events)-1].(model.OrderConfirmed)
	assert.True(t, ok)
}

func TestCreateOrderValidationFailures(t *testing.T) {
	t.Run("Fail on empty order", func(t *testing.T) {
		orderService, repo, _, _ := setup(t)
		_, err := orderService.CreateOrder(context.Background(), service.NewOrder{}, "user-1", "alice", "token")
		assert.ErrorIs(t, err, service.ErrOrderIsEmpty)
		assert.Zero(t, repo.createCalls)
	})

	t.Run("Fail on non-positive quantity", func(t *testing.T) {
		orderService, repo, inv, _ := setup(t)
		productID := inv.addProduct("Keyboard", 1000, 10)
		candidate := service.NewOrder{Items: []service.NewOrderItem{{ProductID: productID, Quantity: 0}}}

		_, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
		assert.ErrorIs(t, err, service.ErrInvalidQuantity)
		assert.Zero(t, repo.createCalls)
	})

	t.Run("Fail on unknown product", func(t *testing.T) {
		orderService, repo, _, _ := setup(t)
		candidate := service.NewOrder{Items: []service.NewOrderItem{{ProductID: uuid.New(), Quantity: 1}}}

		_, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
		assert.ErrorIs(t, err, service.ErrProductUnavailable)
		assert.Zero(t, repo.createCalls, "no order may be persisted for a validation failure")
	})

	t.Run("Fail on insufficient availability", func(t *testing.T) {
		orderService, repo, inv, _ := setup(t)
		productID := inv.addProduct("Keyboard", 1000, 10)
		inv.unavailable[productID] = true
		candidate := service.NewOrder{Items: []service.NewOrderItem{{ProductID: productID, Quantity: 1}}}

		_, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
		assert.ErrorIs(t, err, service.ErrProductUnavailable)
		assert.Contains(t, err.Error(), "Keyboard")
		assert.Zero(t, repo.createCalls)

		orders, repoErr := repo.FindByUser("user-1")
		require.NoError(t, repoErr)
		assert.Empty(t, orders, "repository must hold no orders for that user afterward")
	})

	t.Run("Second item failing aborts before any durable write", func(t *testing.T) {
		orderService, repo, inv, _ := setup(t)
		goodProduct := inv.addProduct("Keyboard", 1000, 10)
		badProduct := inv.addProduct("Mouse", 1550, 0)
		inv.unavailable[badProduct] = true
		candidate := service.NewOrder{Items: []service.NewOrderItem{
			{ProductID: goodProduct, Quantity: 1},
			{ProductID: badProduct, Quantity: 1},
		}}

		_, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
		assert.ErrorIs(t, err, service.ErrProductUnavailable)
		assert.Zero(t, repo.createCalls)
		assert.Empty(t, inv.decrements, "no stock may be touched when validation fails")
	})
}

func TestCreateOrderPartialReservation(t *testing.T) {
	orderService, repo, inv, dispatcher := setup(t)

	productA := inv.addProduct("Keyboard", 1000, 10)
	productB := inv.addProduct("Mouse", 1550, 5)
	inv.failDecrement[productB] = true

	candidate := service.NewOrder{Items: []service.NewOrderItem{
		{ProductID: productA, Quantity: 1},
		{ProductID: productB, Quantity: 2},
	}}

	result, err := orderService.CreateOrder(context.Background(), candidate, "user-1", "alice", "token")
	require.NoError(t, err, "a failed decrement must not fail the order")

	assert.True(t, result.PartiallyReserved)
	assert.Equal(t, []uuid.UUID{productB}, result.FailedProducts)
	assert.Equal(t, model.StatusConfirmed, result.Order.Status, "order confirms despite the reservation gap")
	assert.Equal(t, model.StatusConfirmed, repo.store[result.Order.ID].Status)

	var reservationEvents []model.StockReservationFailed
	for _, event := range dispatcher.events {
		if e, ok := event.(model.StockReservationFailed); ok {
			reservationEvents = append(reservationEvents, e)
		}
	}
	require.Len(t, reservationEvents, 1)
	assert.Equal(t, productB, reservationEvents[0].ProductID)
	assert.Equal(t, 2, reservationEvents[0].Quantity)
}

func TestGetOrder(t *testing.T) {
	orderService, _, inv, _ := setup(t)
	productID := inv.addProduct("Keyboard", 1000, 10)
	result, err := orderService.CreateOrder(context.Background(),
		service.NewOrder{Items: []service.NewOrderItem{{ProductID: productID, Quantity: 1}}},
		"user-1", "alice", "token")
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		order, err := orderService.GetOrder(result.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, result.Order.ID, order.ID)
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := orderService.GetOrder(uuid.New())
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}

func TestUpdateStatus(t *testing.T) {
	orderService, repo, inv, dispatcher := setup(t)
	productID := inv.addProduct("Keyboard", 1000, 10)
	result, err := orderService.CreateOrder(context.Background(),
		service.NewOrder{Items: []service.NewOrderItem{{ProductID: productID, Quantity: 1}}},
		"user-1", "alice", "token")
	require.NoError(t, err)
	dispatcher.Reset()

	order, err := orderService.UpdateStatus(result.Order.ID, model.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, order.Status)
	assert.Equal(t, 3, order.Version)
	assert.Equal(t, model.StatusShipped, repo.store[order.ID].Status)

	require.Len(t, dispatcher.events, 1)
	event := dispatcher.events[0].(model.OrderStatusChanged)
	assert.Equal(t, model.StatusConfirmed, event.OldStatus)
	assert.Equal(t, model.StatusShipped, event.NewStatus)

	t.Run("Not found", func(t *testing.T) {
		_, err := orderService.UpdateStatus(uuid.New(), model.StatusShipped)
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}

func TestCancelOrder(t *testing.T) {
	newOrder := func(t *testing.T, status model.OrderStatus) (service.OrderService, *mockOrderRepository, uuid.UUID) {
		orderService, repo, inv, _ := setup(t)
		productID := inv.addProduct("Keyboard", 1000, 10)
		result, err := orderService.CreateOrder(context.Background(),
			service.NewOrder{Items: []service.NewOrderItem{{ProductID: productID, Quantity: 1}}},
			"user-1", "alice", "token")
		require.NoError(t, err)
		repo.store[result.Order.ID].Status = status
		return orderService, repo, result.Order.ID
	}

	for _, status := range []model.OrderStatus{
		model.StatusPending, model.StatusConfirmed, model.StatusProcessing, model.StatusShipped,
	} {
		t.Run("Succeeds from "+string(status), func(t *testing.T) {
			orderService, repo, orderID := newOrder(t, status)
			order, err := orderService.CancelOrder(orderID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, order.Status)
			assert.Equal(t, model.StatusCancelled, repo.store[orderID].Status)
		})
	}

	t.Run("Fails when already cancelled", func(t *testing.T) {
		orderService, _, orderID := newOrder(t, model.StatusCancelled)
		_, err := orderService.CancelOrder(orderID)
		assert.ErrorIs(t, err, service.ErrOrderAlreadyCancelled)
	})

	t.Run("Fails when delivered", func(t *testing.T) {
		orderService, _, orderID := newOrder(t, model.StatusDelivered)
		_, err := orderService.CancelOrder(orderID)
		assert.ErrorIs(t, err, service.ErrOrderDelivered)
	})

	t.Run("Not found", func(t *testing.T) {
		orderService, _, _, _ := setup(t)
		_, err := orderService.CancelOrder(uuid.New())
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}

func TestOptimisticLockInRepository(t *testing.T) {
	_, repo, _, _ := setup(t)
	order := &model.Order{ID: uuid.New(), Status: model.StatusPending, Version: 1}
	require.NoError(t, repo.Create(order))

	stale := *order
	order.Version++
	require.NoError(t, repo.Update(order))

	stale.Version++ // same target version from the same base: stale write
	err := repo.Update(&stale)
	assert.ErrorIs(t, err, model.ErrOptimisticLock)
}

var _ model.OrderRepository = &mockOrderRepository{}

type mockOrderRepository struct {
	store          map[uuid.UUID]*model.Order
	createCalls    int
	statusAtCreate model.OrderStatus
}

func (m *mockOrderRepository) NextID() (uuid.UUID, error) { return uuid.New(), nil }

func (m *mockOrderRepository) Create(order *model.Order) error {
	m.createCalls++
	m.statusAtCreate = order.Status
	clone := *order
	m.store[order.ID] = &clone
	return nil
}

func (m *mockOrderRepository) Update(order *model.Order) error {
	existing, ok := m.store[order.ID]
	if !ok {
		return model.ErrOrderNotFound
	}
	if existing.Version != order.Version-1 {
		return model.ErrOptimisticLock
	}
	clone := *order
	m.store[order.ID] = &clone
	return nil
}

func (m *mockOrderRepository) Find(id uuid.UUID) (*model.Order, error) {
	if order, ok := m.store[id]; ok {
		clone := *order
		return &clone, nil
	}
	return nil, model.ErrOrderNotFound
}

func (m *mockOrderRepository) FindByUser(userID string) ([]*model.Order, error) {
	var orders []*model.Order
	for _, order := range m.store {
		if order.UserID == userID {
			clone := *order
			orders = append(orders, &clone)
		}
	}
	return orders, nil
}

func (m *mockOrderRepository) FindAll() ([]*model.Order, error) {
	var orders []*model.Order
	for _, order := range m.store {
		clone := *order
		orders = append(orders, &clone)
	}
	return orders, nil
}

type decrementCall struct {
	ProductID uuid.UUID
	Quantity  int
}

var _ inventory.Client = &mockInventoryClient{}

type mockInventoryClient struct {
	products      map[uuid.UUID]inventory.Product
	unavailable   map[uuid.UUID]bool
	failDecrement map[uuid.UUID]bool
	decrements    []decrementCall
}

func newMockInventoryClient() *mockInventoryClient {
	return &mockInventoryClient{
		products:      make(map[uuid.UUID]inventory.Product),
		unavailable:   make(map[uuid.UUID]bool),
		failDecrement: make(map[uuid.UUID]bool),
	}
}

func (m *mockInventoryClient) addProduct(name string, priceCents int64, stock int) uuid.UUID {
	id := uuid.New()
	m.products[id] = inventory.Product{ID: id, Name: name, PriceCents: priceCents, StockQuantity: stock}
	return id
}

func (m *mockInventoryClient) FetchProduct(_ context.Context, _ string, id uuid.UUID) inventory.FetchResult {
	if product, ok := m.products[id]; ok {
		return inventory.FetchResult{Product: &product, Found: true}
	}
	return inventory.FetchResult{Reason: inventory.ReasonNotFound}
}

func (m *mockInventoryClient) CheckAvailability(_ context.Context, _ string, id uuid.UUID, quantity int) inventory.CheckResult {
	product, ok := m.products[id]
	if !ok || m.unavailable[id] || product.StockQuantity < quantity {
		return inventory.CheckResult{Reason: inventory.ReasonInsufficientStock}
	}
	return inventory.CheckResult{Available: true}
}

func (m *mockInventoryClient) DecrementStock(_ context.Context, _ string, id uuid.UUID, quantity int) inventory.DecrementResult {
	m.decrements = append(m.decrements, decrementCall{ProductID: id, Quantity: quantity})
	if m.failDecrement[id] {
		return inventory.DecrementResult{Reason: inventory.ReasonUnavailable}
	}
	return inventory.DecrementResult{Decremented: true}
}

func (m *mockInventoryClient) IncrementStock(_ context.Context, _ string, _ uuid.UUID, _ int) error {
	return nil
}

type mockEventDispatcher struct {
	events []service.Event
}

func (m *mockEventDispatcher) Dispatch(event service.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.events = nil
}
