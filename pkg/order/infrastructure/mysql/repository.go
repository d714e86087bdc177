package mysql

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"ecommerce/pkg/order/domain/model"
)

func NewOrderRepository(db *sqlx.DB) model.OrderRepository {
	return &orderRepository{db: db}
}

type orderRepository struct {
	db *sqlx.DB
}

type orderRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Username   string    `db:"username"`
	Status     string    `db:"status"`
	TotalCents int64     `db:"total_cents"`
	OrderDate  time.Time `db:"order_date"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
}

type orderItemRow struct {
	ID          string `db:"id"`
	OrderID     string `db:"order_id"`
	ProductID   string `db:"product_id"`
	ProductName string `db:"product_name"`
	PriceCents  int64  `db:"price_cents"`
	Quantity    int    `db:"quantity"`
	Position    int    `db:"position"`
}

func (r *orderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *orderRepository) Create(order *model.Order) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "begin create order tx")
	}
	defer tx.Rollback() //nolint:errcheck

	const insertOrder = `
		INSERT INTO orders (id, user_id, username, status, total_cents, order_date, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.Exec(insertOrder,
		order.ID.String(), order.UserID, order.Username, string(order.Status),
		order.TotalCents, order.OrderDate, order.UpdatedAt, order.Version,
	); err != nil {
		return errors.Wrapf(err, "insert order %s", order.ID)
	}

	const insertItem = `
		INSERT INTO order_items (id, order_id, product_id, product_name, price_cents, quantity, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, item := range order.Items {
		if _, err := tx.Exec(insertItem,
			item.ID.String(), order.ID.String(), item.ProductID.String(),
			item.ProductName, item.PriceCents, item.Quantity, i,
		); err != nil {
			return errors.Wrapf(err, "insert order item %s", item.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit create order tx")
}

// Update writes the order row guarded by its previous version. Items are
// immutable after creation and are not touched here.
func (r *orderRepository) Update(order *model.Order) error {
	const query = `
		UPDATE orders
		SET status = ?, total_cents = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.Exec(query,
		string(order.Status), order.TotalCents, order.UpdatedAt, order.Version,
		order.ID.String(), order.Version-1,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %s", order.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		var exists int
		err := r.db.Get(&exists, "SELECT 1 FROM orders WHERE id = ?", order.ID.String())
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "check order %s", order.ID)
		}
		return model.ErrOptimisticLock
	}
	return nil
}

func (r *orderRepository) Find(id uuid.UUID) (*model.Order, error) {
	var row orderRow
	err := r.db.Get(&row, "SELECT * FROM orders WHERE id = ?", id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return r.hydrate(row)
}

func (r *orderRepository) FindByUser(userID string) ([]*model.Order, error) {
	var rows []orderRow
	err := r.db.Select(&rows, "SELECT * FROM orders WHERE user_id = ? ORDER BY order_date DESC", userID)
	if err != nil {
		return nil, errors.Wrapf(err, "find orders for user %s", userID)
	}
	return r.hydrateAll(rows)
}

func (r *orderRepository) FindAll() ([]*model.Order, error) {
	var rows []orderRow
	err := r.db.Select(&rows, "SELECT * FROM orders ORDER BY order_date DESC")
	if err != nil {
		return nil, errors.Wrap(err, "find all orders")
	}
	return r.hydrateAll(rows)
}

func (r *orderRepository) hydrateAll(rows []orderRow) ([]*model.Order, error) {
	orders := make([]*model.Order, 0, len(rows))
	for _, row := range rows {
		order, err := r.hydrate(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *orderRepository) hydrate(row orderRow) (*model.Order, error) {
	orderID, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse order id %q", row.ID)
	}

	var itemRows []orderItemRow
	err = r.db.Select(&itemRows, "SELECT * FROM order_items WHERE order_id = ? ORDER BY position", row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "load items for order %s", row.ID)
	}

	items := make([]model.OrderItem, 0, len(itemRows))
	for _, itemRow := range itemRows {
		itemID, err := uuid.Parse(itemRow.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "parse item id %q", itemRow.ID)
		}
		productID, err := uuid.Parse(itemRow.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "parse product id %q", itemRow.ProductID)
		}
		items = append(items, model.OrderItem{
			ID:          itemID,
			ProductID:   productID,
			ProductName: itemRow.ProductName,
			PriceCents:  itemRow.PriceCents,
			Quantity:    itemRow.Quantity,
		})
	}

	return &model.Order{
		ID:         orderID,
		UserID:     row.UserID,
		Username:   row.Username,
		Status:     model.OrderStatus(row.Status),
		TotalCents: row.TotalCents,
		Items:      items,
		OrderDate:  row.OrderDate,
		UpdatedAt:  row.UpdatedAt,
		Version:    row.Version,
	}, nil
}
