package mysql

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"ecommerce/pkg/product/domain/model"
)

func NewProductRepository(db *sqlx.DB) model.ProductRepository {
	return &productRepository{db: db}
}

type productRepository struct {
	db *sqlx.DB
}

type productRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	PriceCents    int64     `db:"price_cents"`
	StockQuantity int       `db:"stock_quantity"`
	CreatedBy     string    `db:"created_by"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *productRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *productRepository) Create(product *model.Product) error {
	const query = `
		INSERT INTO products (id, name, description, price_cents, stock_quantity, created_by, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		product.ID.String(), product.Name, product.Description, product.PriceCents,
		product.StockQuantity, product.CreatedBy, product.Version, product.CreatedAt, product.UpdatedAt,
	)
	return errors.Wrapf(err, "insert product %s", product.ID)
}

func (r *productRepository) Update(product *model.Product) error {
	const query = `
		UPDATE products
		SET name = ?, description = ?, price_cents = ?, stock_quantity = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.Exec(query,
		product.Name, product.Description, product.PriceCents, product.StockQuantity,
		product.UpdatedAt, product.Version, product.ID.String(), product.Version-1,
	)
	if err != nil {
		return errors.Wrapf(err, "update product %s", product.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		var exists int
		err := r.db.Get(&exists, "SELECT 1 FROM products WHERE id = ?", product.ID.String())
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrProductNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "check product %s", product.ID)
		}
		return model.ErrOptimisticLock
	}
	return nil
}

func (r *productRepository) Find(id uuid.UUID) (*model.Product, error) {
	var row productRow
	err := r.db.Get(&row, "SELECT * FROM products WHERE id = ?", id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find product %s", id)
	}
	return hydrate(row)
}

func (r *productRepository) FindAll() ([]*model.Product, error) {
	var rows []productRow
	if err := r.db.Select(&rows, "SELECT * FROM products ORDER BY created_at"); err != nil {
		return nil, errors.Wrap(err, "find all products")
	}
	return hydrateAll(rows)
}

func (r *productRepository) SearchByName(name string) ([]*model.Product, error) {
	var rows []productRow
	err := r.db.Select(&rows, "SELECT * FROM products WHERE LOWER(name) LIKE LOWER(?) ORDER BY created_at", "%"+name+"%")
	if err != nil {
		return nil, errors.Wrapf(err, "search products by name %q", name)
	}
	return hydrateAll(rows)
}

func (r *productRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec("DELETE FROM products WHERE id = ?", id.String())
	return errors.Wrapf(err, "delete product %s", id)
}

// DecrementStock is the authoritative conditional decrement: a single atomic
// read-modify-write that refuses to take stock below zero. Concurrent orders
// racing on the same product are resolved here and nowhere else.
func (r *productRepository) DecrementStock(id uuid.UUID, quantity int) (int64, error) {
	const query = `
		UPDATE products
		SET stock_quantity = stock_quantity - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND stock_quantity >= ?`
	res, err := r.db.Exec(query, quantity, time.Now().UTC(), id.String(), quantity)
	if err != nil {
		return 0, errors.Wrapf(err, "decrement stock for product %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return affected, nil
}

func (r *productRepository) IsStockAvailable(id uuid.UUID, quantity int) (bool, error) {
	var available bool
	err := r.db.Get(&available, "SELECT stock_quantity >= ? FROM products WHERE id = ?", quantity, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.ErrProductNotFound
	}
	if err != nil {
		return false, errors.Wrapf(err, "check stock for product %s", id)
	}
	return available, nil
}

func hydrateAll(rows []productRow) ([]*model.Product, error) {
	products := make([]*model.Product, 0, len(rows))
	for _, row := range rows {
		product, err := hydrate(row)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func hydrate(row productRow) (*model.Product, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse product id %q", row.ID)
	}
	return &model.Product{
		ID:            id,
		Name:          row.Name,
		Description:   row.Description,
		PriceCents:    row.PriceCents,
		StockQuantity: row.StockQuantity,
		CreatedBy:     row.CreatedBy,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}
