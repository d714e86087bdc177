package service

import (
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ecommerce/pkg/product/domain/model"
)

var (
	ErrInvalidQuantity = stderrors.New("quantity must be a positive number")
	ErrInvalidPrice    = stderrors.New("price cannot be negative")
	ErrInvalidStock    = stderrors.New("stock quantity cannot be negative")
)

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(event Event) error
}

// NewProduct is a candidate product as submitted by an administrator.
type NewProduct struct {
	Name          string
	Description   string
	PriceCents    int64
	StockQuantity int
}

type ProductService interface {
	ListProducts() ([]*model.Product, error)
	GetProduct(id uuid.UUID) (*model.Product, error)
	CreateProduct(candidate NewProduct, createdBy string) (*model.Product, error)
	UpdateProduct(id uuid.UUID, details NewProduct) (*model.Product, error)
	DeleteProduct(id uuid.UUID) error
	SearchProducts(name string) ([]*model.Product, error)

	CheckStockAvailability(id uuid.UUID, quantity int) (bool, error)
	DecrementStock(id uuid.UUID, quantity int) error
	IncrementStock(id uuid.UUID, quantity int) error
}

func NewProductService(repo model.ProductRepository, dispatcher EventDispatcher) ProductService {
	return &productService{repo: repo, dispatcher: dispatcher}
}

type productService struct {
	repo       model.ProductRepository
	dispatcher EventDispatcher
}

func (s *productService) ListProducts() ([]*model.Product, error) {
	return s.repo.FindAll()
}

func (s *productService) GetProduct(id uuid.UUID) (*model.Product, error) {
	return s.repo.Find(id)
}

func (s *productService) CreateProduct(candidate NewProduct, createdBy string) (*model.Product, error) {
	if candidate.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if candidate.StockQuantity < 0 {
		return nil, ErrInvalidStock
	}

	productID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &model.Product{
		ID:            productID,
		Name:          candidate.Name,
		Description:   candidate.Description,
		PriceCents:    candidate.PriceCents,
		StockQuantity: candidate.StockQuantity,
		CreatedBy:     createdBy,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(product); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"productId": productID, "createdBy": createdBy}).Info("product created")
	_ = s.dispatcher.Dispatch(model.ProductCreated{ProductID: productID, Name: product.Name, CreatedBy: createdBy})
	return product, nil
}

func (s *productService) UpdateProduct(id uuid.UUID, details NewProduct) (*model.Product, error) {
	if details.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if details.StockQuantity < 0 {
		return nil, ErrInvalidStock
	}

	product, err := s.repo.Find(id)
	if err != nil {
		return nil, err
	}

	product.Name = details.Name
	product.Description = details.Description
	product.PriceCents = details.PriceCents
	product.StockQuantity = details.StockQuantity

	if err := s.updateProduct(product); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.ProductUpdated{ProductID: id})
	return product, nil
}

func (s *productService) DeleteProduct(id uuid.UUID) error {
	if _, err := s.repo.Find(id); err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}

	_ = s.dispatcher.Dispatch(model.ProductDeleted{ProductID: id})
	return nil
}

func (s *productService) SearchProducts(name string) ([]*model.Product, error) {
	return s.repo.SearchByName(name)
}

func (s *productService) CheckStockAvailability(id uuid.UUID, quantity int) (bool, error) {
	if quantity < 1 {
		return false, ErrInvalidQuantity
	}
	return s.repo.IsStockAvailable(id, quantity)
}

// DecrementStock performs the authoritative conditional decrement. Zero
// changed rows means insufficient stock or a product that no longer exists;
// the follow-up lookup only serves the human-readable error.
func (s *productService) DecrementStock(id uuid.UUID, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	rows, err := s.repo.DecrementStock(id, quantity)
	if err != nil {
		return err
	}
	if rows == 0 {
		product, err := s.repo.Find(id)
		if err != nil {
			return err
		}
		return errors.Wrapf(model.ErrInsufficientStock,
			"product %q has %d in stock, requested %d", product.Name, product.StockQuantity, quantity)
	}

	log.WithFields(log.Fields{"productId": id, "quantity": quantity}).Info("stock decremented")
	_ = s.dispatcher.Dispatch(model.StockDecremented{ProductID: id, Quantity: quantity})
	return nil
}

// IncrementStock restocks a product. Manual administrative path; never
// invoked during order creation.
func (s *productService) IncrementStock(id uuid.UUID, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	product, err := s.repo.Find(id)
	if err != nil {
		return err
	}
	product.StockQuantity += quantity

	if err := s.updateProduct(product); err != nil {
		return err
	}

	_ = s.dispatcher.Dispatch(model.StockIncremented{ProductID: id, Quantity: quantity})
	return nil
}

func (s *productService) updateProduct(product *model.Product) error {
	product.Version++
	product.UpdatedAt = time.Now().UTC()
	return s.repo.Update(product)
}
