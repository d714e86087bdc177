package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is the order service's read model of a product owned by the
// inventory side.
type Product struct {
	ID            uuid.UUID
	Name          string
	PriceCents    int64
	StockQuantity int
}

// FailureReason tags why a fallback value was substituted, so callers and
// tests can tell a missing product from an unreachable dependency even though
// current policy treats them alike for control flow.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonNotFound
	ReasonUnavailable
	ReasonTimeout
	ReasonBreakerOpen
	ReasonInsufficientStock
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNotFound:
		return "not found"
	case ReasonUnavailable:
		return "dependency unavailable"
	case ReasonTimeout:
		return "timeout"
	case ReasonBreakerOpen:
		return "breaker open"
	case ReasonInsufficientStock:
		return "insufficient stock"
	default:
		return "none"
	}
}

type FetchResult struct {
	Product *Product
	Found   bool
	Reason  FailureReason
}

type CheckResult struct {
	Available bool
	Reason    FailureReason
}

type DecrementResult struct {
	Decremented bool
	Reason      FailureReason
}

// Client is the resilient inventory client used by the order orchestrator.
// None of its methods returns an error for downstream trouble: every failure
// collapses to a safe fallback value tagged with its reason.
type Client interface {
	FetchProduct(ctx context.Context, token string, id uuid.UUID) FetchResult
	CheckAvailability(ctx context.Context, token string, id uuid.UUID, quantity int) CheckResult
	DecrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) DecrementResult
	IncrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error
}

// ProductGateway is the raw transport to the product service. Implementations
// return ErrProductNotFound for a missing product and ErrInsufficientStock for
// a refused decrement; any other error is a transport-level failure.
type ProductGateway interface {
	FetchProduct(ctx context.Context, token string, id uuid.UUID) (*Product, error)
	CheckAvailability(ctx context.Context, token string, id uuid.UUID, quantity int) (bool, error)
	DecrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error
}

func NewClient(gateway ProductGateway, breaker *Breaker) Client {
	return &client{gateway: gateway, breaker: breaker}
}

type client struct {
	gateway ProductGateway
	breaker *Breaker
}

func (c *client) FetchProduct(ctx context.Context, token string, id uuid.UUID) FetchResult {
	if err := c.breaker.Allow(); err != nil {
		c.logFallback("FetchProduct", id, ReasonBreakerOpen)
		return FetchResult{Reason: ReasonBreakerOpen}
	}

	product, err := c.gateway.FetchProduct(ctx, token, id)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
		return FetchResult{Product: product, Found: true}
	case errors.Is(err, ErrProductNotFound):
		// The dependency answered; a missing product is a healthy reply.
		c.breaker.RecordSuccess()
		return FetchResult{Reason: ReasonNotFound}
	default:
		c.breaker.RecordFailure()
		reason := classify(ctx, err)
		c.logFallback("FetchProduct", id, reason)
		return FetchResult{Reason: reason}
	}
}

func (c *client) CheckAvailability(ctx context.Context, token string, id uuid.UUID, quantity int) CheckResult {
	if err := c.breaker.Allow(); err != nil {
		c.logFallback("CheckAvailability", id, ReasonBreakerOpen)
		return CheckResult{Reason: ReasonBreakerOpen}
	}

	available, err := c.gateway.CheckAvailability(ctx, token, id, quantity)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
		return CheckResult{Available: available}
	case errors.Is(err, ErrProductNotFound):
		c.breaker.RecordSuccess()
		return CheckResult{Reason: ReasonNotFound}
	default:
		c.breaker.RecordFailure()
		reason := classify(ctx, err)
		c.logFallback("CheckAvailability", id, reason)
		// Fail closed: never claim stock is available when unsure.
		return CheckResult{Reason: reason}
	}
}

func (c *client) DecrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) DecrementResult {
	if err := c.breaker.Allow(); err != nil {
		c.logFallback("DecrementStock", id, ReasonBreakerOpen)
		return DecrementResult{Reason: ReasonBreakerOpen}
	}

	err := c.gateway.DecrementStock(ctx, token, id, quantity)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
		return DecrementResult{Decremented: true}
	case errors.Is(err, ErrInsufficientStock):
		c.breaker.RecordSuccess()
		return DecrementResult{Reason: ReasonInsufficientStock}
	case errors.Is(err, ErrProductNotFound):
		c.breaker.RecordSuccess()
		return DecrementResult{Reason: ReasonNotFound}
	default:
		c.breaker.RecordFailure()
		reason := classify(ctx, err)
		c.logFallback("DecrementStock", id, reason)
		return DecrementResult{Reason: reason}
	}
}

func (c *client) IncrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	if err := c.gateway.IncrementStock(ctx, token, id, quantity); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordFailure()
		}
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func classify(ctx context.Context, err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}

func (c *client) logFallback(op string, id uuid.UUID, reason FailureReason) {
	log.WithFields(log.Fields{
		"operation": op,
		"productId": id,
		"reason":    reason.String(),
		"breaker":   c.breaker.State().String(),
	}).Warn("inventory call fell back")
}
