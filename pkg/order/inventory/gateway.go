package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HTTPGateway talks to the product service over REST, propagating the
// caller's bearer token. Every call is bounded by Timeout so a slow
// dependency can never block an order indefinitely.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type productDTO struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"priceCents"`
	StockQuantity int       `json:"stockQuantity"`
}

type stockCheckDTO struct {
	Available bool `json:"available"`
}

type quantityDTO struct {
	Quantity int `json:"quantity"`
}

func (g *HTTPGateway) FetchProduct(ctx context.Context, token string, id uuid.UUID) (*Product, error) {
	url := fmt.Sprintf("%s/api/v1/products/%s", g.baseURL, id)
	var dto productDTO
	if err := g.doJSON(ctx, token, http.MethodGet, url, nil, &dto); err != nil {
		return nil, err
	}
	return &Product{
		ID:            dto.ID,
		Name:          dto.Name,
		PriceCents:    dto.PriceCents,
		StockQuantity: dto.StockQuantity,
	}, nil
}

func (g *HTTPGateway) CheckAvailability(ctx context.Context, token string, id uuid.UUID, quantity int) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/products/%s/stock/check?quantity=%d", g.baseURL, id, quantity)
	var dto stockCheckDTO
	if err := g.doJSON(ctx, token, http.MethodGet, url, nil, &dto); err != nil {
		return false, err
	}
	return dto.Available, nil
}

func (g *HTTPGateway) DecrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error {
	url := fmt.Sprintf("%s/api/v1/products/%s/stock/decrement", g.baseURL, id)
	return g.doJSON(ctx, token, http.MethodPut, url, quantityDTO{Quantity: quantity}, nil)
}

func (g *HTTPGateway) IncrementStock(ctx context.Context, token string, id uuid.UUID, quantity int) error {
	url := fmt.Sprintf("%s/api/v1/products/%s/stock/increment", g.baseURL, id)
	return g.doJSON(ctx, token, http.MethodPut, url, quantityDTO{Quantity: quantity}, nil)
}

func (g *HTTPGateway) doJSON(ctx context.Context, token, method, url string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call product service %s %s", method, url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProductNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrInsufficientStock
	case resp.StatusCode >= 400:
		return errors.Errorf("product service returned status %d for %s %s", resp.StatusCode, method, url)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}
