package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ecommerce/pkg/order/domain/model"
	"ecommerce/pkg/order/domain/service"
)

// Router exposes the order API. Authentication and role checks happen at the
// gateway; this layer only trusts the identity headers it forwards.
func Router(orderService service.OrderService) http.Handler {
	r := mux.NewRouter()
	s := r.PathPrefix("/api/v1").Subrouter()

	h := &handler{service: orderService}
	s.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	s.HandleFunc("/orders", h.listAllOrders).Methods(http.MethodGet)
	s.HandleFunc("/orders/my", h.listMyOrders).Methods(http.MethodGet)
	s.HandleFunc("/orders/{ID}", h.getOrder).Methods(http.MethodGet)
	s.HandleFunc("/orders/{ID}/status", h.updateStatus).Methods(http.MethodPatch)
	s.HandleFunc("/orders/{ID}/cancel", h.cancelOrder).Methods(http.MethodPost)

	return logMiddleware(r)
}

type handler struct {
	service service.OrderService
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	PriceCents  int64     `json:"priceCents"`
	Quantity    int       `json:"quantity"`
}

type orderResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     string              `json:"userId"`
	Username   string              `json:"username"`
	Status     string              `json:"status"`
	TotalCents int64               `json:"totalCents"`
	Items      []orderItemResponse `json:"items"`
	OrderDate  time.Time           `json:"orderDate"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	Version    int                 `json:"version"`
}

type createOrderRequest struct {
	Items []struct {
		ProductID uuid.UUID `json:"productId"`
		Quantity  int       `json:"quantity"`
	} `json:"items"`
}

type createOrderResponse struct {
	orderResponse
	PartiallyReserved bool        `json:"partiallyReserved"`
	FailedProducts    []uuid.UUID `json:"failedProducts,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	username := r.Header.Get("X-Username")
	if userID == "" {
		http.Error(w, "missing subject identity", http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	candidate := service.NewOrder{}
	for _, item := range req.Items {
		candidate.Items = append(candidate.Items, service.NewOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.service.CreateOrder(r.Context(), candidate, userID, username, bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		orderResponse:     toOrderResponse(result.Order),
		PartiallyReserved: result.PartiallyReserved,
		FailedProducts:    result.FailedProducts,
	})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "missing subject identity", http.StatusUnauthorized)
		return
	}
	orders, err := h.service.ListOrdersForUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAllOrders()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	status, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateStatus(id, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.CancelOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["ID"])
	if err != nil {
		http.Error(w, "malformed order id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func toOrderResponses(orders []*model.Order) []orderResponse {
	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, toOrderResponse(order))
	}
	return responses
}

func toOrderResponse(order *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			PriceCents:  item.PriceCents,
			Quantity:    item.Quantity,
		})
	}
	return orderResponse{
		ID:         order.ID,
		UserID:     order.UserID,
		Username:   order.Username,
		Status:     string(order.Status),
		TotalCents: order.TotalCents,
		Items:      items,
		OrderDate:  order.OrderDate,
		UpdatedAt:  order.UpdatedAt,
		Version:    order.Version,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, service.ErrProductUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrOrderAlreadyCancelled),
		errors.Is(err, service.ErrOrderDelivered):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrOptimisticLock):
		http.Error(w, "order was modified concurrently, retry", http.StatusConflict)
	case errors.Is(err, service.ErrOrderIsEmpty),
		errors.Is(err, service.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.WithField("err", err).Error("unhandled error in order handler")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithField("err", err).Error("write response")
	}
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
