package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/skishop/reservation-service/internal/reservation/application"
	"github.com/skishop/reservation-service/internal/reservation/domain"
)

type Handler struct {
	log    *slog.Logger
	engine *application.Engine
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, engine *application.Engine) *Handler {
	return &Handler{
		log:    log,
		engine: engine,
		tracer: otel.Tracer("reservation-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/reservations", h.createReservation)
	r.Get("/reservations/{id}", h.getReservation)
	r.Post("/reservations/{id}/confirm", h.confirmReservation)
	r.Post("/reservations/{id}/cancel", h.cancelReservation)
	r.Post("/reservations/{id}/extend", h.extendReservation)
	r.Get("/customers/{id}/reservations", h.listByCustomer)
	r.Get("/equipment/{id}/reservations", h.listByEquipment)
	r.Get("/equipment/{id}/availability", h.availability)
	return r
}

type createReservationReq struct {
	EquipmentID string `json:"equipment_id"`
	ProductID   string `json:"product_id"`
	CustomerID  string `json:"customer_id"`
	Quantity    int    `json:"quantity"`
	TTLMinutes  int    `json:"ttl_minutes"`
}

type cancelReservationReq struct {
	ReasonCode string `json:"reason_code"`
}

type extendReservationReq struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateReservation")
	defer span.End()

	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Create(ctx, application.CreateParams{
		EquipmentID:    req.EquipmentID,
		ProductID:      req.ProductID,
		CustomerID:     req.CustomerID,
		Quantity:       req.Quantity,
		TTL:            time.Duration(req.TTLMinutes) * time.Minute,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeReservation(w, http.StatusCreated, res)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeReservation(w, http.StatusOK, res)
}

func (h *Handler) confirmReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmReservation")
	defer span.End()

	res, err := h.engine.Confirm(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeReservation(w, http.StatusOK, res)
}

func (h *Handler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelReservation")
	defer span.End()

	var req cancelReservationReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ReasonCode == "" {
		req.ReasonCode = "customer_request"
	}

	res, err := h.engine.Cancel(ctx, chi.URLParam(r, "id"), req.ReasonCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeReservation(w, http.StatusOK, res)
}

func (h *Handler) extendReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ExtendReservation")
	defer span.End()

	var req extendReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Extend(ctx, chi.URLParam(r, "id"), time.Duration(req.AdditionalMinutes)*time.Minute)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeReservation(w, http.StatusOK, res)
}

func (h *Handler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListByCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reservations": toViews(list)})
}

func (h *Handler) listByEquipment(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListByEquipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reservations": toViews(list)})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	eq, err := h.engine.Availability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id":       eq.ID,
		"product_id":         eq.ProductID,
		"warehouse_id":       eq.WarehouseID,
		"available_quantity": eq.Available,
		"reserved_quantity":  eq.Reserved,
		"pending_quantity":   eq.Pending,
		"rentable":           eq.Rentable(),
	})
}

type reservationView struct {
	ID          string     `json:"id"`
	EquipmentID string     `json:"equipment_id"`
	ProductID   string     `json:"product_id"`
	CustomerID  string     `json:"customer_id"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status"`
	ReasonCode  string     `json:"reason_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toView(res domain.Reservation) reservationView {
	return reservationView{
		ID:          res.ID,
		EquipmentID: res.EquipmentID,
		ProductID:   res.ProductID,
		CustomerID:  res.CustomerID,
		Quantity:    res.Quantity,
		Status:      string(res.Status),
		ReasonCode:  res.ReasonCode,
		CreatedAt:   res.CreatedAt,
		ExpiresAt:   res.ExpiresAt,
		ConfirmedAt: res.ConfirmedAt,
		CancelledAt: res.CancelledAt,
	}
}

func toViews(list []domain.Reservation) []reservationView {
	views := make([]reservationView, 0, len(list))
	for _, res := range list {
		views = append(views, toView(res))
	}
	return views
}

func (h *Handler) writeReservation(w http.ResponseWriter, status int, res domain.Reservation) {
	h.writeJSON(w, status, toView(res))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidStateTransition):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrEquipmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrConcurrentUpdateConflict),
		errors.Is(err, domain.ErrEquipmentUnavailable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}
