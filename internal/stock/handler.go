package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kipuventas/kipu/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/lots", h.handleCreateLot)
	r.Get("/lots", h.handleListLots)
	r.Get("/lots/{id}", h.handleGetLot)
	r.Put("/lots/{id}", h.handleAdjustLot)
	r.Delete("/lots/{id}", h.handleDeleteLot)
	r.Get("/products/{id}/availability", h.handleAvailability)
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var input CreateLotInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lot, err := h.service.CreateLot(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	filter := LotFilter{}
	q := r.URL.Query()
	filter.Label = q.Get("label")
	if status := q.Get("status"); status != "" {
		filter.Status = LotStatus(status)
	}
	if product := q.Get("product_id"); product != "" {
		id, err := strconv.ParseInt(product, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be an integer")
			return
		}
		filter.ProductID = id
	}
	if minQty := q.Get("min_quantity"); minQty != "" {
		v, err := strconv.Atoi(minQty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "min_quantity must be an integer")
			return
		}
		filter.MinQuantity = &v
	}
	if maxQty := q.Get("max_quantity"); maxQty != "" {
		v, err := strconv.Atoi(maxQty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "max_quantity must be an integer")
			return
		}
		filter.MaxQuantity = &v
	}
	lots, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleAdjustLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	var input AdjustLotInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.LotID = id
	input.ActorID = actorID(r)
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lot, err := h.service.AdjustLot(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleDeleteLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	if err := h.service.DeleteLot(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	available, status, err := h.service.ProductAvailability(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"available":  available,
		"status":     status,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLotNotFound), errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrLotReferenced):
		httpx.Problem(w, http.StatusConflict, "Referenced", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
