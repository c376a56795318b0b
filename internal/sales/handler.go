package sales

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kipuventas/kipu/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/delivery/{token}", h.handleValidateDelivery)
	r.Get("/delivery/{token}", h.handleGetByToken)
	r.Get("/receipts", h.handleListReceipts)
	r.Get("/receipts/{code}", h.handleGetReceipt)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		filter.Status = Status(status)
	}
	if purchaser := q.Get("purchaser_id"); purchaser != "" {
		id, err := strconv.ParseInt(purchaser, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchaser_id must be an integer")
			return
		}
		filter.PurchaserID = id
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t.Add(24 * time.Hour)
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	sales, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	sale, err := h.service.Approve(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	// The body is optional; cancelling without a reason stays valid.
	var req CancelSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := h.service.Cancel(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	if err := h.service.Delete(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleValidateDelivery(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sale, err := h.service.ValidateDelivery(r.Context(), token)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleGetByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sale, err := h.service.GetByToken(r.Context(), token)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be an integer")
			return
		}
		limit = n
	}
	sales, err := h.service.ListReceipts(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sale, err := h.service.GetByReceiptCode(r.Context(), code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	var state *StateError
	switch {
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrReceiptNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.As(err, &state),
		errors.Is(err, ErrAlreadyDelivered),
		errors.Is(err, ErrSaleCancelled),
		errors.Is(err, ErrReceiptIssued):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrAddressRequired),
		errors.Is(err, ErrRUCRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("sales request failed", slog.Any("error", err))
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
