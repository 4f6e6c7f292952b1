package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/artha-pos/artha-pos/internal/platform/httpx"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	reports   *Reports
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, reports *Reports) *Handler {
	return &Handler{logger: logger, service: service, reports: reports, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/adjustments", h.handleHistory)
		r.Post("/adjustments", h.handleAdjustment)
		r.Get("/products/{productID}/movements", h.handleMovements)
	})
}

type adjustmentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Type      string  `json:"type" validate:"required,oneof=in out adjustment damage correction"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	Reason    string  `json:"reason" validate:"max=255"`
	Notes     string  `json:"notes"`
}

// handleAdjustment covers manual adjustments and stock corrections. For a
// correction the quantity is the new stock level, matching the operator flow.
func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	input := MutationInput{
		ProductID: req.ProductID,
		Type:      AdjustmentType(req.Type),
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Notes:     req.Notes,
		UserID:    actor,
	}

	var (
		adj Adjustment
		err error
	)
	switch input.Type {
	case TypeCorrection:
		adj, err = h.service.SetStock(r.Context(), req.ProductID, req.Quantity, req.Reason, actor)
	case TypeIn:
		adj, err = h.service.AddStock(r.Context(), input)
	default:
		adj, err = h.service.ReduceStock(r.Context(), input)
	}
	if err != nil {
		h.logger.Error("post adjustment failed", slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("product_id", adj.ProductID),
		slog.String("type", string(adj.Type)),
		slog.Float64("quantity_after", adj.QuantityAfter))
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Summary(r.Context())
	if err != nil {
		h.logger.Error("inventory summary failed", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	entries, err := h.reports.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("adjustment history failed", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": entries})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Product", "product id must be a positive integer")
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	movement, err := h.reports.ProductMovement(r.Context(), productID, from, to)
	if err != nil {
		h.logger.Error("product movement failed", slog.Int64("product_id", productID), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidType):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Adjustment", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func parseHistoryFilter(r *http.Request) (HistoryFilter, error) {
	q := r.URL.Query()
	filter := HistoryFilter{
		ReferenceType: q.Get("reference_type"),
		Type:          AdjustmentType(q.Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return HistoryFilter{}, errors.New("unknown adjustment type")
	}
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return HistoryFilter{}, errors.New("product_id must be an integer")
		}
		filter.ProductID = id
	}
	if v := q.Get("reference_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return HistoryFilter{}, errors.New("reference_id must be an integer")
		}
		filter.ReferenceID = id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return HistoryFilter{}, errors.New("limit must be an integer")
		}
		filter.Limit = limit
	}
	var err error
	filter.From, filter.To, err = parseDateRange(r)
	if err != nil {
		return HistoryFilter{}, err
	}
	return filter, nil
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	var from, to time.Time
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		// End of day so the whole date is included.
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}
