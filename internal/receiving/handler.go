package receiving

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// Handler exposes the goods receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers goods receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/lines", h.replaceLines)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type lineRequest struct {
	ItemID         string `json:"item_id"`
	ItemIdentifier string `json:"item_identifier"`
	ItemName       string `json:"item_name"`
	UnitOfMeasure  string `json:"unit_of_measure"`
	AllowCreate    bool   `json:"allow_create"`
	Qty            int64  `json:"qty" validate:"gte=0"`
	UnitCost       string `json:"unit_cost"`
	Note           string `json:"note"`
}

type createRequest struct {
	LocationID string        `json:"location_id" validate:"omitempty,uuid"`
	Supplier   string        `json:"supplier" validate:"max=200"`
	Note       string        `json:"note"`
	Lines      []lineRequest `json:"lines" validate:"min=1,dive"`
}

type receiptResponse struct {
	GoodsReceipt
	Lines []Line `json:"lines"`
}

func (r lineRequest) toInput() (LineInput, error) {
	ref := catalog.Ref{
		Identifier:    r.ItemIdentifier,
		Name:          r.ItemName,
		UnitOfMeasure: r.UnitOfMeasure,
		AllowCreate:   r.AllowCreate,
	}
	if r.ItemID != "" {
		id, err := uuid.Parse(r.ItemID)
		if err != nil {
			return LineInput{}, shared.Validationf("invalid item_id")
		}
		ref.ID = id
	}
	cost := decimal.Zero
	if r.UnitCost != "" {
		var err error
		cost, err = decimal.NewFromString(r.UnitCost)
		if err != nil {
			return LineInput{}, shared.Validationf("invalid unit_cost %q", r.UnitCost)
		}
	}
	ref.Cost = cost
	return LineInput{Item: ref, Qty: r.Qty, UnitCost: cost, Note: r.Note}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{Supplier: req.Supplier, Note: req.Note}
	if req.LocationID != "" {
		input.LocationID, _ = uuid.Parse(req.LocationID)
	}
	for _, lr := range req.Lines {
		in, err := lr.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, in)
	}
	gr, lines, err := h.service.Create(r.Context(), tenant, input)
	if err != nil {
		h.logger.Error("create goods receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receiptResponse{GoodsReceipt: gr, Lines: lines})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return
	}
	gr, lines, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiptResponse{GoodsReceipt: gr, Lines: lines})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	receipts, pagination, err := h.service.List(r.Context(), tenant, ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.logger.Error("list goods receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": receipts, "pagination": pagination})
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return
	}
	var req struct {
		Lines []lineRequest `json:"lines" validate:"min=1,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var lines []LineInput
	for _, lr := range req.Lines {
		in, err := lr.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lines = append(lines, in)
	}
	replaced, err := h.service.ReplaceLines(r.Context(), tenant, id, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": replaced})
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return
	}
	var req struct {
		LocationID string `json:"location_id" validate:"omitempty,uuid"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	var input PostInput
	if req.LocationID != "" {
		input.LocationID, _ = uuid.Parse(req.LocationID)
	}
	if err := h.service.Post(r.Context(), tenant, id, input); err != nil {
		h.logger.Error("post goods receipt", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenant shared.Tenant, id uuid.UUID) error) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return
	}
	if err := fn(r.Context(), tenant, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}
