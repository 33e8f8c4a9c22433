package purchasing

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

// Handler exposes the purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/lines", h.replaceLines)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/receive", h.receive)
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
	QtyOrdered     int64  `json:"qty_ordered" validate:"gt=0"`
	UnitCost       string `json:"unit_cost"`
	Note           string `json:"note"`
}

type createRequest struct {
	Supplier string        `json:"supplier" validate:"max=200"`
	Note     string        `json:"note"`
	Lines    []lineRequest `json:"lines" validate:"min=1,dive"`
}

type receiveRequest struct {
	LocationID string `json:"location_id" validate:"required,uuid"`
	Lines      []struct {
		LineID string `json:"line_id" validate:"required,uuid"`
		Qty    int64  `json:"qty_received" validate:"gt=0"`
	} `json:"lines" validate:"min=1,dive"`
}

type orderResponse struct {
	PurchaseOrder
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
	return LineInput{Item: ref, QtyOrdered: r.QtyOrdered, UnitCost: cost, Note: r.Note}, nil
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
	lines := make([]LineInput, 0, len(req.Lines))
	for _, lr := range req.Lines {
		in, err := lr.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lines = append(lines, in)
	}
	po, created, err := h.service.Create(r.Context(), tenant, CreateInput{Supplier: req.Supplier, Note: req.Note, Lines: lines})
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse{PurchaseOrder: po, Lines: created})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	po, lines, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{PurchaseOrder: po, Lines: lines})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	filter := ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	}
	orders, pagination, err := h.service.List(r.Context(), tenant, filter)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": pagination})
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
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
	lines := make([]LineInput, 0, len(req.Lines))
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

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	locationID, _ := uuid.Parse(req.LocationID)
	input := ReceiveInput{LocationID: locationID}
	for _, lr := range req.Lines {
		lineID, _ := uuid.Parse(lr.LineID)
		input.Lines = append(input.Lines, ReceiveLineInput{LineID: lineID, Qty: lr.Qty})
	}
	status, err := h.service.Receive(r.Context(), tenant, id, input)
	if err != nil {
		h.logger.Error("receive purchase order", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": status})
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	if err := fn(r.Context(), tenant, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}
