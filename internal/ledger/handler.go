package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// Handler exposes the read side of the ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/levels", h.listLevels)
		r.Get("/levels/{itemID}/{locationID}", h.getLevel)
		r.Put("/levels/{itemID}/{locationID}/reorder-policy", h.setReorderPolicy)
		r.Get("/movements", h.listMovements)
		r.Get("/low-stock", h.lowStock)
		r.Get("/reconciliation", h.reconcile)
	})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func queryUUID(r *http.Request, name string) uuid.UUID {
	id, _ := uuid.Parse(r.URL.Query().Get(name))
	return id
}

func (h *Handler) getLevel(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	itemID, ok := parseUUIDParam(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	locationID, ok := parseUUIDParam(r, "locationID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
		return
	}
	lvl, err := h.service.GetLevel(r.Context(), tenant, itemID, locationID)
	if err != nil {
		h.logger.Error("get level", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lvl)
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	levels, pagination, err := h.service.ListLevels(r.Context(), tenant, LevelFilter{
		ItemID:     queryUUID(r, "item_id"),
		LocationID: queryUUID(r, "location_id"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list levels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": levels, "pagination": pagination})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	f := MovementFilter{
		ItemID:        queryUUID(r, "item_id"),
		LocationID:    queryUUID(r, "location_id"),
		ReferenceType: ReferenceType(r.URL.Query().Get("reference_type")),
		Page:          page,
		PerPage:       perPage,
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC 3339")
			return
		}
		f.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC 3339")
			return
		}
		f.To = t
	}
	movements, pagination, err := h.service.ListMovements(r.Context(), tenant, f)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements, "pagination": pagination})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	levels, err := h.service.LowStock(r.Context(), tenant)
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": levels})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	drifts, err := h.service.Reconcile(r.Context(), tenant)
	if err != nil {
		h.logger.Error("reconcile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": drifts, "clean": len(drifts) == 0})
}

type reorderPolicyRequest struct {
	ReorderPoint int64 `json:"reorder_point" validate:"gte=0"`
	ReorderQty   int64 `json:"reorder_qty" validate:"gte=0"`
}

func (h *Handler) setReorderPolicy(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	itemID, ok := parseUUIDParam(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	locationID, ok := parseUUIDParam(r, "locationID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
		return
	}
	var req reorderPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetReorderPolicy(r.Context(), tenant, itemID, locationID, req.ReorderPoint, req.ReorderQty); err != nil {
		h.logger.Error("set reorder policy", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}
