package adjustments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// Handler exposes the adjustment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/lines", h.replaceLines)
		r.Post("/{id}/approve", h.approve)
		r.Delete("/{id}", h.delete)
	})
}

type lineRequest struct {
	ItemID         string `json:"item_id"`
	ItemIdentifier string `json:"item_identifier"`
	AllowCreate    bool   `json:"allow_create"`
	QtyExpected    int64  `json:"qty_expected" validate:"gte=0"`
	QtyActual      int64  `json:"qty_actual" validate:"gte=0"`
	Note           string `json:"note"`
}

type createRequest struct {
	LocationID string        `json:"location_id" validate:"required,uuid"`
	Reason     string        `json:"reason" validate:"max=500"`
	Lines      []lineRequest `json:"lines" validate:"min=1,dive"`
}

type adjustmentResponse struct {
	Adjustment
	Lines []Line `json:"lines"`
}

func (r lineRequest) toInput() (LineInput, error) {
	ref := catalog.Ref{Identifier: r.ItemIdentifier, AllowCreate: r.AllowCreate}
	if r.ItemID != "" {
		id, err := uuid.Parse(r.ItemID)
		if err != nil {
			return LineInput{}, shared.Validationf("invalid item_id")
		}
		ref.ID = id
	}
	return LineInput{Item: ref, QtyExpected: r.QtyExpected, QtyActual: r.QtyActual, Note: r.Note}, nil
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
	locationID, _ := uuid.Parse(req.LocationID)
	input := CreateInput{LocationID: locationID, Reason: req.Reason}
	for _, lr := range req.Lines {
		in, err := lr.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, in)
	}
	adj, lines, err := h.service.Create(r.Context(), tenant, input)
	if err != nil {
		h.logger.Error("create adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustmentResponse{Adjustment: adj, Lines: lines})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, lines, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustmentResponse{Adjustment: adj, Lines: lines})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	adjustments, pagination, err := h.service.List(r.Context(), tenant, ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": adjustments, "pagination": pagination})
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
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

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	if err := h.service.Approve(r.Context(), tenant, id); err != nil {
		h.logger.Error("approve adjustment", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
