package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"deskly/internal/workspaces/service"
	apperrors "deskly/pkg/errors"
	httputil "deskly/pkg/http"
	"deskly/pkg/logger"
	"deskly/pkg/middleware"
	"deskly/pkg/model"
)

type WorkspaceHandler struct {
	service      service.WorkspaceService
	availability service.AvailabilityService
	log          *logger.Logger
}

func NewWorkspaceHandler(
	service service.WorkspaceService,
	availability service.AvailabilityService,
	log *logger.Logger,
) *WorkspaceHandler {
	return &WorkspaceHandler{
		service:      service,
		availability: availability,
		log:          log,
	}
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var workspace model.Workspace
	if err := json.NewDecoder(r.Body).Decode(&workspace); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), &workspace); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, workspace); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *WorkspaceHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	workspace, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, workspace); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// GetAll lists workspaces, paginated. With ?active=true only bookable
// workspaces are returned, unpaginated, name ascending.
func (h *WorkspaceHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.URL.Query().Get("active") == "true" {
		workspaces, err := h.service.GetAllActive(r.Context())
		if err != nil {
			if writeErr := httputil.WriteError(w, err); writeErr != nil {
				h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
			}
			return
		}
		if err := httputil.WriteSuccess(w, workspaces); err != nil {
			h.log.Error("failed to write success response", "handler", "GetAll", "operation", "WriteSuccess", "error", err)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	workspaces, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, workspaces, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var updates model.WorkspaceUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Update(r.Context(), id, &updates); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Update", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *WorkspaceHandler) Deactivate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Deactivate", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

// FindAvailable lists workspaces free for the whole interval. With
// min_capacity set, only workspaces seating that many, largest first.
func (h *WorkspaceHandler) FindAvailable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	interval, err := httputil.ExtractInterval(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "FindAvailable", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var workspaces []*model.Workspace
	if capacityStr := r.URL.Query().Get("min_capacity"); capacityStr != "" {
		minCapacity, convErr := strconv.Atoi(capacityStr)
		if convErr != nil {
			if writeErr := httputil.WriteError(w, apperrors.InvalidCapacity("min_capacity must be an integer")); writeErr != nil {
				h.log.Error("failed to write error response", "handler", "FindAvailable", "operation", "WriteError", "error", writeErr)
			}
			return
		}
		workspaces, err = h.availability.FindAvailableWithCapacity(r.Context(), interval, minCapacity)
	} else {
		workspaces, err = h.availability.FindAvailable(r.Context(), interval)
	}
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "FindAvailable", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, workspaces); err != nil {
		h.log.Error("failed to write success response", "handler", "FindAvailable", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WorkspaceHandler) CheckAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	interval, err := httputil.ExtractInterval(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckAvailability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	available, err := h.availability.IsAvailable(r.Context(), id, interval)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckAvailability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]bool{"available": available}); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WorkspaceHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/workspaces", middleware.RequireAdmin(h.Create))
	router.GET("/api/v1/workspaces", h.GetAll)
	router.GET("/api/v1/workspaces/id/:id", h.GetByID)
	router.PATCH("/api/v1/workspaces/id/:id", middleware.RequireAdmin(h.Update))
	router.DELETE("/api/v1/workspaces/id/:id", middleware.RequireAdmin(h.Deactivate))
	router.GET("/api/v1/workspaces/available", h.FindAvailable)
	router.GET("/api/v1/workspaces/id/:id/availability", h.CheckAvailability)
}
