package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"deskly/internal/reservations/service"
	"deskly/pkg/auth"
	httputil "deskly/pkg/http"
	"deskly/pkg/logger"
	"deskly/pkg/model"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

type bookRequest struct {
	WorkspaceID string         `json:"workspace_id"`
	Interval    model.Interval `json:"interval"`
}

type rescheduleRequest struct {
	Interval model.Interval `json:"interval"`
}

func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeUnauthenticated(w, "Book")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Book", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	reservation, err := h.service.Book(r.Context(), caller.UserID, req.WorkspaceID, req.Interval)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Book", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, reservation); err != nil {
		h.log.Error("failed to write created response", "handler", "Book", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	reservation, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// ListMine returns the caller's reservations, newest interval first. With
// ?active=true only currently active ones are returned, unpaginated.
func (h *ReservationHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeUnauthenticated(w, "ListMine")
		return
	}

	if r.URL.Query().Get("active") == "true" {
		reservations, err := h.service.ListActiveByOwner(r.Context(), caller.UserID)
		if err != nil {
			if writeErr := httputil.WriteError(w, err); writeErr != nil {
				h.log.Error("failed to write error response", "handler", "ListMine", "operation", "WriteError", "error", writeErr)
			}
			return
		}
		if err := httputil.WriteSuccess(w, reservations); err != nil {
			h.log.Error("failed to write success response", "handler", "ListMine", "operation", "WriteSuccess", "error", err)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	reservations, total, err := h.service.ListByOwner(r.Context(), caller.UserID, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) ListByWorkspace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	workspaceID := ps.ByName("id")

	reservations, err := h.service.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByWorkspace", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, reservations); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByWorkspace", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) ListInRange(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rng, err := httputil.ExtractInterval(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListInRange", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListInRange", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	reservations, total, err := h.service.ListInRange(r.Context(), rng, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListInRange", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListInRange", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeUnauthenticated(w, "Reschedule")
		return
	}

	id := ps.ByName("id")

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reschedule", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	reservation, err := h.service.Reschedule(r.Context(), caller, id, req.Interval)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reschedule", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "Reschedule", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeUnauthenticated(w, "Cancel")
		return
	}

	id := ps.ByName("id")

	if _, err := h.service.Cancel(r.Context(), caller, id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) writeUnauthenticated(w http.ResponseWriter, handlerName string) {
	if writeErr := httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Error: "Authentication required",
	}); writeErr != nil {
		h.log.Error("failed to write JSON response", "handler", handlerName, "operation", "WriteJSON", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Book)
	router.GET("/api/v1/reservations", h.ListMine)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
	router.PATCH("/api/v1/reservations/id/:id", h.Reschedule)
	router.DELETE("/api/v1/reservations/id/:id", h.Cancel)
	router.GET("/api/v1/reservations/workspace/:id", h.ListByWorkspace)
	router.GET("/api/v1/reservations/range", h.ListInRange)
}
