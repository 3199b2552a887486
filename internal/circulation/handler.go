// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookledger/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the loan routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.handleLend)
		r.Get("/active", h.handleListActive)
		r.Get("/{id}", h.handleGetLoan)
		r.Post("/{id}/return", h.handleReturn)
	})
}

func (h *Handler) handleLend(w http.ResponseWriter, r *http.Request) {
	var req LendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	receipt, err := h.service.Lend(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	receipt, err := h.service.Return(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListActive(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}
