// internal/membership/handler.go
package membership

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

// Mount registers the person routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/people", func(r chi.Router) {
		r.Post("/", h.handleRegisterPerson)
		r.Get("/", h.handleListPeople)
		r.Get("/{id}", h.handleGetPerson)
		r.Delete("/{id}", h.handleDeletePerson)
	})
}

func (h *Handler) handleRegisterPerson(w http.ResponseWriter, r *http.Request) {
	var req NewPerson
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	person, err := h.service.RegisterPerson(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, person)
}

func (h *Handler) handleListPeople(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.LimitParam(r, defaultListLimit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	people, err := h.service.ListPeople(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, people)
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	person, err := h.service.GetPerson(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, person)
}

func (h *Handler) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.service.DeletePerson(r.Context(), id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
