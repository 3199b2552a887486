// internal/catalog/handler.go
package catalog

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

// Mount registers the catalog routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/books", func(r chi.Router) {
		r.Post("/", h.handleRegisterBook)
		r.Get("/", h.handleListBooks)
		r.Get("/available", h.handleListAvailable)
		r.Get("/unavailable", h.handleListUnavailable)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetBook)
			r.Get("/history", h.handleHistory)
			r.Put("/publisher", h.handleReassignPublisher)
			r.Put("/quantity", h.handleAdjustQuantity)
			r.Delete("/", h.handleDeleteBook)
		})
	})
	r.Post("/publishers", h.handleAddPublisher)
	r.Put("/publishers/{id}/books", h.handleBulkReassign)
	r.Get("/stock", h.handleStock)
}

func (h *Handler) handleRegisterBook(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	book, err := h.service.RegisterBook(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.LimitParam(r, defaultListLimit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	books, err := h.service.ListBooks(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListAvailable(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleListUnavailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListUnavailable(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleReassignPublisher(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req struct {
		PublisherID int64 `json:"publisher_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	book, err := h.service.ReassignPublisher(r.Context(), id, req.PublisherID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleAdjustQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	book, err := h.service.AdjustQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddPublisher(w http.ResponseWriter, r *http.Request) {
	var req NewPublisher
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.AddPublisher(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleBulkReassign(w http.ResponseWriter, r *http.Request) {
	oldID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req struct {
		PublisherID int64 `json:"publisher_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	res, err := h.service.BulkReassignPublisher(r.Context(), oldID, req.PublisherID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.Stock(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
