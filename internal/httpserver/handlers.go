package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/logger"
	"github.com/dummy-library/server/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeEngineError maps engine and store errors to the error envelope.
// Serialization failures surface as 500 so clients know to retry.
func (h *handlers) writeEngineError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if de, ok := apperrors.AsDomain(err); ok {
		if h.metrics != nil {
			h.metrics.ObserveOperation(operation, string(de.Code))
		}
		apperrors.WriteError(w, de.Code, de.Message)
		return
	}
	if errors.Is(err, storage.ErrSerialization) {
		if h.metrics != nil {
			h.metrics.ObserveOperation(operation, "serialization_failure")
		}
		apperrors.WriteError(w, apperrors.ErrCodeSerializationFailure,
			"concurrent update conflict, please retry")
		return
	}
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Str("operation", operation).Msg("operation failed")
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, "error")
	}
	apperrors.WriteError(w, apperrors.ErrCodeInternalError, "internal server error")
}

func (h *handlers) observeSuccess(operation string) {
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, "success")
	}
}

func parsePage(r *http.Request) storage.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return storage.NewPagination(page, pageSize)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.BookFilter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Genre:  q.Get("genre"),
		Page:   parsePage(r),
	}

	books, total, err := h.store.ListBooks(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "list_books", err)
		return
	}

	dtos := make([]bookDTO, 0, len(books))
	for _, b := range books {
		dtos = append(dtos, toBookDTO(b))
	}
	writeJSON(w, http.StatusOK, newPageEnvelope(dtos, total, filter.Page))
}

func (h *handlers) borrowBook(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Borrow(r.Context(), userEmail(r), chi.URLParam(r, "isbn"))
	if err != nil {
		h.writeEngineError(w, r, "borrow", err)
		return
	}
	h.observeSuccess("borrow")
	writeJSON(w, http.StatusOK, toBorrowDTO(result))
}

func (h *handlers) returnBook(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Return(r.Context(), userEmail(r), chi.URLParam(r, "isbn"))
	if err != nil {
		h.writeEngineError(w, r, "return", err)
		return
	}
	h.observeSuccess("return")
	writeJSON(w, http.StatusOK, toBorrowDTO(result))
}

func (h *handlers) buyBook(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Buy(r.Context(), userEmail(r), chi.URLParam(r, "isbn"))
	if err != nil {
		h.writeEngineError(w, r, "buy", err)
		return
	}
	h.observeSuccess("buy")
	writeJSON(w, http.StatusOK, toPurchaseDTO(result))
}

func (h *handlers) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Cancel(r.Context(), userEmail(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "cancel", err)
		return
	}
	h.observeSuccess("cancel")
	writeJSON(w, http.StatusOK, toPurchaseDTO(result))
}
