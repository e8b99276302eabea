package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/money"
	"github.com/dummy-library/server/internal/storage"
)

func (h *handlers) adminWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.store.GetWallet(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "admin_wallet", err)
		return
	}
	balance, err := h.store.WalletBalance(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "admin_wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, walletDTO{
		ID:               wallet.ID,
		BalanceCents:     balance,
		BalanceFormatted: money.Format(balance),
		MilestoneReached: wallet.MilestoneReached,
	})
}

func (h *handlers) adminMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.MovementFilter{
		Kind: q.Get("type"),
		Page: parsePage(r),
	}
	if filter.Kind != "" && filter.Kind != "credit" && filter.Kind != "debit" {
		apperrors.WriteError(w, apperrors.ErrCodeValidationError, "type must be credit or debit")
		return
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		apperrors.WriteError(w, apperrors.ErrCodeValidationError, "from must be an RFC 3339 timestamp")
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		apperrors.WriteError(w, apperrors.ErrCodeValidationError, "to must be an RFC 3339 timestamp")
		return
	}

	movements, total, err := h.store.ListMovements(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "admin_movements", err)
		return
	}
	dtos := make([]movementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, toMovementDTO(m))
	}
	writeJSON(w, http.StatusOK, newPageEnvelope(dtos, total, filter.Page))
}

func (h *handlers) adminJobs(w http.ResponseWriter, r *http.Request) {
	filter := storage.JobFilter{
		Status: storage.JobStatus(r.URL.Query().Get("status")),
		Page:   parsePage(r),
	}

	jobs, total, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "admin_jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, newPageEnvelope(jobs, total, filter.Page))
}

// adminRetryJob resurrects a FAILED or CANCELED job: attempts reset, slot
// key recomputed, run immediately on the next poll.
func (h *handlers) adminRetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.ResetJobForRetry(r.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			apperrors.WriteError(w, apperrors.ErrCodeJobNotFound,
				"no failed or canceled job with that id")
		case errors.Is(err, storage.ErrDuplicateKey):
			apperrors.WriteError(w, apperrors.ErrCodeJobNotRetryable,
				"an active job already holds this slot")
		default:
			h.writeEngineError(w, r, "admin_retry_job", err)
		}
		return
	}

	job, err := h.store.GetJobByID(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, "admin_retry_job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handlers) adminEmails(w http.ResponseWriter, r *http.Request) {
	emails, total, err := h.store.ListEmails(r.Context(), parsePage(r))
	if err != nil {
		h.writeEngineError(w, r, "admin_emails", err)
		return
	}
	writeJSON(w, http.StatusOK, newPageEnvelope(emails, total, parsePage(r)))
}

func (h *handlers) adminEvents(w http.ResponseWriter, r *http.Request) {
	events, total, err := h.store.ListEvents(r.Context(), parsePage(r))
	if err != nil {
		h.writeEngineError(w, r, "admin_events", err)
		return
	}
	writeJSON(w, http.StatusOK, newPageEnvelope(events, total, parsePage(r)))
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
