package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// DeadLetterService is the slice of outbox.DLQService the admin routes use.
type DeadLetterService interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]outbox.DeadLetterDTO, error)
	Requeue(ctx context.Context, id, actorID uuid.UUID) (*outbox.RequeueResult, error)
}

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable")

// ListDeadLetters shows events the relay gave up on.
func ListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errServiceUnavailable)
			return
		}
		filter, err := parseDLQFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": entries})
	}
}

// RequeueDeadLetter puts a dead letter back on the outbox for another publish.
func RequeueDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errServiceUnavailable)
			return
		}
		actorID, err := middleware.ActorIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dlqID, err := validators.ParsePathUUID(r, "dlqId", "dead letter id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Requeue(r.Context(), dlqID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func parseDLQFilter(r *http.Request) (outbox.DLQFilter, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return outbox.DLQFilter{}, err
	}
	includeRequeued, err := validators.ParseQueryBool(r, "include_requeued")
	if err != nil {
		return outbox.DLQFilter{}, err
	}
	filter := outbox.DLQFilter{Limit: limit, IncludeRequeued: includeRequeued}

	if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
		reason, err := enums.ParseOutboxDLQErrorReason(raw)
		if err != nil {
			return outbox.DLQFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid reason").
				WithDetails(map[string]string{"reason": "must be max_attempts or non_retryable"})
		}
		filter.Reason = &reason
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("aggregate_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return outbox.DLQFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid aggregate_id").
				WithDetails(map[string]string{"aggregate_id": "must be a uuid"})
		}
		filter.AggregateID = &id
	}
	return filter, nil
}
