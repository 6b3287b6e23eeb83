package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
)

type stubDeadLetters struct {
	filter    outbox.DLQFilter
	requeueID uuid.UUID
	actorID   uuid.UUID
	err       error
}

func (s *stubDeadLetters) List(_ context.Context, filter outbox.DLQFilter) ([]outbox.DeadLetterDTO, error) {
	s.filter = filter
	return []outbox.DeadLetterDTO{{ID: uuid.New(), ErrorReason: enums.OutboxDLQReasonMaxAttempts}}, s.err
}

func (s *stubDeadLetters) Requeue(_ context.Context, id, actorID uuid.UUID) (*outbox.RequeueResult, error) {
	s.requeueID = id
	s.actorID = actorID
	if s.err != nil {
		return nil, s.err
	}
	return &outbox.RequeueResult{DLQID: id, NewEventID: uuid.New()}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func requeueRequest(dlqID string, actorID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/outbox/dlq/"+dlqID+"/requeue", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("dlqId", dlqID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	return req.WithContext(middleware.WithUserID(ctx, actorID.String()))
}

func TestListDeadLettersParsesFilter(t *testing.T) {
	svc := &stubDeadLetters{}
	aggregateID := uuid.New()
	req := httptest.NewRequest(http.MethodGet,
		"/api/admin/v1/outbox/dlq?reason=non_retryable&aggregate_id="+aggregateID.String()+"&include_requeued=true&limit=10", nil)
	rec := httptest.NewRecorder()
	ListDeadLetters(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Reason)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, *svc.filter.Reason)
	require.NotNil(t, svc.filter.AggregateID)
	assert.Equal(t, aggregateID, *svc.filter.AggregateID)
	assert.True(t, svc.filter.IncludeRequeued)
	assert.Equal(t, 10, svc.filter.Limit)

	var body struct {
		Data struct {
			Entries []outbox.DeadLetterDTO `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data.Entries, 1)
}

func TestListDeadLettersRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"reason=gone", "aggregate_id=abc", "limit=500", "include_requeued=perhaps"} {
		t.Run(query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ListDeadLetters(&stubDeadLetters{}, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	svc := &stubDeadLetters{}
	dlqID := uuid.New()
	actorID := uuid.New()
	rec := httptest.NewRecorder()
	RequeueDeadLetter(svc, testLogger())(rec, requeueRequest(dlqID.String(), actorID))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, dlqID, svc.requeueID)
	assert.Equal(t, actorID, svc.actorID)
}

func TestRequeueDeadLetterErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RequeueDeadLetter(&stubDeadLetters{}, testLogger())(rec, requeueRequest("not-a-uuid", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &stubDeadLetters{err: pkgerrors.New(pkgerrors.CodeConflict, "dead letter already requeued")}
	rec = httptest.NewRecorder()
	RequeueDeadLetter(svc, testLogger())(rec, requeueRequest(uuid.NewString(), uuid.New()))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	RequeueDeadLetter(nil, testLogger())(rec, requeueRequest(uuid.NewString(), uuid.New()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
