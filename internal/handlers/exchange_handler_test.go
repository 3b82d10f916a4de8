package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendly/backend/internal/exchange"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/middleware"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/services"
	"github.com/lendly/backend/internal/store"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockExchanges struct {
	err error

	created  exchange.CreateRequestInput
	respond  exchange.RespondInput
	complete exchange.CompleteInput
	late     exchange.MarkLateInput
	cancelID uuid.UUID
	caller   uuid.UUID
}

var _ exchange.Service = (*mockExchanges)(nil)

func (m *mockExchanges) record(id uuid.UUID, status string) (*models.Exchange, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Exchange{ID: id, Status: status}, nil
}

func (m *mockExchanges) CreateRequest(_ context.Context, in exchange.CreateRequestInput) (*models.Exchange, error) {
	m.created = in
	return m.record(uuid.New(), models.ExchangeStatusRequested)
}

func (m *mockExchanges) Respond(_ context.Context, in exchange.RespondInput) (*models.Exchange, error) {
	m.respond = in
	return m.record(in.ExchangeID, models.ExchangeStatusAccepted)
}

func (m *mockExchanges) Complete(_ context.Context, in exchange.CompleteInput) (*models.Exchange, error) {
	m.complete = in
	return m.record(in.ExchangeID, models.ExchangeStatusCompleted)
}

func (m *mockExchanges) Cancel(_ context.Context, id, caller uuid.UUID) (*models.Exchange, error) {
	m.cancelID, m.caller = id, caller
	return m.record(id, models.ExchangeStatusCancelled)
}

func (m *mockExchanges) MarkLate(_ context.Context, in exchange.MarkLateInput) (*models.Exchange, error) {
	m.late = in
	return m.record(in.ExchangeID, models.ExchangeStatusAccepted)
}

func (m *mockExchanges) Get(_ context.Context, id, caller uuid.UUID) (*models.Exchange, error) {
	m.caller = caller
	return m.record(id, models.ExchangeStatusRequested)
}

func (m *mockExchanges) ListForUser(_ context.Context, uid uuid.UUID, _ int) ([]*models.Exchange, error) {
	m.caller = uid
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestHandler(t *testing.T, svc *mockExchanges) *ExchangeHandler {
	t.Helper()
	v, err := services.NewValidator()
	require.NoError(t, err)
	return &ExchangeHandler{Exchanges: svc, Validator: v}
}

func call(h http.HandlerFunc, uid uuid.UUID, id, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if uid != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), uid))
	}
	if id != "" {
		req.SetPathValue("id", id)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateExchange_Success(t *testing.T) {
	svc := &mockExchanges{}
	h := newTestHandler(t, svc)
	uid, item, owner := uuid.New(), uuid.New(), uuid.New()

	body := fmt.Sprintf(`{"item_id":%q,"item_owner_id":%q,"type":"borrow","proposed_price":20,"duration_days":7}`, item, owner)
	rec := call(h.CreateExchange, uid, "", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uid, svc.created.RequesterID)
	assert.Equal(t, item, svc.created.ItemID)
	assert.Equal(t, owner, svc.created.ItemOwnerID)
	require.NotNil(t, svc.created.ProposedPrice)
	assert.EqualValues(t, 20, *svc.created.ProposedPrice)

	var ex models.Exchange
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ex))
	assert.Equal(t, models.ExchangeStatusRequested, ex.Status)
}

func TestCreateExchange_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &mockExchanges{})
	rec := call(h.CreateExchange, uuid.Nil, "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateExchange_SchemaRejects(t *testing.T) {
	svc := &mockExchanges{}
	h := newTestHandler(t, svc)

	cases := map[string]string{
		"missing type":  fmt.Sprintf(`{"item_id":%q,"item_owner_id":%q}`, uuid.New(), uuid.New()),
		"bad uuid":      `{"item_id":"nope","item_owner_id":"nope","type":"borrow"}`,
		"unknown field": fmt.Sprintf(`{"item_id":%q,"item_owner_id":%q,"type":"borrow","x":1}`, uuid.New(), uuid.New()),
		"bad json":      `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(h.CreateExchange, uuid.New(), "", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, uuid.Nil, svc.created.RequesterID, "service must not be reached")
}

func TestExchangeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", exchange.ErrInvalidInput), http.StatusBadRequest},
		{exchange.ErrSelfRequest, http.StatusBadRequest},
		{exchange.ErrForbidden, http.StatusForbidden},
		{exchange.ErrItemNotFound, http.StatusNotFound},
		{exchange.ErrExchangeNotFound, http.StatusNotFound},
		{exchange.ErrDuplicateRequest, http.StatusConflict},
		{exchange.ErrItemUnavailable, http.StatusConflict},
		{fmt.Errorf("%w: exchange is completed", exchange.ErrInvalidTransition), http.StatusConflict},
		{ledger.ErrInsufficientBalance, http.StatusPaymentRequired},
		{store.ErrContention, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newTestHandler(t, &mockExchanges{err: tc.err})
			rec := call(h.Cancel, uuid.New(), uuid.NewString(), "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRespond_PassesPathAndCaller(t *testing.T) {
	svc := &mockExchanges{}
	h := newTestHandler(t, svc)
	owner, id := uuid.New(), uuid.New()

	rec := call(h.Respond, owner, id.String(), `{"action":"accept","message":"sure"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, svc.respond.ExchangeID)
	assert.Equal(t, owner, svc.respond.OwnerID)
	assert.Equal(t, exchange.ActionAccept, svc.respond.Action)

	rec = call(h.Respond, owner, id.String(), `{"action":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplete_RatingOptional(t *testing.T) {
	svc := &mockExchanges{}
	h := newTestHandler(t, svc)

	rec := call(h.Complete, uuid.New(), uuid.NewString(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, svc.complete.Rating)

	rec = call(h.Complete, uuid.New(), uuid.NewString(), `{"rating":5,"review":"great"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.complete.Rating)
	assert.Equal(t, 5, *svc.complete.Rating)

	rec = call(h.Complete, uuid.New(), uuid.NewString(), `{"rating":6}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkLate(t *testing.T) {
	svc := &mockExchanges{}
	h := newTestHandler(t, svc)

	rec := call(h.MarkLate, uuid.New(), uuid.NewString(), `{"days_late":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.late.DaysLate)

	rec = call(h.MarkLate, uuid.New(), uuid.NewString(), `{"days_late":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidPathID(t *testing.T) {
	h := newTestHandler(t, &mockExchanges{})
	rec := call(h.GetExchange, uuid.New(), "not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListExchanges_EmptyArray(t *testing.T) {
	h := newTestHandler(t, &mockExchanges{})
	rec := call(h.ListExchanges, uuid.New(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
