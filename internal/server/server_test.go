package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/callerctx"
	"github.com/smallbiznis/flashsale/internal/config"
	shopdomain "github.com/smallbiznis/flashsale/internal/shop/domain"
	voucherdomain "github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeVoucherService struct {
	result   voucherdomain.AdmissionResult
	err      error
	callerID snowflake.ID
	publish  voucherdomain.PublishVoucherRequest
}

func (f *fakeVoucherService) Seckill(ctx context.Context, voucherID snowflake.ID) (voucherdomain.AdmissionResult, error) {
	f.callerID, _ = callerctx.UserIDFromContext(ctx)
	return f.result, f.err
}

func (f *fakeVoucherService) PublishVoucher(ctx context.Context, req voucherdomain.PublishVoucherRequest) (voucherdomain.SeckillVoucher, error) {
	f.publish = req
	if f.err != nil {
		return voucherdomain.SeckillVoucher{}, f.err
	}
	return voucherdomain.SeckillVoucher{VoucherID: req.VoucherID, Stock: req.Stock}, nil
}

type shopMock struct {
	mock.Mock
}

func (m *shopMock) Create(ctx context.Context, req shopdomain.ShopRequest) (shopdomain.Shop, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(shopdomain.Shop), args.Error(1)
}

func (m *shopMock) GetByID(ctx context.Context, id snowflake.ID) (shopdomain.Shop, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(shopdomain.Shop), args.Error(1)
}

func (m *shopMock) Update(ctx context.Context, id snowflake.ID, req shopdomain.ShopRequest) (shopdomain.Shop, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(shopdomain.Shop), args.Error(1)
}

func (m *shopMock) Warm(ctx context.Context, id snowflake.ID, ttl time.Duration) error {
	return m.Called(ctx, id, ttl).Error(0)
}

type testServer struct {
	engine   *gin.Engine
	vouchers *fakeVoucherService
	shops    *shopMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := callerctx.NewSessionStore(rdb)
	require.NoError(t, sessions.Save(context.Background(), "token-1", callerctx.Caller{ID: 1001, NickName: "ana"}))

	vouchers := &fakeVoucherService{}
	shops := &shopMock{}

	srv := NewServer(ServerParams{
		Gin:        NewEngine(nil),
		Cfg:        config.Config{Environment: "test"},
		Sessions:   sessions,
		VoucherSvc: vouchers,
		ShopSvc:    shops,
	})
	return &testServer{engine: srv.Engine(), vouchers: vouchers, shops: shops}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("authorization", token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Type
}

func TestSeckill_Admitted(t *testing.T) {
	ts := newTestServer(t)
	ts.vouchers.result = voucherdomain.AdmissionResult{Outcome: voucherdomain.OutcomeAdmitted, OrderID: 42}

	rec := ts.do(http.MethodPost, "/api/vouchers/seckill/7", "token-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":"42"}`, rec.Body.String())
	assert.Equal(t, snowflake.ID(1001), ts.vouchers.callerID)
}

func TestSeckill_Outcomes(t *testing.T) {
	cases := []struct {
		name    string
		outcome voucherdomain.Outcome
		err     error
		status  int
		errType string
	}{
		{name: "duplicate", outcome: voucherdomain.OutcomeDuplicate, status: http.StatusConflict, errType: "already_purchased"},
		{name: "out of stock", outcome: voucherdomain.OutcomeOutOfStock, status: http.StatusGone, errType: "sold_out"},
		{name: "rate limited", err: voucherdomain.ErrRateLimited, status: http.StatusTooManyRequests, errType: "rate_limited"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.vouchers.result = voucherdomain.AdmissionResult{Outcome: tc.outcome}
			ts.vouchers.err = tc.err

			rec := ts.do(http.MethodPost, "/api/vouchers/seckill/7", "token-1", nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.errType, errorType(t, rec))
		})
	}
}

func TestSeckill_RequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/vouchers/seckill/7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/vouchers/seckill/7", "unknown-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSeckill_InvalidVoucherID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/vouchers/seckill/abc", "token-1", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))
}

func TestPublishVoucher(t *testing.T) {
	ts := newTestServer(t)
	begin := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := ts.do(http.MethodPost, "/api/vouchers", "", map[string]any{
		"voucher_id": "9",
		"stock":      100,
		"begin_time": begin,
		"end_time":   begin.Add(time.Hour),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(9), ts.vouchers.publish.VoucherID)
	assert.Equal(t, 100, ts.vouchers.publish.Stock)
	assert.True(t, begin.Equal(ts.vouchers.publish.BeginTime))
}

func TestPublishVoucher_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.vouchers.err = voucherdomain.ErrInvalidStock

	rec := ts.do(http.MethodPost, "/api/vouchers", "", map[string]any{"stock": 0})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Errors, 1)
	assert.Equal(t, "invalid_stock", resp.Error.Errors[0].Code)
	assert.Equal(t, "stock", resp.Error.Errors[0].Field)
}

func TestShopRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.shops.On("GetByID", mock.Anything, snowflake.ID(1)).Return(shopdomain.Shop{ID: 1, Name: "Noodle Bar"}, nil)
	ts.shops.On("GetByID", mock.Anything, snowflake.ID(2)).Return(shopdomain.Shop{}, shopdomain.ErrShopNotFound)
	ts.shops.On("Update", mock.Anything, snowflake.ID(1), mock.MatchedBy(func(req shopdomain.ShopRequest) bool {
		return req.Name == "Noodle Bar 2" && req.Score == 47
	})).Return(shopdomain.Shop{ID: 1, Name: "Noodle Bar 2", Score: 47}, nil)
	ts.shops.On("Update", mock.Anything, snowflake.ID(1), shopdomain.ShopRequest{}).Return(shopdomain.Shop{}, shopdomain.ErrInvalidName)

	rec := ts.do(http.MethodGet, "/api/shops/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Noodle Bar")

	rec = ts.do(http.MethodGet, "/api/shops/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/shops/zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/api/shops/1", "", map[string]any{"name": "Noodle Bar 2", "score": 47})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Noodle Bar 2")

	rec = ts.do(http.MethodPut, "/api/shops/1", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.shops.AssertExpectations(t)
}

func TestHealthAndFallback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec))
}
