package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(userAgent string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin/position", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func expectHit(mock redismock.ClientMock, key string, count int64) {
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(count)
	mock.ExpectExpireNX(key, time.Minute).SetVal(count == 1)
	mock.ExpectTxPipelineExec()
}

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	ctx := context.Background()
	key := "ratelimit:position:u1"

	expectHit(mock, key, 1)
	expectHit(mock, key, 2)
	expectHit(mock, key, 3)

	assert.True(t, limiter.Allow(ctx, key))
	assert.True(t, limiter.Allow(ctx, key))
	assert.False(t, limiter.Allow(ctx, key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_ExpiryFailureDoesNotLockOut(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 1, time.Minute)
	ctx := context.Background()
	key := "ratelimit:position:u1"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetErr(errors.New("READONLY"))
	mock.ExpectTxPipelineExec()

	// a counter left without a TTL gets one on its next hit
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	assert.True(t, limiter.Allow(ctx, key))
	assert.False(t, limiter.Allow(ctx, key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisDownAllows(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 1, time.Minute)

	mock.ExpectTxPipeline()
	mock.ExpectIncr("ratelimit:position:u1").SetErr(errors.New("connection refused"))

	assert.True(t, limiter.Allow(context.Background(), "ratelimit:position:u1"))
}

func TestRateLimiter_LimitByUser(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 1, time.Minute)

	auth := core.NewRecord(core.NewAuthCollection("users"))
	auth.Id = "u1"

	e := newEvent("")
	e.Auth = auth

	expectHit(mock, "ratelimit:position:u1", 2)

	err := limiter.Limit("position")(e)
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_LimitByIP(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 5, time.Minute)

	expectHit(mock, "ratelimit:position:10.0.0.1", 3)

	assert.NoError(t, limiter.Limit("position")(newEvent("")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_AntiBot(t *testing.T) {
	limiter := NewRateLimiter(nil, 0, time.Minute)

	err := limiter.AntiBot(newEvent("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	assert.NoError(t, limiter.AntiBot(newEvent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)")))
}
