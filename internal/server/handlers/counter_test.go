package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tallyd/tallyd/internal/errors"
)

// stubService returns canned results so handler behavior can be tested
// without a store.
type stubService struct {
	count   uint64
	err     error
	lastKey string
}

func (s *stubService) Increment(ctx context.Context, clientKey string) (uint64, error) {
	s.lastKey = clientKey
	return s.count, s.err
}

func (s *stubService) Read(ctx context.Context, clientKey string) (uint64, error) {
	s.lastKey = clientKey
	return s.count, s.err
}

func TestIncrementWritesCount(t *testing.T) {
	h := NewCounter(&stubService{count: 7})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.Increment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body CounterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, uint64(7), body.Count)
}

func TestReadWritesCount(t *testing.T) {
	h := NewCounter(&stubService{count: 3})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Read(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body CounterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, uint64(3), body.Count)
}

func TestIncrementErrorUsesEnvelope(t *testing.T) {
	h := NewCounter(&stubService{err: apperrors.NewRateLimited("too many requests")})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.Increment(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeRateLimited, body.Error.Code)
	assert.Equal(t, "too many requests", body.Error.Message)
}

func TestClientKeyStripsPort(t *testing.T) {
	svc := &stubService{}
	h := NewCounter(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:54321"
	h.Read(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", svc.lastKey)
}

func TestClientKeyFallsBackToRawAddr(t *testing.T) {
	svc := &stubService{}
	h := NewCounter(svc)

	// RealIP rewrites RemoteAddr to a bare IP with no port.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9"
	h.Read(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", svc.lastKey)
}
