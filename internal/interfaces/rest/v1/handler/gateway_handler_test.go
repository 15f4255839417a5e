package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/hub"
	"callcenter-gateway/internal/infrastructure/logger"
)

func newRouter(gw *gateway.Gateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewGatewayHandler(gw, logger.NewNopLogger())
	router.POST("/api/v1/broadcast", h.Broadcast)
	router.GET("/gateway/status", h.Status)
	return router
}

func TestBroadcast(t *testing.T) {
	gw := gateway.New()
	require.NoError(t, gw.Start())
	defer gw.Stop(context.Background())

	a := &fakeConnection{id: "ws-a"}
	b := &fakeConnection{id: "ws-b"}
	gw.OnOpen(a)
	gw.OnOpen(b)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/broadcast", strings.NewReader(`{"message":"queue 3 waiting"}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(gw).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["delivered"])
	assert.Equal(t, float64(0), body["failed"])
	assert.Equal(t, []string{"queue 3 waiting"}, a.sent)
	assert.Equal(t, []string{"queue 3 waiting"}, b.sent)
}

func TestBroadcast_RejectsInvalidBody(t *testing.T) {
	gw := gateway.New()
	require.NoError(t, gw.Start())
	defer gw.Stop(context.Background())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/broadcast", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(gw).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcast_GatewayStopped(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/broadcast", strings.NewReader(`{"message":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(gateway.New()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	gw := gateway.New()
	require.NoError(t, gw.Start())
	defer gw.Stop(context.Background())
	gw.OnOpen(&fakeConnection{id: "ws-a"})

	rec := httptest.NewRecorder()
	newRouter(gw).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gateway/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["gateway_running"])
	assert.Equal(t, float64(1), body["connections"])
}

type fakeConnection struct {
	id     string
	closed bool
	sent   []string
}

var _ hub.Connection = (*fakeConnection)(nil)

func (f *fakeConnection) ID() string { return f.id }
func (f *fakeConnection) Send(text string) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeConnection) Close() error             { f.closed = true; return nil }
func (f *fakeConnection) IsClosed() bool           { return f.closed }
func (f *fakeConnection) Context() context.Context { return context.Background() }
