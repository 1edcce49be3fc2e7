package router

import (
	"Go_Drop/internal/handler"
	"Go_Drop/utils"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func TestInitRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := InitRouter(Deps{
		Auth:        utils.NewTokenAuth("secret", time.Hour),
		Share:       handler.NewShareHandler(nil, nil, "http://drop.test", zap.NewNop()),
		Access:      handler.NewAccessHandler(nil, nil, nil, zap.NewNop()),
		AccessLimit: handler.NewIPRateLimiter(10, 10),
		DB:          okPinger{},
		Logger:      zap.NewNop(),
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/share", http.StatusUnauthorized},
		{http.MethodGet, "/api/share/abc", http.StatusUnauthorized},
		{http.MethodGet, "/api/access", http.StatusBadRequest},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, w.Code)
		}
	}
}
