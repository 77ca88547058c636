package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"retail-dashboard/internal/config"
	"retail-dashboard/internal/services"
)

const products = `name,section,Product Position,Promotion,Seasonal,price,Sales Volume
BASIC PUFFER JACKET,MAN,Aisle,Yes,No,19.99,2823
FLORAL DRESS,WOMAN,Aisle,Yes,Yes,39.95,1500
`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	if err := os.WriteFile(path, []byte(products), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog := services.NewCatalog(&services.FileSource{Path: path}, quiet)
	page := func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("page")) }
	return NewServer(services.NewDashboard(catalog), catalog, quiet, &TemplateHandlers{Dashboard: page})
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/admin/stats", http.StatusOK},
		{http.MethodPost, "/admin/reload", http.StatusOK},
		{http.MethodGet, "/admin/reload", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/options", http.StatusOK},
		{http.MethodGet, "/api/products", http.StatusOK},
		{http.MethodGet, "/api/summary", http.StatusOK},
		{http.MethodGet, "/api/group-sum", http.StatusOK},
		{http.MethodGet, "/api/value-counts", http.StatusOK},
		{http.MethodGet, "/api/top", http.StatusOK},
		{http.MethodGet, "/api/stats", http.StatusOK},
		{http.MethodGet, "/api/export.csv", http.StatusOK},
		{http.MethodGet, "/api/export.xlsx", http.StatusOK},
		{http.MethodGet, "/sse/dashboard", http.StatusOK},
		{http.MethodGet, "/sse/reset", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{
		ReadTimeout:     time.Second,
		ShutdownTimeout: 2 * time.Second,
	}}
}

func TestGracefulServer_Run(t *testing.T) {
	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	gs := NewGracefulServer(httpServer, quiet, testConfig())

	var stopped, hooked atomic.Bool
	gs.RunInBackground(func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})
	gs.RegisterShutdownHook(func(ctx context.Context) error {
		hooked.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if !stopped.Load() {
		t.Error("background task was not cancelled")
	}
	if !hooked.Load() {
		t.Error("shutdown hook was not called")
	}
}

func TestGracefulServer_BackgroundFailure(t *testing.T) {
	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	gs := NewGracefulServer(httpServer, quiet, testConfig())

	boom := errors.New("boom")
	gs.RunInBackground(func(ctx context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := gs.Run(ctx); !errors.Is(err, boom) {
		t.Errorf("expected background error, got %v", err)
	}
}
