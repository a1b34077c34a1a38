package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/user/cae/internal/config"
	"github.com/user/cae/internal/hub"
	"github.com/user/cae/internal/testutil"
)

func TestServerRoutes(t *testing.T) {
	logger, _ := testutil.NewLogger(t)
	h := hub.New("tok", nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := New(&config.Config{Port: 8766}, h, api, logger)
	if srv.Addr() != "127.0.0.1:8766" {
		t.Fatalf("Addr() = %q", srv.Addr())
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/api/status", http.StatusTeapot},
		{"/ws", http.StatusUnauthorized},
		{"/", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s error = %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestServerStartStopsOnCancel(t *testing.T) {
	logger, _ := testutil.NewLogger(t)
	h := hub.New("tok", nil, logger)
	srv := New(&config.Config{Port: 0}, h, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
