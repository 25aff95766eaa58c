package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "showwatch-test/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><body>programm</body></html>"))
	}))
	t.Cleanup(server.Close)

	g := New(Config{UserAgent: "showwatch-test/1.0"})
	body, err := g.Get(context.Background(), server.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "programm")
}

func TestGetNon2xxIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(server.Close)

	g := New(Config{})
	_, err := g.Get(context.Background(), server.URL)
	require.Error(t, err)
}

func TestGetCanceledContext(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	t.Cleanup(func() {
		close(blocked)
		server.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(Config{})
	_, err := g.Get(ctx, server.URL)
	require.ErrorIs(t, err, context.Canceled)
}
