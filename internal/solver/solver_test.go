package solver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solvegate/solvegate/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc_Solve(t *testing.T) {
	s := Func(func(ctx context.Context, tsk *task.Task) (string, error) {
		return "token-" + tsk.ID, nil
	})

	tsk := task.New(task.TypeTurnstile, "https://example.com", "key")
	token, err := s.Solve(context.Background(), tsk)

	require.NoError(t, err)
	assert.Equal(t, "token-"+tsk.ID, token)
}

func TestRemote_Solve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/solve", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "remote-token"}`))
	}))
	defer srv.Close()

	s := NewRemote(srv.URL)
	tsk := task.New(task.TypeTurnstile, "https://example.com", "key")

	token, err := s.Solve(context.Background(), tsk)

	require.NoError(t, err)
	assert.Equal(t, "remote-token", token)
}

func TestRemote_Solve_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("browser pool exhausted"))
	}))
	defer srv.Close()

	s := NewRemote(srv.URL)
	tsk := task.New(task.TypeTurnstile, "https://example.com", "key")

	_, err := s.Solve(context.Background(), tsk)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRemote_Solve_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "", "error": "challenge not rendered"}`))
	}))
	defer srv.Close()

	s := NewRemote(srv.URL)
	tsk := task.New(task.TypeTurnstile, "https://example.com", "key")

	_, err := s.Solve(context.Background(), tsk)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge not rendered")
}

func TestRemote_Solve_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	s := NewRemote(srv.URL)
	tsk := task.New(task.TypeTurnstile, "https://example.com", "key")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Solve(ctx, tsk)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
