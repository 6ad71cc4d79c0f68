package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
)

func TestExecClient_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/execute", r.URL.Path)

		var req ExecRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req.Language)

		json.NewEncoder(w).Encode(ExecResult{Stdout: "42\n", ExitCode: 0})
	}))
	defer srv.Close()

	c := NewExecClient(srv.URL, 5*time.Second)
	res, err := c.Run(context.Background(), ExecRequest{Language: "python", SourceCode: "print(42)"})
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Stdout)
	assert.Zero(t, res.ExitCode)
}

func TestExecClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "runner pool exhausted", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewExecClient(srv.URL, 5*time.Second)
	_, err := c.Run(context.Background(), ExecRequest{Language: "go", SourceCode: "x"})
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestExecClient_Unreachable(t *testing.T) {
	c := NewExecClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := c.Run(context.Background(), ExecRequest{Language: "go", SourceCode: "x"})
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestOAuthClient_Exchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Profile{ID: "u-1", Name: "Alice"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOAuthClient(srv.URL+"/token", srv.URL+"/me", "cid", "secret", "http://localhost/cb")
	ex, err := c.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", ex.AccessToken)
	assert.Equal(t, "Alice", ex.Profile.Name)
}

func TestOAuthClient_EmptyCode(t *testing.T) {
	c := NewOAuthClient("http://x/token", "http://x/me", "cid", "secret", "")
	_, err := c.Exchange(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestOAuthClient_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad code", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOAuthClient(srv.URL, srv.URL, "cid", "secret", "")
	_, err := c.Exchange(context.Background(), "stale")
	require.ErrorIs(t, err, domain.ErrUpstream)
}
