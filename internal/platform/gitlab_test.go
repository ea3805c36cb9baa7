package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitLabRegistrationTokenReturnedUnchanged(t *testing.T) {
	c := newGitLabClient(Config{Token: "glrt-configured-token", Repository: "123", Timeout: time.Second})

	token, expiry, err := c.ObtainRegistrationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "glrt-configured-token", token)
	assert.True(t, expiry.IsZero())
}

func TestGitLabListRunnersUsesPrivateTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "/api/v4/projects/42/runners", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"description":"runner-1","online":true,"status":"running"}]`))
	}))
	defer srv.Close()

	c := newGitLabClient(Config{Token: "secret", Repository: "42", APIURL: srv.URL, Timeout: 5 * time.Second})
	runners, err := c.ListRunners(context.Background())
	require.NoError(t, err)
	require.Len(t, runners, 1)
	assert.Equal(t, "runner-1", runners[0].Name)
	assert.Equal(t, "online", runners[0].Status)
	assert.True(t, runners[0].Busy)
}

func TestGitLabCountPendingWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"status":"pending"},{"status":"running"}]`))
	}))
	defer srv.Close()

	c := newGitLabClient(Config{Token: "t", Repository: "1", APIURL: srv.URL, Timeout: 5 * time.Second})
	n, err := c.CountPendingWork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGitLabPermanentErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	c := newGitLabClient(Config{Token: "t", Repository: "1", APIURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.CountPendingWork(context.Background())
	require.Error(t, err)
}
