package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

func TestGiteaObtainRegistrationToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"token":"reg-123"}`))
	}))
	defer srv.Close()

	c := newGiteaClient(Config{Token: "secret", Repository: "o/r", APIURL: srv.URL, Timeout: 5 * time.Second})
	token, _, err := c.ObtainRegistrationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reg-123", token)
}

func TestGiteaCountPendingWorkBestEffortOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	c := newGiteaClient(Config{Token: "t", Repository: "o/r", APIURL: srv.URL, Timeout: time.Second})
	n, err := c.CountPendingWork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGiteaTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newGiteaClient(Config{Token: "t", Repository: "o/r", APIURL: srv.URL, Timeout: time.Second})
	_, _, err := c.ObtainRegistrationToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, taxonomy.TransientNetwork, taxonomy.KindOf(err))
}
