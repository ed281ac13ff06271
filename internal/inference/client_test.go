package inference

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/domain"
)

func TestProbe_AnyResponseIsReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PredictPath, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, time.Second)
	assert.NoError(t, c.Probe(context.Background()))
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, time.Second, time.Second).Probe(context.Background())

	var unavailable *domain.ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Equal(t, url+PredictPath, unavailable.URL)
}

func TestPredict_RelaysVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"Quantity": 6, "Country": "France"}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "missing UnitPrice"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, time.Second).
		Predict(context.Background(), []byte(`{"Quantity": 6, "Country": "France"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, `{"error": "missing UnitPrice"}`, string(resp.Body))
}

func TestPredict_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, time.Second, 30*time.Millisecond).Predict(context.Background(), []byte(`{}`))

	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
