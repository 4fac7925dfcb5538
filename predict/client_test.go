package predict

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		body, _ := io.ReadAll(r.Body)
		// echo the payload reversed
		for i, j := 0, len(body)-1; i < j; i, j = i+1, j-1 {
			body[i], body[j] = body[j], body[i]
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Header("X-Api-Key", "secret"))
	require.NoError(t, err)
	out, err := c.Predict(context.Background(), []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 3, 2, 1}, out)
}

func TestPredictStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Predict(context.Background(), []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestPredictCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Predict(ctx, []byte{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("ftp://model")
	assert.Error(t, err)
	_, err = NewClient("http://model", HTTPClient(nil))
	assert.Error(t, err)
	_, err = NewClient("https://model/v1/predict")
	assert.NoError(t, err)
}
