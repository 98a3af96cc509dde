package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient(t *testing.T) {
	t.Run("Default User-Agent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "esplus/"+Version(), r.Header.Get("User-Agent"), "User-Agent should match expected format")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		timeout := 5 * time.Second
		client := HTTPClient(timeout, nil)
		assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
		assert.NotNil(t, client.Transport, "Transport should not be nil")

		req, err := http.NewRequest("GET", server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Custom Headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "okhttp/3.12.1", r.Header.Get("User-Agent"))
			assert.Equal(t, "esb-mobile-app", r.Header.Get("X-Requested-From"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := HTTPClient(time.Second, map[string]string{
			"user-agent":       "okhttp/3.12.1",
			"x-requested-from": "esb-mobile-app",
		})

		req, err := http.NewRequest("GET", server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("X-Other", "kept")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "kept", req.Header.Get("X-Other"))
		assert.Empty(t, req.Header.Get("X-Requested-From"), "original request should not be modified")
	})
}
