package http_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatmap/internal/testsupport"
)

func TestHealthIndexAction(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		dm, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateTestApp(t, dm, &testsupport.FakeGenerator{})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/_health", nil), 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeJSON(t, resp)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["db_status"])
		assert.NotEmpty(t, body["timestamp"])
	})

	t.Run("unreachable store is degraded", func(t *testing.T) {
		dm, _ := testsupport.FailingDBManager(t, errors.New("no servers"))
		app := testsupport.CreateTestApp(t, dm, &testsupport.FakeGenerator{})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/_health", nil), 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeJSON(t, resp)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "error", body["db_status"])
	})

	t.Run("HEAD is supported", func(t *testing.T) {
		dm, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateTestApp(t, dm, &testsupport.FakeGenerator{})

		resp, err := app.Test(httptest.NewRequest(http.MethodHead, "/_health", nil), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
