package v1_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatmap/internal/testsupport"
)

func TestTrackerScriptAction(t *testing.T) {
	dm, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateTestApp(t, dm, &testsupport.FakeGenerator{})

	req := httptest.NewRequest(http.MethodGet, "http://collector.example/tracker.js", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	script := string(body)
	assert.Contains(t, script, `"http://collector.example/track"`)
	assert.Contains(t, script, "data-site-id")
	assert.Contains(t, script, "sendBeacon")
	assert.Contains(t, script, "keepalive: true")
	assert.NotContains(t, script, "{{")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	t.Run("matching ETag returns 304", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://collector.example/tracker.js", nil)
		req.Header.Set("If-None-Match", etag)

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("stale ETag returns the script", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://collector.example/tracker.js", nil)
		req.Header.Set("If-None-Match", `"stale"`)

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, etag, resp.Header.Get("ETag"))
	})
}

func TestTrackerScriptActionBaseURL(t *testing.T) {
	readScript := func(t *testing.T, resp *http.Response) string {
		t.Helper()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	t.Run("configured base URL wins over the Host header", func(t *testing.T) {
		dm, _ := testsupport.SetupTestDBManager(t)
		cfg := testsupport.TestConfig()
		cfg.PublicBaseURL = "https://collector.example/"
		app := testsupport.CreateTestAppWithConfig(t, cfg, dm, &testsupport.FakeGenerator{})

		req := httptest.NewRequest(http.MethodGet, "http://other.example/tracker.js", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, resp.Header.Get("Vary"), "Host")
		script := readScript(t, resp)
		assert.Contains(t, script, `"https://collector.example/track"`)
		assert.NotContains(t, script, "other.example")
	})

	t.Run("request host is escaped and varies the response", func(t *testing.T) {
		dm, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateTestApp(t, dm, &testsupport.FakeGenerator{})

		req := httptest.NewRequest(http.MethodGet, "http://collector.example/tracker.js", nil)
		req.Host = `evil.example"+alert(1)+"`
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Vary"), "Host")
		script := readScript(t, resp)
		assert.NotContains(t, script, `example"+alert(1)`)
		assert.Contains(t, script, `evil.example\"+alert(1)+\"/track`)
	})
}
