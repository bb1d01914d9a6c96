package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/browser"
	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/jobs"
	"github.com/copyleftdev/uitest/internal/server"
	"github.com/copyleftdev/uitest/internal/steps"
)

const savePage = `<!DOCTYPE html>
<html><head><title>Profile</title></head>
<body>
  <main>
    <h1>Profile</h1>
    <button class="btn" data-testid="save"
      onclick="document.getElementById('status').textContent='Saved successfully'">Save</button>
    <p id="status" role="status"></p>
  </main>
</body></html>`

const saveTest = `name: save profile
steps:
  - action: navigate
    url: %s
  - action: click
    target:
      value: ".btn"
      kind: css
      source: manual
`

// This drives the whole serve workflow against a real Chrome: a job is
// submitted over HTTP, the runner replays the test in a shared browser and
// the rewritten test file is read back.
func TestImproveJobWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chromedp test in short mode")
	}

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, savePage)
	}))
	defer site.Close()

	cfg := config.Default()
	cfg.Browser.MaxSessions = 1
	logger := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := browser.Verify(ctx, cfg.Browser, logger); err != nil {
		t.Skipf("Chrome not available: %v", err)
	}

	testFile := filepath.Join(t.TempDir(), "save.yaml")
	require.NoError(t, os.WriteFile(testFile, []byte(fmt.Sprintf(saveTest, site.URL)), 0o644))

	browsers := browser.NewManager(cfg.Browser, logger)
	defer browsers.Shutdown(context.Background())
	runner := improve.NewRunner(cfg, logger, improve.WithLauncher(improve.ManagerLauncher(browsers)))
	jm := jobs.NewManager(cfg, runner, logger)
	defer jm.Shutdown(context.Background())
	api := httptest.NewServer(server.NewRouter(cfg, jm, logger))
	defer api.Close()

	body := fmt.Sprintf(`{"testFile":%q,"apply":true,"provider":"playwright","assertionSource":"snapshot-native"}`, testFile)
	resp, err := http.Post(api.URL+"/api/v1/improve", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))

	var job gjson.Result
	require.Eventually(t, func() bool {
		resp, err := http.Get(api.URL + "/api/v1/improve/" + submitted.JobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		job = gjson.ParseBytes(raw)
		return job.Get("status").String() == string(jobs.StatusCompleted) ||
			job.Get("status").String() == string(jobs.StatusFailed)
	}, 60*time.Second, 250*time.Millisecond)

	require.Equal(t, string(jobs.StatusCompleted), job.Get("status").String(), job.Get("error").String())
	assert.Equal(t, int64(1), job.Get("report.summary.improved").Int())
	assert.Equal(t, testFile, job.Get("outputPath").String())
	assert.FileExists(t, improve.DefaultReportPath(testFile))

	saved, err := steps.ReadFile(testFile)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(saved.Steps), 2)
	click, ok := saved.Steps[1].(steps.Click)
	require.True(t, ok)
	assert.Equal(t, steps.KindLocatorExpression, click.Target.Kind)
	assert.NotEqual(t, ".btn", click.Target.Value)
}
