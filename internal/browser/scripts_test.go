package browser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp/kb"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverCall(t *testing.T) {
	q := locator.Query{Parts: []locator.Part{{Engine: locator.EngineCSS, Selector: "#save"}}}

	expr, err := resolverCall("attr", q, "data-testid")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(expr, "(function(){\n"))
	assert.True(t, strings.HasSuffix(expr, "})()"))
	assert.Contains(t, expr, `return api.attr({"parts":[{"engine":"css","selector":"#save"}]},"data-testid");`)
	assert.Contains(t, expr, "var api = {")
}

func TestResolverCall_NilQuery(t *testing.T) {
	expr, err := resolverCall("snapshot", (*locator.Query)(nil))
	require.NoError(t, err)
	assert.Contains(t, expr, "return api.snapshot(null);")
}

func TestIsCookieConsentDismissText(t *testing.T) {
	accepted := []string{"akkoord", "accept", "tout accepter", "akzeptieren", "Akkoord", "ACCEPT ALL",
		"Tout Accepter", "  akkoord  ", "\taccept\n", "j'accepte", "j’accepte"}
	for _, text := range accepted {
		assert.True(t, IsCookieConsentDismissText(text), text)
	}

	rejected := []string{"", "   ", "accept this", "not akkoord", "bestellen", "login", "submit"}
	for _, text := range rejected {
		assert.False(t, IsCookieConsentDismissText(text), text)
	}
}

func TestCookieBannerScript(t *testing.T) {
	script := cookieBannerScript()
	assert.NotContains(t, script, "__CONFIG__")
	assert.Contains(t, script, "#onetrust-accept-btn-handler")
	assert.Contains(t, script, `"windowMs":10000`)
}

func TestKeyEvent(t *testing.T) {
	value, mods := keyEvent("Enter")
	assert.Equal(t, kb.Enter, value)
	assert.Empty(t, mods)

	value, mods = keyEvent("a")
	assert.Equal(t, "a", value)
	assert.Empty(t, mods)

	value, mods = keyEvent("Control+Shift+ArrowLeft")
	assert.Equal(t, kb.ArrowLeft, value)
	assert.Equal(t, []input.Modifier{input.ModifierCtrl, input.ModifierShift}, mods)

	value, mods = keyEvent("+")
	assert.Equal(t, "+", value)
	assert.Empty(t, mods)
}

func TestNetworkMonitor_Idle(t *testing.T) {
	m := newNetworkMonitor()
	m.handle(&network.EventRequestWillBeSent{RequestID: "1", Request: &network.Request{Method: "GET"}})
	assert.Zero(t, m.idleFor())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.waitIdle(ctx, 10*time.Millisecond), context.DeadlineExceeded)

	m.handle(&network.EventLoadingFinished{RequestID: "1"})
	require.NoError(t, m.waitIdle(context.Background(), 20*time.Millisecond))
}

func TestNetworkMonitor_Trace(t *testing.T) {
	m := newNetworkMonitor()
	path := filepath.Join(t.TempDir(), "traces", "run.trace.json")

	require.Error(t, m.stopTrace(path))
	require.NoError(t, m.startTrace())
	require.Error(t, m.startTrace())

	m.handle(&network.EventRequestWillBeSent{RequestID: "7", Request: &network.Request{Method: "POST"}})
	m.handle(&network.EventResponseReceived{
		RequestID: "7",
		Type:      network.ResourceTypeFetch,
		Response:  &network.Response{URL: "https://app.test/api", Status: 201, MimeType: "application/json"},
	})
	m.handle(&network.EventLoadingFinished{RequestID: "7"})
	require.NoError(t, m.stopTrace(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var trace struct {
		Responses []TraceEntry `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(data, &trace))
	require.Len(t, trace.Responses, 1)
	assert.Equal(t, "https://app.test/api", trace.Responses[0].URL)
	assert.Equal(t, "POST", trace.Responses[0].Method)
	assert.Equal(t, int64(201), trace.Responses[0].Status)
	assert.Equal(t, "Fetch", trace.Responses[0].Type)
}
