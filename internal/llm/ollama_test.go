package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/config"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(config.LLMConfig{
		BaseURL:         url + "/",
		Model:           "gemma3:4b",
		Timeout:         timeout,
		MaxOutputTokens: 100,
	}, zap.NewNop())
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]any{"message": map[string]any{"role": "assistant", "content": content}})
	return string(body)
}

func sampleRequest() RankRequest {
	return RankRequest{
		StepAction:         "click",
		CurrentCandidateID: "current-1",
		Candidates: []RankCandidate{
			{ID: "current-1", Value: "#save", Kind: "css", Score: 0.5},
			{ID: "derived-1-1", Value: "getByRole('button', { name: 'Save' })", Kind: "locatorExpression", Score: 0.9, ReasonCodes: []string{"aria_role_name"}},
		},
		SnapshotExcerpt: `- button "Save"`,
	}
}

func TestChatEndpoint(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:11434/api/chat", ChatEndpoint("http://127.0.0.1:11434"))
	assert.Equal(t, "http://127.0.0.1:11434/api/chat", ChatEndpoint("http://127.0.0.1:11434//"))
}

func TestRank_Success(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var err error
		captured, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Write([]byte(chatReply(`{"selectedCandidateId":"derived-1-1","confidence":0.9,"rationale":"user-facing role"}`)))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL, time.Second).Rank(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "derived-1-1", resp.SelectedCandidateID)
	assert.Equal(t, 0.9, resp.Confidence)

	req := gjson.ParseBytes(captured)
	assert.Equal(t, "gemma3:4b", req.Get("model").String())
	assert.False(t, req.Get("stream").Bool())
	assert.Equal(t, int64(100), req.Get("options.num_predict").Int())
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Contains(t, req.Get("messages.0.content").String(), "strict selector ranking assistant")

	user := gjson.Parse(req.Get("messages.1.content").String())
	assert.Equal(t, "current-1", user.Get("currentCandidateId").String())
	assert.Equal(t, int64(2), user.Get("candidates.#").Int())
	assert.Equal(t, `- button "Save"`, user.Get("snapshotExcerpt").String())

	required := req.Get("format.required").Array()
	var names []string
	for _, r := range required {
		names = append(names, r.String())
	}
	assert.ElementsMatch(t, []string{"selectedCandidateId", "confidence", "rationale"}, names)
	assert.Equal(t, float64(1), req.Get("format.properties.confidence.maximum").Float())
}

func TestRank_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusInternalServerError, "boom", "500"},
		{"empty content", http.StatusOK, chatReply("  "), "empty ranking response"},
		{"missing message", http.StatusOK, `{"done":true}`, "empty ranking response"},
		{"non json", http.StatusOK, chatReply("I pick derived-1-1"), "non-JSON"},
		{"confidence out of range", http.StatusOK, chatReply(`{"selectedCandidateId":"a","confidence":1.5,"rationale":"x"}`), "confidence"},
		{"empty rationale", http.StatusOK, chatReply(`{"selectedCandidateId":"a","confidence":0.5,"rationale":""}`), "rationale"},
		{"empty id", http.StatusOK, chatReply(`{"selectedCandidateId":"","confidence":0.5,"rationale":"x"}`), "selectedCandidateId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).Rank(context.Background(), sampleRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		assert.Equal(t, DefaultTimeout, newTestClient("http://localhost:11434", timeout).timeout)
	}
	assert.Equal(t, 3*time.Second, newTestClient("http://localhost:11434", 3*time.Second).timeout)
}

func TestRank_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(srv.URL, 50*time.Millisecond).Rank(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
