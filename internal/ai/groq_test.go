package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAIStub serves a minimal OpenAI-shaped chat-completion endpoint and
// records the last request body.
type openAIStub struct {
	t         *testing.T
	status    int
	reply     string
	errorBody string
	lastBody  map[string]interface{}
}

func (s *openAIStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		s.lastBody = body

		if s.status != 0 && s.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.status)
			w.Write([]byte(s.errorBody))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": s.reply}},
			},
		})
	}
}

func newGroqAgainst(t *testing.T, url string) *GroqProvider {
	t.Helper()
	p, err := NewGroqProvider(ProviderConfig{
		Name:        ProviderGroq,
		APIKey:      "test-key",
		BaseURL:     url,
		Model:       "llama-3.3-70b-versatile",
		VisionModel: "llama-3.2-90b-vision-preview",
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestGroqCompleteText(t *testing.T) {
	stub := &openAIStub{t: t, reply: "Trường Đại học"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := newGroqAgainst(t, srv.URL)
	text, err := p.CompleteText(context.Background(), []Message{
		{Role: RoleSystem, Content: "fix"},
		{Role: RoleUser, Content: "Truong Dai hoc"},
	}, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Trường Đại học", text)

	assert.Equal(t, "llama-3.3-70b-versatile", stub.lastBody["model"])
	msgs := stub.lastBody["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	// Low-creativity default rides on every request.
	assert.InDelta(t, 0.1, stub.lastBody["temperature"].(float64), 0.001)
	assert.Greater(t, stub.lastBody["max_tokens"].(float64), float64(0))
}

func TestGroqInvalidAuthClassified(t *testing.T) {
	stub := &openAIStub{t: t, status: 401, errorBody: `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := newGroqAgainst(t, srv.URL)
	_, err := p.CompleteText(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompleteOptions{})
	assert.Equal(t, KindInvalidAuth, KindOf(err))
}

func TestGroqRateLimitClassified(t *testing.T) {
	stub := &openAIStub{t: t, status: 429, errorBody: `{"error":{"message":"rate limit exceeded","type":"tokens"}}`}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := newGroqAgainst(t, srv.URL)
	_, err := p.CompleteText(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompleteOptions{})
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestGroqEmptyChoicesIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := newGroqAgainst(t, srv.URL)
	_, err := p.CompleteText(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompleteOptions{})
	assert.Equal(t, KindBadResponse, KindOf(err))
}

func TestGroqTransportError(t *testing.T) {
	p := newGroqAgainst(t, "http://127.0.0.1:1") // nothing listens here
	_, err := p.CompleteText(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompleteOptions{})
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestGroqCompleteVisionWireShape(t *testing.T) {
	stub := &openAIStub{t: t, reply: "extracted text"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := newGroqAgainst(t, srv.URL)
	png := append([]byte("\x89PNG\r\n"), 0x1a)
	text, err := p.CompleteVision(context.Background(), "read this page", png, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	assert.Equal(t, "llama-3.2-90b-vision-preview", stub.lastBody["model"])
	msgs := stub.lastBody["messages"].([]interface{})
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]interface{})["type"])
	imagePart := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", imagePart["type"])
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestGroqRequiresAPIKey(t *testing.T) {
	_, err := NewGroqProvider(ProviderConfig{Name: ProviderGroq})
	assert.Error(t, err)
}

func TestGroqVisionFlagFollowsConfig(t *testing.T) {
	p := newGroqAgainst(t, "http://example.invalid")
	assert.True(t, p.SupportsVision())

	noVision, err := NewGroqProvider(ProviderConfig{Name: ProviderGroq, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.False(t, noVision.SupportsVision())
	_, ok := AsVision(Provider(noVision))
	assert.False(t, ok)
}
