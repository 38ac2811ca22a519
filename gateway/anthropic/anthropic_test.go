package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
		o.MaxRetries = 0
	})
}

func message(content string) string {
	return `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",` +
		`"stop_reason":"end_turn","content":` + content + `,` +
		`"usage":{"input_tokens":12,"output_tokens":4}}`
}

func TestGateway_ToolUse(t *testing.T) {
	var body map[string]any

	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, message(`[{"type":"text","text":"Searching."},`+
			`{"type":"tool_use","id":"tu_1","name":"search_code","input":{"query":"login"}}]`))
	})

	resp, err := g.Complete(context.Background(), gateway.Request{
		Instructions: "Investigate.",
		Context:      "Goal: login",
		Tools: []core.ToolSchema{{
			Name:   "search_code",
			Params: []core.ToolParam{{Name: "query", Type: "string", Required: true}},
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ToolCall)
	assert.Equal(t, "search_code", resp.ToolCall.Name)
	assert.Equal(t, "login", resp.ToolCall.Arguments["query"])
	assert.Equal(t, 16, resp.Usage.TotalTokens)

	assert.Contains(t, body, "system")
	tools, _ := body["tools"].([]any)
	assert.Len(t, tools, 1)
}

func TestGateway_Text(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, message(`[{"type":"text","text":"Done."}]`))
	})

	resp, err := g.Complete(context.Background(), gateway.Request{Context: "q"})
	require.NoError(t, err)
	assert.True(t, resp.Final())
	assert.Equal(t, "Done.", resp.Text)
}

func TestGateway_EmptyIsParseError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, message(`[]`))
	})

	_, err := g.Complete(context.Background(), gateway.Request{Context: "q"})
	assert.ErrorIs(t, err, core.ErrGatewayParse)
}

func TestGateway_Unavailable(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, 529)
	})

	_, err := g.Complete(context.Background(), gateway.Request{Context: "q"})
	assert.True(t, gateway.IsUnavailable(err))
}

func TestGateway_DefaultsDoNotRetry(t *testing.T) {
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	g := New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})

	_, err := g.Complete(context.Background(), gateway.Request{Context: "q"})
	assert.True(t, gateway.IsUnavailable(err))
	assert.EqualValues(t, 1, requests.Load())
}
