package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/providers/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *ollama.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return ollama.New(srv.URL, "codellama:7b")
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	return req
}

func TestComplete(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		req := readBody(t, r)
		assert.Equal(t, "codellama:7b", req["model"])
		assert.Equal(t, false, req["stream"])
		assert.Nil(t, req["options"])

		msgs, _ := req["messages"].([]any)
		require.Len(t, msgs, 2)
		first, _ := msgs[0].(map[string]any)
		assert.Equal(t, "system", first["role"])

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"|0100 BRK"},"done":true,"done_reason":"stop","prompt_eval_count":11,"eval_count":3}`))
	})

	msg, err := a.Complete(context.Background(), chat.Request("sys", "shrub"))
	require.NoError(t, err)

	text, ok := msg.FirstText()
	assert.True(t, ok)
	assert.Equal(t, "|0100 BRK", text)
	assert.Equal(t, 14, a.Usage.Total().Total())
}

func TestComplete_Options(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		opts, ok := req["options"].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 0.7, opts["temperature"], 1e-9)
		assert.InDelta(t, 256, opts["num_predict"], 1e-9)

		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}`))
	})
	a.Temperature = 0.7
	a.MaxTokens = 256

	msg, err := a.Complete(context.Background(), chat.Request("", "shrub"))
	require.NoError(t, err)

	_, ok := msg.FirstText()
	assert.False(t, ok)
}

func TestComplete_ErrorField(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model 'codellama:7b' not found"}`))
	})

	_, err := a.Complete(context.Background(), chat.Request("", "shrub"))
	require.EqualError(t, err, "ollama: model 'codellama:7b' not found")
}

func TestStream(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		assert.Equal(t, true, req["stream"])

		for _, frag := range []string{"|0100", " BRK"} {
			_, _ = fmt.Fprintf(w, "{\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", frag)
		}
		_, _ = fmt.Fprint(w, "{\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true,\"prompt_eval_count\":2,\"eval_count\":2}\n")
	})

	s, err := a.Stream(context.Background(), chat.Request("", "shrub"))
	require.NoError(t, err)

	got, err := modeladapter.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "|0100 BRK", got)
	assert.Equal(t, 4, a.Usage.Total().Total())
}

func TestStream_ErrorLine(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "{\"error\":\"out of memory\"}\n")
	})

	s, err := a.Stream(context.Background(), chat.Request("", "shrub"))
	require.NoError(t, err)

	_, err = modeladapter.Collect(s)
	require.EqualError(t, err, "ollama: out of memory")
}
