// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/offline"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/usage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type staticSettings struct {
	url string
	key string
}

func (s staticSettings) APISettings() (string, string) {
	return s.url, s.key
}

type fakeResearcher struct {
	queries []string
	context string
}

func (f *fakeResearcher) Gather(_ context.Context, query string) string {
	f.queries = append(f.queries, query)
	return f.context
}

// testServer counts requests and records the decoded payloads.
type testServer struct {
	*httptest.Server
	count    atomic.Int32
	payloads chan chatRequest
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req chatRequest)) *testServer {
	t.Helper()
	ts := &testServer{payloads: make(chan chatRequest, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.count.Add(1)
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		select {
		case ts.payloads <- req:
		default:
		}
		handler(w, r, req)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newExecutor(url string, opts ...ExecutorOption) *Executor {
	return NewExecutor(staticSettings{url: url, key: "test-key"}, opts...)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func writeStream(w http.ResponseWriter, parts ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, p := range parts {
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", p)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func userMessages(content string) []model.Message {
	return []model.Message{model.NewUserMessage(content)}
}

func shortTimeouts(t *testing.T) {
	t.Helper()
	old := minTimeout
	minTimeout = 10 * time.Millisecond
	t.Cleanup(func() { minTimeout = old })
}

// =============================================================================
// SUCCESS PATHS
// =============================================================================

func TestExecute_NonStreaming(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request, req chatRequest) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Accept"))
		writeCompletion(w, "hello there")
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{CountUsage: true, UsageCost: 3, SystemPrompt: "SYS"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Text)
	assert.False(t, res.Fallback)
	assert.Equal(t, 3, ledger.Used())
	assert.Equal(t, StateComplete, exec.State())

	req := <-ts.payloads
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.NewSystemMessage("SYS"), req.Messages[0])
	assert.Equal(t, model.NewUserMessage("hi"), req.Messages[1])
}

func TestExecute_DefaultSystemPromptCarriesBoost(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "ok")
	})
	exec := newExecutor(ts.URL)

	_, err := exec.Execute(context.Background(), userMessages("x"), model.Key600B, nil, Options{})
	require.NoError(t, err)

	req := <-ts.payloads
	assert.Equal(t, prompt.Compose(prompt.Spec{Mode: prompt.ModeDirectCode, ModelKey: model.Key600B}), req.Messages[0].Content)
	assert.Contains(t, req.Messages[0].Content, prompt.Boost(model.Key600B))
}

func TestExecute_Streaming(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request, req chatRequest) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.True(t, req.Stream)
		writeStream(w, "Hel", "lo")
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	var rec recorder
	res, err := exec.Execute(context.Background(), userMessages("hi"), "", rec.chunk,
		Options{CountUsage: true, UsageCost: 2})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, []string{"Hel", "lo"}, rec.deltas)
	assert.Equal(t, 2, ledger.Used())
	assert.False(t, exec.IsStreaming())
	assert.Equal(t, int32(1), ts.count.Load())
}

func TestExecute_EmptyStreamRetriesWithoutStreaming(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, req chatRequest) {
		if req.Stream {
			writeStream(w, "  ")
			return
		}
		writeCompletion(w, "from retry")
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	var rec recorder
	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, rec.chunk,
		Options{CountUsage: true})
	require.NoError(t, err)
	assert.Equal(t, "from retry", res.Text)
	assert.Equal(t, int32(2), ts.count.Load())
	// The whitespace delta, then the full retry text once.
	assert.Equal(t, []string{"  ", "from retry"}, rec.deltas)
	assert.Equal(t, "from retry", rec.fulls[len(rec.fulls)-1])
	assert.Equal(t, 1, ledger.Used())
}

func TestExecute_EmptyAfterRetry(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, req chatRequest) {
		if req.Stream {
			writeStream(w)
			return
		}
		writeCompletion(w, "")
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, func(string, string) {},
		Options{CountUsage: true, Fallback: fallback.PolicyNone})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "Empty response from AI. Please try again.", err.Error())
	assert.Equal(t, int32(2), ts.count.Load())
	assert.Equal(t, 0, ledger.Used())
}

// =============================================================================
// PROVIDER ERRORS
// =============================================================================

func TestExecute_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "Invalid API key. Update it with `vibe config set api.key <key>`."},
		{"rate limited", http.StatusTooManyRequests, ``, "Rate limit reached. Please wait."},
		{"error message", http.StatusInternalServerError, `{"error":{"message":"model overloaded"}}`, "model overloaded"},
		{"top-level message", http.StatusBadRequest, `{"message":"bad request shape"}`, "bad request shape"},
		{"no payload", http.StatusBadGateway, `<html>bad gateway</html>`, "API error: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			ledger := usage.NewMemoryLedger(10)
			exec := newExecutor(ts.URL, WithLedger(ledger))

			_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
				Options{CountUsage: true, Fallback: fallback.PolicyNone})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProvider)
			assert.Equal(t, tt.want, err.Error())

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.Status)
			assert.Equal(t, 0, ledger.Used())
			assert.Equal(t, StateFailed, exec.State())
		})
	}
}

func TestExecute_ProviderErrorFallsBackWithoutCharge(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	var rec recorder
	msgs := userMessages("a todo app")
	res, err := exec.Execute(context.Background(), msgs, model.KeyPro, rec.chunk, Options{CountUsage: true})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback.PolicyCode, res.Policy)
	assert.Equal(t, "API error: 503", res.Reason)
	assert.Equal(t, fallback.Code(msgs, "API error: 503"), res.Text)
	assert.Equal(t, []string{res.Text}, rec.deltas)
	assert.ErrorIs(t, res.Err, ErrProvider)
	assert.Equal(t, 0, ledger.Used())
}

func TestExecute_OversizedResponseIsRejected(t *testing.T) {
	old := responseLimit
	responseLimit = 256
	t.Cleanup(func() { responseLimit = old })

	part := strings.Repeat("x", 100)
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, req chatRequest) {
		if req.Stream {
			writeStream(w, part, part, part)
			return
		}
		writeCompletion(w, part+part+part)
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	for _, streaming := range []bool{true, false} {
		var rec recorder
		var onChunk ChunkFunc
		if streaming {
			onChunk = rec.chunk
		}
		_, err := exec.Execute(context.Background(), userMessages("hi"), "", onChunk,
			Options{CountUsage: true, UsageCost: 1, Fallback: fallback.PolicyNone})
		require.Error(t, err, "streaming=%v", streaming)
		assert.ErrorIs(t, err, ErrResponseTooLarge)
		assert.ErrorIs(t, err, ErrProvider)
	}

	var rec recorder
	res, err := exec.Execute(context.Background(), userMessages("hi"), "", rec.chunk,
		Options{CountUsage: true, UsageCost: 1, Fallback: fallback.PolicyChat})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, ErrResponseTooLarge)
	assert.Equal(t, 0, ledger.Used(), "a truncated reply is never charged")
}

func TestCappedReader_ExactLimit(t *testing.T) {
	old := responseLimit
	responseLimit = 4
	t.Cleanup(func() { responseLimit = old })

	data, err := io.ReadAll(&cappedReader{r: strings.NewReader("abcd"), left: responseLimit})
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = io.ReadAll(&cappedReader{r: strings.NewReader("abcde"), left: responseLimit})
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestExecute_AutoPolicyInfersChat(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	exec := newExecutor(ts.URL)
	msgs := userMessages("how are you")

	// From the system prompt marker.
	res, err := exec.Execute(context.Background(), msgs, model.KeyPro, nil,
		Options{SystemPrompt: "You are " + prompt.ChatMarker + "."})
	require.NoError(t, err)
	assert.Equal(t, fallback.PolicyChat, res.Policy)
	assert.Equal(t, fallback.Chat(msgs, "API error: 500"), res.Text)

	// From the mode.
	res, err = exec.Execute(context.Background(), msgs, model.KeyPro, nil,
		Options{SystemPrompt: "plain", Mode: prompt.ModeChatResearch})
	require.NoError(t, err)
	assert.Equal(t, fallback.PolicyChat, res.Policy)

	// Explicit policy wins.
	res, err = exec.Execute(context.Background(), msgs, model.KeyPro, nil,
		Options{Mode: prompt.ModeChat, Fallback: fallback.PolicyCode})
	require.NoError(t, err)
	assert.Equal(t, fallback.PolicyCode, res.Policy)
}

func TestExecute_ConfiguredPolicy(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		w.WriteHeader(http.StatusBadGateway)
	})
	msgs := userMessages("a clock")

	// none disables fallbacks even for calls that ask for one.
	exec := newExecutor(ts.URL, WithFallbackPolicy(fallback.PolicyNone))
	_, err := exec.Execute(context.Background(), msgs, model.KeyPro, nil, Options{Fallback: fallback.PolicyChat})
	assert.ErrorIs(t, err, ErrProvider)

	// Other policies only fill in unset options.
	exec = newExecutor(ts.URL, WithFallbackPolicy(fallback.PolicyChat))
	res, err := exec.Execute(context.Background(), msgs, model.KeyPro, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, fallback.PolicyChat, res.Policy)

	res, err = exec.Execute(context.Background(), msgs, model.KeyPro, nil, Options{Fallback: fallback.PolicyCode})
	require.NoError(t, err)
	assert.Equal(t, fallback.PolicyCode, res.Policy)
}

func TestApplyDefaults_Timeout(t *testing.T) {
	exec := newExecutor("http://127.0.0.1", WithTimeout(30*time.Second))
	assert.Equal(t, 30*time.Second, exec.applyDefaults(Options{}).Timeout)
	assert.Equal(t, 20*time.Second, exec.applyDefaults(Options{Timeout: 20 * time.Second}).Timeout)
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestExecute_QuotaShortCircuits(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "never")
	})
	ledger := usage.NewMemoryLedger(5)
	require.NoError(t, ledger.Increment(3))
	exec := newExecutor(ts.URL, WithLedger(ledger))

	_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{CountUsage: true, UsageCost: 3, Fallback: fallback.PolicyChat})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, "Not enough daily credits (3/5 used). Need 3 credits.", err.Error())

	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, QuotaError{Used: 3, Limit: 5, Needed: 3}, *qe)
	assert.Equal(t, int32(0), ts.count.Load())
	assert.False(t, Fallbackable(err))

	// Uncounted calls ignore the budget.
	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{UsageCost: 3})
	require.NoError(t, err)
	assert.Equal(t, "never", res.Text)
	assert.Equal(t, 3, ledger.Used())
}

func TestExecute_ConfigurationErrors(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "never")
	})

	t.Run("unknown model", func(t *testing.T) {
		exec := newExecutor(ts.URL)
		_, err := exec.Execute(context.Background(), userMessages("hi"), "gpt-9", nil, Options{Fallback: fallback.PolicyCode})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("missing key", func(t *testing.T) {
		exec := NewExecutor(staticSettings{url: ts.URL}, WithDefaults(DefaultAPIURL, ""))
		_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "API key is missing")
	})

	t.Run("missing url", func(t *testing.T) {
		exec := NewExecutor(staticSettings{key: "k"}, WithDefaults("", ""))
		_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "API URL is missing")
	})

	t.Run("default key used", func(t *testing.T) {
		exec := NewExecutor(staticSettings{url: ts.URL}, WithDefaults("", "compiled-in"))
		res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, "never", res.Text)
	})

	t.Run("invalid options", func(t *testing.T) {
		exec := newExecutor(ts.URL)
		_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{Fallback: "maybe"})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	assert.Equal(t, int32(1), ts.count.Load())
}

func TestOptionsNormalized(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, 1, o.UsageCost)
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, fallback.PolicyAuto, o.Fallback)

	o = Options{UsageCost: 50, Timeout: time.Second}.normalized()
	assert.Equal(t, 50, o.UsageCost)
	assert.Equal(t, MinTimeout, o.Timeout)

	assert.Error(t, Options{UsageCost: -1}.Validate())
	assert.Error(t, Options{Timeout: -time.Second}.Validate())
	assert.Error(t, Options{Mode: "poetry"}.Validate())
	assert.NoError(t, Options{Mode: prompt.ModeSmartEdit, Fallback: fallback.PolicyNone}.Validate())
}

// =============================================================================
// TIMEOUT AND CANCELLATION
// =============================================================================

func TestExecute_Timeout(t *testing.T) {
	shortTimeouts(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ chatRequest) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{CountUsage: true, Timeout: 50 * time.Millisecond, Fallback: fallback.PolicyNone})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrCancelled))
	assert.True(t, strings.HasPrefix(err.Error(), "Request timed out after"))

	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{CountUsage: true, Timeout: 50 * time.Millisecond, Mode: prompt.ModeChat})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback.PolicyChat, res.Policy)
	assert.Equal(t, 0, ledger.Used())
}

func TestExecute_CancelNeverFallsBack(t *testing.T) {
	arrived := make(chan struct{}, 1)
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ chatRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		w.(http.Flusher).Flush()
		arrived <- struct{}{}
		<-r.Context().Done()
	})
	ledger := usage.NewMemoryLedger(10)
	exec := newExecutor(ts.URL, WithLedger(ledger))

	go func() {
		<-arrived
		exec.Cancel()
	}()

	var rec recorder
	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, rec.chunk,
		Options{CountUsage: true, Fallback: fallback.PolicyCode})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "Request cancelled", err.Error())
	assert.False(t, res.Fallback)
	assert.Empty(t, res.Text)
	assert.Equal(t, StateCancelled, exec.State())
	assert.False(t, exec.IsStreaming())
	assert.Equal(t, 0, ledger.Used())
	for _, d := range rec.deltas {
		assert.NotContains(t, d, "API fallback")
	}
}

func TestExecute_ParentContextCancelled(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ chatRequest) {
		<-r.Context().Done()
	})
	exec := newExecutor(ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := exec.Execute(ctx, userMessages("hi"), model.KeyPro, nil, Options{Fallback: fallback.PolicyChat})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, Fallbackable(err))
}

func TestExecute_CancelWithoutCallIsNoop(t *testing.T) {
	exec := newExecutor("http://127.0.0.1:1")
	exec.Cancel()
	assert.Equal(t, StateIdle, exec.State())
}

// =============================================================================
// NETWORK, OFFLINE AND RESEARCH
// =============================================================================

func TestExecute_NetworkErrorFallsBack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	exec := newExecutor(url)
	_, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{Fallback: fallback.PolicyNone})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "Check your internet connection")

	res, err := exec.Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Text, "```html")
}

func TestExecute_OfflineBlocksRemoteEndpoints(t *testing.T) {
	offline.SetOfflineMode(true)
	t.Cleanup(func() { offline.SetOfflineMode(false) })

	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "local model")
	})

	// Loopback endpoints keep working.
	res, err := newExecutor(ts.URL).Execute(context.Background(), userMessages("hi"), model.KeyPro, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "local model", res.Text)

	_, err = newExecutor("https://api.example.com").Execute(context.Background(), userMessages("hi"), model.KeyPro, nil,
		Options{Fallback: fallback.PolicyNone})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, offline.ErrNonLocalhost)
}

func TestExecute_ResearchModelPrependsContext(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "cited answer [1]")
	})
	researcher := &fakeResearcher{context: "Web research context for \"go\":\n[1] Go (https://go.dev)"}
	exec := newExecutor(ts.URL, WithResearcher(researcher))

	msgs := []model.Message{
		model.NewUserMessage("first question"),
		model.NewAssistantMessage("first answer"),
		model.NewUserMessage("what is go"),
	}
	_, err := exec.Execute(context.Background(), msgs, model.KeyResearch, nil, Options{SystemPrompt: "SYS"})
	require.NoError(t, err)

	assert.Equal(t, []string{"what is go"}, researcher.queries)
	req := <-ts.payloads
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "SYS", req.Messages[0].Content)
	assert.Equal(t, model.RoleSystem, req.Messages[1].Role)
	assert.Equal(t, prompt.Research(researcher.context), req.Messages[1].Content)
	assert.Equal(t, msgs, req.Messages[2:])
	assert.Len(t, msgs, 3)

	// Skipped on request; non-research models never research.
	_, err = exec.Execute(context.Background(), msgs, model.KeyResearch, nil, Options{SkipWebResearch: true})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), msgs, model.KeyPro, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, researcher.queries, 1)
}

func TestExecute_ResearchWithoutContextUsesBarePrompt(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ chatRequest) {
		writeCompletion(w, "ok")
	})
	exec := newExecutor(ts.URL, WithResearcher(&fakeResearcher{}))

	_, err := exec.Execute(context.Background(), userMessages("q"), model.KeyResearch, nil, Options{})
	require.NoError(t, err)
	req := <-ts.payloads
	assert.Equal(t, prompt.Research(""), req.Messages[1].Content)
}
