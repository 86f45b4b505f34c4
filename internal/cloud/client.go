// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/endpoint"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/offline"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/usage"
)

// Configuration constants for the completions API.
const (
	// DefaultAPIURL is used when no endpoint is configured.
	DefaultAPIURL = "https://api.deepseek.com/v1/chat/completions"

	// DefaultTimeout applies when Options.Timeout is zero.
	DefaultTimeout = 90 * time.Second

	// MinTimeout is the shortest timeout a call may use.
	MinTimeout = 15 * time.Second

	// MaxResponseSize bounds response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	temperature = 0.7
	maxTokens   = 4096
	userAgent   = "vibe/1.0"
)

// minTimeout is MinTimeout; tests lower it.
var minTimeout = MinTimeout

// responseLimit is MaxResponseSize; tests lower it.
var responseLimit int64 = MaxResponseSize

// DefaultAPIKey is used when no key is configured. It is empty in source
// builds and may be set at link time:
//
//	go build -ldflags "-X github.com/jeranaias/vibecode/internal/cloud.DefaultAPIKey=..."
var DefaultAPIKey = ""

// sharedHTTPClient pools connections for all calls. There is no client
// timeout; every call is bounded by its context.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// OPTIONS AND RESULT
// =============================================================================

// Options tunes a single Execute call.
type Options struct {
	// CountUsage checks the ledger before the call and charges it after a
	// real success.
	CountUsage bool
	// UsageCost is the charge in credits (minimum 1).
	UsageCost int
	// SystemPrompt replaces the default direct-code prompt. It is used
	// verbatim; callers compose it with prompt.Compose.
	SystemPrompt string
	// Mode describes the request for fallback inference.
	Mode prompt.Mode
	// Fallback is the policy applied to failed calls. Empty means auto.
	Fallback fallback.Policy
	// Timeout bounds the whole call (default 90s, minimum 15s).
	Timeout time.Duration
	// SkipWebResearch disables the research system message for research
	// models, for callers that already embedded web context.
	SkipWebResearch bool
}

// Validate reports malformed options.
func (o Options) Validate() error {
	if _, err := fallback.ParsePolicy(string(o.Fallback)); err != nil {
		return err
	}
	if o.UsageCost < 0 {
		return fmt.Errorf("usage cost must not be negative, got %d", o.UsageCost)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}
	if o.Mode != "" && !o.Mode.Valid() {
		return fmt.Errorf("unknown prompt mode %q", o.Mode)
	}
	return nil
}

func (o Options) normalized() Options {
	o.UsageCost = usage.NormalizeCost(o.UsageCost)
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < minTimeout {
		o.Timeout = minTimeout
	}
	o.Fallback, _ = fallback.ParsePolicy(string(o.Fallback))
	return o
}

// Result is the outcome of a handled call.
type Result struct {
	Text string
	// Fallback is set when Text was synthesized after a failure. Fallback
	// results are never charged.
	Fallback bool
	// Reason is the failure text behind a fallback.
	Reason string
	// Policy is the resolved fallback policy (chat or code).
	Policy fallback.Policy
	// Err is the failure a fallback replaced.
	Err error
}

// =============================================================================
// STATE
// =============================================================================

// State is the executor's position in the call lifecycle.
type State int

const (
	StateIdle State = iota
	StateBuildingRequest
	StateAwaitingResponse
	StateStreaming
	StateNonStreaming
	StateComplete
	StateFailed
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuildingRequest:
		return "building_request"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateNonStreaming:
		return "non_streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// EXECUTOR
// =============================================================================

// SettingsSource supplies the configured endpoint and key. Empty values mean
// "not configured".
type SettingsSource interface {
	APISettings() (url, key string)
}

// Researcher gathers web context for research models.
type Researcher interface {
	Gather(ctx context.Context, query string) string
}

// Executor runs chat-completion calls. One call is in flight at a time;
// Cancel aborts it.
type Executor struct {
	settings   SettingsSource
	ledger     usage.Ledger
	researcher Researcher
	httpClient *http.Client
	log        *logrus.Entry
	defaultURL string
	defaultKey string
	// timeout and policy apply to calls whose Options leave them unset.
	timeout time.Duration
	policy  fallback.Policy

	mu        sync.Mutex
	state     State
	streaming bool
	cancel    context.CancelCauseFunc
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLedger sets the usage ledger. Without one, usage is not tracked.
func WithLedger(l usage.Ledger) ExecutorOption {
	return func(e *Executor) { e.ledger = l }
}

// WithResearcher sets the web researcher used for research models.
func WithResearcher(r Researcher) ExecutorOption {
	return func(e *Executor) { e.researcher = r }
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) ExecutorOption {
	return func(e *Executor) { e.log = logging.Component(l, "cloud") }
}

// WithDefaults replaces the compiled-in endpoint and key.
func WithDefaults(url, key string) ExecutorOption {
	return func(e *Executor) {
		e.defaultURL = url
		e.defaultKey = key
	}
}

// WithTimeout sets the timeout for calls that do not set Options.Timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithFallbackPolicy sets the policy for calls that do not choose one. The
// none policy disables fallbacks for every call.
func WithFallbackPolicy(p fallback.Policy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// NewExecutor creates an executor reading endpoint settings from settings.
func NewExecutor(settings SettingsSource, opts ...ExecutorOption) *Executor {
	e := &Executor{
		settings:   settings,
		httpClient: sharedHTTPClient,
		log:        logging.Component(nil, "cloud"),
		defaultURL: DefaultAPIURL,
		defaultKey: DefaultAPIKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsStreaming reports whether a stream is being consumed.
func (e *Executor) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// Cancel aborts the in-flight call, if any. The call fails with
// ErrCancelled and never falls back.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel(errUserCancelled)
		e.cancel = nil
	}
	e.streaming = false
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Executor) setStreaming(v bool) {
	e.mu.Lock()
	e.streaming = v
	e.mu.Unlock()
}

// resolveEndpoint applies the compiled-in defaults to missing settings.
func (e *Executor) resolveEndpoint() (string, string, error) {
	var cfgURL, cfgKey string
	if e.settings != nil {
		cfgURL, cfgKey = e.settings.APISettings()
	}

	url := endpoint.Normalize(cfgURL)
	if url == "" {
		url = endpoint.Normalize(e.defaultURL)
	}
	key := strings.TrimSpace(cfgKey)
	if key == "" {
		key = strings.TrimSpace(e.defaultKey)
	}

	if url == "" {
		return "", "", configError("API URL is missing. Set it with `vibe config set api.url <url>`.")
	}
	if key == "" {
		return "", "", configError("API key is missing. Set it with `vibe config set api.key <key>` or VIBECODE_API_KEY.")
	}
	return url, key, nil
}

// Execute sends messages to the model named by modelKey. With onChunk set the
// response is streamed; a stream that yields no text is retried once without
// streaming. Failures other than cancellation, configuration and quota
// errors are replaced by a fallback body unless the policy is none.
func (e *Executor) Execute(ctx context.Context, messages []model.Message, modelKey string, onChunk ChunkFunc, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, &RequestError{Kind: ErrConfiguration, Reason: err.Error(), Err: err}
	}
	opts = e.applyDefaults(opts).normalized()

	e.setState(StateBuildingRequest)
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.streaming = false
		e.mu.Unlock()
	}()

	res, err := e.execute(ctx, messages, modelKey, onChunk, opts)
	switch {
	case err == nil && !res.Fallback:
		e.setState(StateComplete)
	case errors.Is(err, ErrCancelled):
		e.setState(StateCancelled)
	default:
		e.setState(StateFailed)
	}
	return res, err
}

func (e *Executor) applyDefaults(opts Options) Options {
	if opts.Timeout == 0 && e.timeout > 0 {
		opts.Timeout = e.timeout
	}
	switch {
	case e.policy == fallback.PolicyNone:
		opts.Fallback = fallback.PolicyNone
	case opts.Fallback == "" && e.policy != "":
		opts.Fallback = e.policy
	}
	return opts
}

func (e *Executor) execute(ctx context.Context, messages []model.Message, modelKey string, onChunk ChunkFunc, opts Options) (Result, error) {
	if opts.CountUsage && e.ledger != nil {
		info, err := e.ledger.Info(opts.UsageCost)
		if err != nil {
			return Result{}, fmt.Errorf("usage ledger: %w", err)
		}
		if !info.CanAfford {
			return Result{}, &QuotaError{Used: info.Used, Limit: info.Limit, Needed: info.Needed}
		}
	}

	if strings.TrimSpace(modelKey) == "" {
		modelKey = model.DefaultModel
	}
	desc, ok := model.Lookup(modelKey)
	if !ok {
		return Result{}, configError(fmt.Sprintf("Invalid model selected: %q. Run `vibe models` to list models.", modelKey))
	}

	url, key, err := e.resolveEndpoint()
	if err != nil {
		return Result{}, err
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompt.Compose(prompt.Spec{Mode: prompt.ModeDirectCode, ModelKey: desc.Key})
	}

	log := e.log.WithFields(logrus.Fields{
		"model":  desc.Key,
		"stream": onChunk != nil,
		"key":    logging.Fingerprint(key),
	})

	// Call context: user cancellation and the deadline carry distinct causes.
	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	callCtx, stop := context.WithTimeoutCause(callCtx, opts.Timeout, errDeadline)
	defer stop()

	text, err := e.run(callCtx, log, url, key, desc, systemPrompt, messages, onChunk, opts)
	if err == nil {
		if opts.CountUsage && e.ledger != nil {
			if ierr := e.ledger.Increment(opts.UsageCost); ierr != nil {
				log.WithError(ierr).Warn("failed to record usage")
			}
		}
		return Result{Text: text}, nil
	}

	rerr := classify(callCtx, err, opts.Timeout)
	if errors.Is(rerr, ErrCancelled) {
		log.Info("request cancelled")
		return Result{}, rerr
	}

	policy := resolvePolicy(opts, systemPrompt)
	if policy == fallback.PolicyNone {
		log.WithError(rerr.Err).Warn("request failed")
		return Result{}, rerr
	}

	body := fallback.Generate(policy, messages, rerr.Reason)
	if onChunk != nil {
		onChunk(body, body)
	}
	log.WithError(rerr.Err).WithField("policy", policy).Warn("request failed, using fallback")
	return Result{Text: body, Fallback: true, Reason: rerr.Reason, Policy: policy, Err: rerr}, nil
}

// run performs the network part of a call.
func (e *Executor) run(ctx context.Context, log *logrus.Entry, url, key string, desc model.Descriptor, systemPrompt string, messages []model.Message, onChunk ChunkFunc, opts Options) (string, error) {
	if offline.IsOfflineMode() {
		if err := offline.CheckEndpoint(url); err != nil {
			return "", networkError(err)
		}
	}

	prepared := make([]model.Message, 0, len(messages)+2)
	prepared = append(prepared, model.NewSystemMessage(systemPrompt))
	if desc.WebResearch && !opts.SkipWebResearch {
		var webContext string
		if e.researcher != nil {
			webContext = e.researcher.Gather(ctx, model.LastUserContent(messages))
		}
		prepared = append(prepared, model.NewSystemMessage(prompt.Research(webContext)))
	}
	prepared = append(prepared, messages...)
	log.WithField("prompt_tokens", prompt.EstimateMessages(prepared)).Debug("sending request")

	req := chatRequest{
		Model:       desc.ProviderID,
		Messages:    prepared,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	if onChunk == nil {
		e.setState(StateAwaitingResponse)
		text, err := e.complete(ctx, log, url, key, req)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", emptyResponseError()
		}
		return text, nil
	}

	text, err := e.stream(ctx, log, url, key, req, onChunk)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	log.Debug("stream yielded no content, retrying without streaming")
	text, err = e.complete(ctx, log, url, key, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", emptyResponseError()
	}
	onChunk(text, text)
	return text, nil
}

// chatRequest is the wire payload.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

// stream issues a streaming request and decodes it.
func (e *Executor) stream(ctx context.Context, log *logrus.Entry, url, key string, req chatRequest, onChunk ChunkFunc) (string, error) {
	req.Stream = true
	e.setState(StateAwaitingResponse)
	resp, err := e.post(ctx, log, url, key, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	e.setState(StateStreaming)
	e.setStreaming(true)
	defer e.setStreaming(false)

	return DecodeStream(ctx, &cappedReader{r: resp.Body, left: responseLimit}, onChunk)
}

// complete issues a non-streaming request and returns the message content.
func (e *Executor) complete(ctx context.Context, log *logrus.Entry, url, key string, req chatRequest) (string, error) {
	req.Stream = false
	resp, err := e.post(ctx, log, url, key, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	e.setState(StateNonStreaming)
	body, err := readResponse(resp)
	if err != nil {
		return "", err
	}

	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		// A 2xx body we cannot read carries no usable content.
		log.WithError(err).Debug("unparseable completion body")
		return "", nil
	}
	if len(f.Choices) == 0 || f.Choices[0].Message == nil {
		return "", nil
	}
	return f.Choices[0].Message.Content, nil
}

// post sends the payload and returns a 2xx response. Non-2xx responses are
// converted to provider errors.
func (e *Executor) post(ctx context.Context, log *logrus.Entry, url, key string, payload chatRequest) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", userAgent)
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, providerError(resp.StatusCode, body)
	}
	return resp, nil
}

// readResponse reads a body with the size limit applied.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(&cappedReader{r: resp.Body, left: responseLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// cappedReader passes through at most left bytes and fails with
// ErrResponseTooLarge if the body has more. A body of exactly left bytes
// ends with the underlying EOF.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, responseLimit)
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

// classify maps a raw failure to the taxonomy. The context cause decides
// between cancellation and timeout so that a cancel issued before the
// deadline is never reported as a timeout.
func classify(ctx context.Context, err error, timeout time.Duration) *RequestError {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, errDeadline) || errors.Is(cause, context.DeadlineExceeded) {
			return timeoutError(timeout, err)
		}
		return cancelledError(err)
	}

	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return tooLargeError(err)
	}
	return networkError(err)
}

// resolvePolicy turns auto into chat or code.
func resolvePolicy(opts Options, systemPrompt string) fallback.Policy {
	if opts.Fallback != fallback.PolicyAuto {
		return opts.Fallback
	}
	if opts.Mode.IsChat() || strings.Contains(systemPrompt, prompt.ChatMarker) {
		return fallback.PolicyChat
	}
	return fallback.PolicyCode
}
