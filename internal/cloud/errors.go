// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Failure kinds. Every error returned by Executor.Execute matches exactly one
// of these with errors.Is.
var (
	// ErrConfiguration covers a missing endpoint or key and unknown models.
	ErrConfiguration = errors.New("configuration error")

	// ErrQuotaExceeded means the daily credit budget cannot cover the call.
	ErrQuotaExceeded = errors.New("insufficient credits")

	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrCancelled means the caller cancelled the call.
	ErrCancelled = errors.New("request cancelled")

	// ErrNetwork covers transport failures and offline-mode blocks.
	ErrNetwork = errors.New("network error")

	// ErrProvider means the endpoint answered with a non-2xx status.
	ErrProvider = errors.New("provider error")

	// ErrEmptyResponse means a 2xx answer carried no usable content.
	ErrEmptyResponse = errors.New("empty response")

	// ErrResponseTooLarge means a body exceeded MaxResponseSize. A truncated
	// reply is never accepted.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// Cancellation causes attached to the call context.
var (
	errUserCancelled = errors.New("cancelled by user")
	errDeadline      = errors.New("call deadline exceeded")
)

// RequestError is a classified failure. Reason is the user-facing text and
// is also the reason embedded in fallback bodies.
type RequestError struct {
	Kind   error
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Reason
}

// Unwrap exposes both the kind sentinel and the underlying error.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// QuotaError carries the ledger snapshot of a refused call.
type QuotaError struct {
	Used   int
	Limit  int
	Needed int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("Not enough daily credits (%d/%d used). Need %d credits.", e.Used, e.Limit, e.Needed)
}

// Is matches ErrQuotaExceeded.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// ProviderError is a non-2xx response. Message is already user-facing.
type ProviderError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Message
}

// Is matches ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

const networkChecklist = "Network error. This usually means:\n" +
	"1. Check your internet connection\n" +
	"2. The API URL may be incorrect\n" +
	"3. Run `vibe config show` to verify your API key\n" +
	"4. Try using: " + DefaultAPIURL

func configError(reason string) *RequestError {
	return &RequestError{Kind: ErrConfiguration, Reason: reason}
}

func timeoutError(timeout time.Duration, err error) *RequestError {
	return &RequestError{
		Kind:   ErrTimeout,
		Reason: fmt.Sprintf("Request timed out after %ds.", int(timeout.Round(time.Second)/time.Second)),
		Err:    err,
	}
}

func cancelledError(err error) *RequestError {
	return &RequestError{Kind: ErrCancelled, Reason: "Request cancelled", Err: err}
}

func networkError(err error) *RequestError {
	return &RequestError{Kind: ErrNetwork, Reason: networkChecklist, Err: err}
}

func tooLargeError(err error) *RequestError {
	return &RequestError{
		Kind:   ErrProvider,
		Reason: fmt.Sprintf("Response exceeded %d MiB and was discarded. Ask for a smaller change.", MaxResponseSize>>20),
		Err:    err,
	}
}

func emptyResponseError() *RequestError {
	return &RequestError{Kind: ErrEmptyResponse, Reason: "Empty response from AI. Please try again."}
}

// providerError turns an error response into a ProviderError. Unauthorized
// and rate-limited responses get fixed guidance; otherwise the provider's own
// message is used when the body carries one.
func providerError(status int, body []byte) *RequestError {
	var msg string
	switch status {
	case http.StatusUnauthorized:
		msg = "Invalid API key. Update it with `vibe config set api.key <key>`."
	case http.StatusTooManyRequests:
		msg = "Rate limit reached. Please wait."
	default:
		msg = providerMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", status)
		}
	}
	pe := &ProviderError{Status: status, Message: msg}
	return &RequestError{Kind: ErrProvider, Reason: msg, Err: pe}
}

// providerMessage extracts error.message, then message, from an error body.
func providerMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return payload.Message
}

// Fallbackable reports whether a failure may be replaced by a fallback
// body. Cancellation, configuration and quota failures always surface.
func Fallbackable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrCancelled) &&
		!errors.Is(err, ErrConfiguration) &&
		!errors.Is(err, ErrQuotaExceeded)
}
