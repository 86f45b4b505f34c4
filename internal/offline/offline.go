// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline holds the process-wide offline switch.
//
// In offline mode the assistant never leaves the machine: model calls are only
// allowed to a loopback endpoint (a local OpenAI-compatible server), web
// research is disabled, and every other request fails fast so the caller's
// fallback policy can take over.
package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for a non-loopback endpoint in offline mode.
	ErrNonLocalhost = errors.New("offline mode: only localhost endpoints are allowed")

	// ErrWebFetchBlocked is returned for web research in offline mode.
	ErrWebFetchBlocked = errors.New("offline mode: web research is disabled")

	// ErrInvalidURLScheme is returned for anything but http and https,
	// online or offline.
	ErrInvalidURLScheme = errors.New("only http and https endpoints are allowed")

	// ErrInvalidURL is returned when the endpoint does not parse.
	ErrInvalidURL = errors.New("invalid endpoint URL")
)

// =============================================================================
// MODE MANAGEMENT
// =============================================================================

var (
	offlineMode bool
	modeMu      sync.RWMutex
)

// SetOfflineMode enables or disables offline mode globally.
func SetOfflineMode(enabled bool) {
	modeMu.Lock()
	defer modeMu.Unlock()
	offlineMode = enabled
}

// IsOfflineMode reports whether offline mode is enabled.
func IsOfflineMode() bool {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return offlineMode
}

// =============================================================================
// GUARDS
// =============================================================================

// IsLocalhost reports whether host (optionally with a port or IPv6 brackets)
// is "localhost" or a loopback IP.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// CheckEndpoint validates a model endpoint before any request is sent. The
// scheme must be http or https; in offline mode the host must be loopback.
func CheckEndpoint(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if IsOfflineMode() && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// CheckWebFetchAllowed returns ErrWebFetchBlocked in offline mode.
func CheckWebFetchAllowed() error {
	if IsOfflineMode() {
		return ErrWebFetchBlocked
	}
	return nil
}

// StatusBadge returns "[OFFLINE]" in offline mode and "" otherwise.
func StatusBadge() string {
	if IsOfflineMode() {
		return "[OFFLINE]"
	}
	return ""
}
