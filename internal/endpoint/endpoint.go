// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package endpoint turns whatever the user typed as an API URL into the full
// OpenAI-compatible chat-completions URL.
//
// Users paste base URLs in many shapes ("api.deepseek.com",
// "https://host/v1/", "https://host/openai/chat"). Normalize completes the
// chat-completions suffix where it is clearly missing and leaves custom
// paths alone.
package endpoint

import (
	"net/url"
	"regexp"
	"strings"
)

const completionsPath = "/v1/chat/completions"

var (
	schemeRe        = regexp.MustCompile(`(?i)^https?://`)
	leadingSlashRe  = regexp.MustCompile(`^/+`)
	trailingSlashRe = regexp.MustCompile(`/+$`)
)

// Normalize returns the absolute chat-completions URL for raw, or "" when raw
// is empty or cannot be parsed as a URL. It never fails loudly.
//
// Path rules, checked against the lower-cased path without trailing slashes:
//
//	""  or "/v1"        -> /v1/chat/completions
//	ends with "/v1"     -> append /chat/completions
//	exactly "/v1/chat"  -> /v1/chat/completions
//	ends with "/chat"   -> append /completions
//	anything else       -> unchanged
func Normalize(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if !schemeRe.MatchString(value) {
		value = "https://" + leadingSlashRe.ReplaceAllString(value, "")
	}

	u, err := url.Parse(value)
	if err != nil || u.Host == "" || strings.ContainsAny(u.Host, " \t\r\n") {
		return ""
	}

	path := trailingSlashRe.ReplaceAllString(u.EscapedPath(), "")
	lower := strings.ToLower(path)

	switch {
	case lower == "" || lower == "/v1":
		path = completionsPath
	case strings.HasSuffix(lower, "/v1"):
		path += "/chat/completions"
	case lower == "/v1/chat":
		path = completionsPath
	case strings.HasSuffix(lower, "/v1/chat"), strings.HasSuffix(lower, "/chat"):
		path += "/completions"
	}

	if err := setPath(u, path); err != nil {
		return ""
	}
	return u.String()
}

func setPath(u *url.URL, escaped string) error {
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return err
	}
	u.Path = unescaped
	u.RawPath = ""
	if escaped != u.EscapedPath() {
		u.RawPath = escaped
	}
	return nil
}
