// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fallback builds the offline substitute replies returned when a live
// model call fails and the caller's policy allows a fallback. Both generators
// are pure: the same messages and reason always give the same text.
package fallback

import (
	"fmt"
	"strings"

	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/util"
)

// Policy decides what happens when a call fails.
type Policy string

const (
	// PolicyAuto picks chat or code from the request's mode.
	PolicyAuto Policy = "auto"
	PolicyChat Policy = "chat"
	PolicyCode Policy = "code"
	// PolicyNone surfaces the error instead of substituting text.
	PolicyNone Policy = "none"
)

// ParsePolicy validates a policy name. Empty input means auto.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAuto, nil
	case PolicyAuto, PolicyChat, PolicyCode, PolicyNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q (want auto, chat, code or none)", s)
	}
}

// Generate returns the substitute text for a resolved policy. Auto and none
// are not resolved policies; they produce the code fallback.
func Generate(p Policy, messages []model.Message, reason string) string {
	if p == PolicyChat {
		return Chat(messages, reason)
	}
	return Code(messages, reason)
}

// Chat returns a short notice naming the failure, generic remediation, and
// the user's last message echoed back.
func Chat(messages []model.Message, reason string) string {
	var sb strings.Builder
	sb.WriteString("[API unavailable")
	if reason != "" {
		sb.WriteString(" (" + reason + ")")
	}
	sb.WriteString("] Could not reach AI service.\n\nTry:\n" +
		"- Check your API key with `vibe config show`\n" +
		"- Check network connection\n\n")
	if last := model.LastUserContent(messages); last != "" {
		sb.WriteString(`Your message: "` + last + `"`)
	}
	return sb.String()
}

// Code returns a notice plus a three-file HTML/CSS/JS starter whose heading
// is the user's last message. The reply always contains fenced blocks, so the
// files parser never comes back empty.
func Code(messages []model.Message, reason string) string {
	last := model.LastUserContent(messages)
	if last == "" {
		last = "your request"
	}
	hint := ""
	if reason != "" {
		hint = " (" + reason + ")"
	}

	return "[API fallback" + hint + "] Quick starter:\n\n" +
		"```html\n" + strings.Replace(codeHTML, "{{heading}}", util.EscapeHTMLText(last), 1) + "\n```\n" +
		"```css\n" + codeCSS + "\n```\n" +
		"```javascript\n" + codeJS + "\n```\n"
}

const codeHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Prototype</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <main class="wrap">
    <h1>{{heading}}</h1>
    <button id="action-btn">Run Demo</button>
    <section id="output" class="card"></section>
  </main>
  <script src="script.js"></script>
</body>
</html>`

const codeCSS = `:root{font-family:Inter,sans-serif;background:#0f0f14;color:#fff}
body{margin:0;min-height:100vh;display:grid;place-items:center;padding:32px}
.wrap{width:min(960px,100%);background:#1b1b24;border:1px solid #2a2a3a;border-radius:16px;padding:28px}
button{background:linear-gradient(135deg,#ff4fa3,#8b5cf6);color:#fff;border:none;padding:12px 18px;border-radius:10px;cursor:pointer}`

const codeJS = `document.addEventListener("DOMContentLoaded",()=>{document.getElementById("action-btn").addEventListener("click",()=>{document.getElementById("output").innerHTML="<strong>Demo:</strong> Button clicked!"})});`
