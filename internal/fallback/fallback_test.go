// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
)

func TestChat(t *testing.T) {
	msgs := []model.Message{
		model.NewUserMessage("first"),
		model.NewAssistantMessage("ok"),
		model.NewUserMessage("what is a closure?"),
	}
	got := Chat(msgs, "Request timed out after 90s.")

	assert.True(t, strings.HasPrefix(got, "[API unavailable (Request timed out after 90s.)] Could not reach AI service."))
	assert.Contains(t, got, "- Check network connection")
	assert.True(t, strings.HasSuffix(got, `Your message: "what is a closure?"`))
}

func TestChat_NoReasonNoMessage(t *testing.T) {
	got := Chat(nil, "")
	assert.True(t, strings.HasPrefix(got, "[API unavailable] Could not reach AI service."))
	assert.NotContains(t, got, "Your message")
}

func TestCode_EscapesHeadingAndParses(t *testing.T) {
	msgs := []model.Message{model.NewUserMessage("<script>alert(1)</script> todo")}
	got := Code(msgs, "Network error")

	assert.True(t, strings.HasPrefix(got, "[API fallback (Network error)] Quick starter:"))
	assert.Contains(t, got, "<h1>&lt;script&gt;alert(1)&lt;/script&gt; todo</h1>")
	assert.NotContains(t, got, "<h1><script>")
	assert.Contains(t, got, `<button id="action-btn">Run Demo</button>`)

	project := files.Parse(got)
	require.Len(t, project, 3)
	assert.Equal(t, "index.html", project[0].Name)
	assert.Equal(t, "style.css", project[1].Name)
	assert.Equal(t, "script.js", project[2].Name)
}

func TestCode_DefaultHeading(t *testing.T) {
	assert.Contains(t, Code(nil, ""), "<h1>your request</h1>")
	assert.True(t, strings.HasPrefix(Code(nil, ""), "[API fallback] Quick starter:"))
}

func TestDeterministic(t *testing.T) {
	msgs := []model.Message{model.NewUserMessage("same")}
	assert.Equal(t, Code(msgs, "r"), Code(msgs, "r"))
	assert.Equal(t, Chat(msgs, "r"), Chat(msgs, "r"))
}

func TestGenerate(t *testing.T) {
	msgs := []model.Message{model.NewUserMessage("hi")}
	assert.Equal(t, Chat(msgs, "r"), Generate(PolicyChat, msgs, "r"))
	assert.Equal(t, Code(msgs, "r"), Generate(PolicyCode, msgs, "r"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAuto, p)

	p, err = ParsePolicy(" NONE ")
	require.NoError(t, err)
	assert.Equal(t, PolicyNone, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
