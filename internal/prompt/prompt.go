// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt composes the system prompts and user messages sent to the
// model. Every string the assistant says to the provider is built here, so the
// wording of a mode can be changed in one place.
package prompt

import (
	"fmt"
	"strings"

	"github.com/jeranaias/vibecode/internal/model"
)

// Mode selects the system prompt for a request.
type Mode string

const (
	ModeDirectCode    Mode = "direct-code"
	ModePlan          Mode = "plan"
	ModeExecutePlan   Mode = "execute-plan"
	ModeSmartEdit     Mode = "smart-edit"
	ModeChat          Mode = "chat"
	ModeChatResearch  Mode = "chat-research"
	ModeSelectionEdit Mode = "selection-edit"
	ModeTodoList      Mode = "todo-list"
)

// IsChat reports whether replies in this mode are conversational text rather
// than code. Chat modes fall back to a chat notice instead of a code starter.
func (m Mode) IsChat() bool {
	return m == ModeChat || m == ModeChatResearch
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDirectCode, ModePlan, ModeExecutePlan, ModeSmartEdit, ModeChat,
		ModeChatResearch, ModeSelectionEdit, ModeTodoList:
		return true
	}
	return false
}

// ResearchMode is the sub-mode of ModeChatResearch.
type ResearchMode string

const (
	ResearchDeep ResearchMode = "deep-research"
	ResearchWeb  ResearchMode = "web-search"
	ResearchChat ResearchMode = "chat"
)

// ParseResearchMode maps user input to a research sub-mode, defaulting to chat.
func ParseResearchMode(s string) ResearchMode {
	switch ResearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case ResearchDeep, "deep":
		return ResearchDeep
	case ResearchWeb, "web":
		return ResearchWeb
	default:
		return ResearchChat
	}
}

// ChatMarker appears in every chat-style system prompt. The executor uses it
// to infer a chat fallback for callers that pass a raw system prompt.
const ChatMarker = "Vibe Chat"

// Spec describes the prompt to compose.
type Spec struct {
	Mode     Mode
	ModelKey string

	// Research is only read for ModeChatResearch.
	Research ResearchMode
	// WebContext is embedded for ResearchWeb. Lines carry [n] source markers.
	WebContext string
	// Language is only read for ModeSelectionEdit.
	Language string
}

// Compose returns the system prompt for s with the model boost appended.
func Compose(s Spec) string {
	base := Base(s)
	if boost := Boost(s.ModelKey); boost != "" {
		return base + "\n\n" + boost
	}
	return base
}

// Base returns the mode's system prompt without the model boost.
func Base(s Spec) string {
	switch s.Mode {
	case ModePlan:
		return planningPrompt
	case ModeExecutePlan:
		return executionPrompt
	case ModeSmartEdit:
		return smartEditPrompt
	case ModeChat:
		return chatPrompt(s.ModelKey)
	case ModeChatResearch:
		return chatResearchPrompt(s.Research, s.WebContext)
	case ModeSelectionEdit:
		return selectionEditPrompt(s.Language)
	case ModeTodoList:
		return todoPrompt
	default:
		return systemPrompt
	}
}

// System is the default code-generation prompt. It carries the edit-block
// contract the edit package parses.
func System() string {
	return systemPrompt
}

// Research is prepended as a system message for web-research models. The
// gathered context, when there is any, follows after a blank line.
func Research(webContext string) string {
	if webContext == "" {
		return researchPrompt
	}
	return researchPrompt + "\n\n" + webContext
}

// Boost returns the model-specific instruction appended to every system
// prompt, or "" for models without one.
func Boost(modelKey string) string {
	switch modelKey {
	case model.Key600B:
		return "You are using Vibe 600B, the most powerful model. Prioritize robust architecture, clean abstractions, and production-ready results."
	case model.KeyThinking:
		return "You are using Vibe Thinking 1.5. Use deep reasoning and produce well-structured solutions."
	case model.KeyResearch:
		return "You are using Vibe Research. Behave as a research-first model. Cite sources when relevant."
	}
	return ""
}

var systemPrompt = strings.Join([]string{
	"You are Vibe, an expert AI coding assistant for the vibecode command-line platform.",
	"",
	"Your primary role is to help users build web applications through natural language descriptions.",
	"",
	"When generating code:",
	"- Always provide complete, runnable code files",
	"- Use modern HTML5, CSS3, and ES6+ JavaScript",
	"- Include responsive design by default",
	"- Add helpful comments",
	"- Use semantic HTML elements",
	"- Create visually appealing designs",
	"",
	"SMART EDITING: When asked to EDIT, MODIFY, FIX, or CHANGE existing code, use EDIT markers:",
	"<<<EDIT>>>",
	"FIND:",
	"[exact code to find]",
	"REPLACE:",
	"[new replacement code]",
	"<<<END_EDIT>>>",
	"",
	"You can have multiple <<<EDIT>>> blocks. Only change what is needed.",
	"If creating brand new code, use full markdown code blocks instead.",
	"",
	"Format code with markdown fences: ```html, ```css, ```javascript",
	"If user asks to create [filename], return full code for that file.",
	"Always produce working code, not just explanations or todo lists.",
}, "\n")

const researchPrompt = "You are Vibe Research, a web research model.\n" +
	"Use provided \"Web research context\" when available.\n" +
	"Prefer concise, source-backed answers.\n" +
	"Add source labels like [1], [2]."

const smartEditPrompt = "You are Vibe Smart Editor.\n" +
	"ONLY modify the specific parts that need changing.\n" +
	"Use <<<EDIT>>> format:\n" +
	"<<<EDIT>>>\nFIND:\n[exact existing code]\nREPLACE:\n[new code]\n<<<END_EDIT>>>\n" +
	"You can have multiple EDIT blocks. Keep unchanged code untouched."

const todoPrompt = "You are Vibe Task Planner.\n" +
	"Break the request into a JSON task list:\n" +
	`[{"task":"Description","priority":"high"},...]` + "\n" +
	"Keep tasks specific and actionable. Order logically. Return ONLY JSON."

const planningPrompt = "You are Vibe Planner.\n" +
	"Create a concise implementation plan:\n" +
	"1) Goal summary\n2) Architecture/file plan\n3) Step-by-step tasks\n4) Validation checklist\n" +
	"Keep plans actionable."

const executionPrompt = "You are Vibe Executor.\n" +
	"Follow the given plan and produce complete working code.\n" +
	"Return code in markdown code blocks split by file type.\n" +
	"Do NOT return pseudo-code or explanation-only answers."

func chatPrompt(modelKey string) string {
	base := "You are " + ChatMarker + ", a helpful conversational assistant inside the vibecode coding tool.\n" +
		"Respond naturally and clearly. Give direct answers. You understand English and Bangla.\n" +
		"Provide code only if the user asks for code."

	switch modelKey {
	case model.KeyResearch:
		return base + "\n\nUse research mode:\n" +
			"- Use provided web context.\n" +
			"- Add source markers like [1], [2].\n" +
			"- If no context is available, say so clearly."
	case model.Key600B:
		return base + "\n\nVibe 600B mode:\n" +
			"- Most powerful AI coding model with 600B parameters.\n" +
			"- Provide production-quality responses.\n" +
			"- Consider edge cases, performance, accessibility, scalability."
	}
	return base
}

func chatResearchPrompt(mode ResearchMode, webContext string) string {
	base := "You are " + ChatMarker + " Research Assistant inside vibecode.\nYou understand English and Bangla.\n"

	switch mode {
	case ResearchDeep:
		return base + "DEEP RESEARCH MODE: Provide comprehensive, in-depth analysis. " +
			"Break down complex topics. Include examples and comparisons. " +
			"Structure with headings and bullet points."
	case ResearchWeb:
		p := base + "WEB SEARCH MODE: Use the provided web research context. " +
			"Synthesize from multiple sources. Add source markers [1], [2]. Keep answers factual."
		if strings.TrimSpace(webContext) == "" {
			return p + "\n\nNo web research context could be retrieved for this question. " +
				"Say so clearly and do not invent sources or citations."
		}
		return p + "\n\n" + webContext
	default:
		return base + "CHAT MODE: Be conversational and helpful. Give clear, direct answers. " +
			"Use code examples when helpful."
	}
}

func selectionEditPrompt(language string) string {
	if language == "" {
		language = "text"
	}
	return fmt.Sprintf("You are an expert code refactoring assistant.\n"+
		"Edit ONLY the user-provided selected code snippet.\n"+
		"Follow the instruction exactly.\n"+
		"Return ONLY the updated %s code. No markdown fences. No explanations.", language)
}
