// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/cloud"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/prompt"
)

// ChatResearchCost is the charge for one chat-research request.
const ChatResearchCost = 50

// CannedPlan replaces a plan that came back containing code.
const CannedPlan = "1. Define project structure\n2. Build core UI\n3. Implement features\n4. Test and polish\n5. Final verification"

// =============================================================================
// EXECUTOR INTERFACE
// =============================================================================

// Executor runs one model call. *cloud.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, messages []model.Message, modelKey string, onChunk cloud.ChunkFunc, opts cloud.Options) (cloud.Result, error)
}

// =============================================================================
// ASSISTANT
// =============================================================================

// Assistant wraps an Executor with the request shapes of each assistant
// operation: which system prompt, which usage charge and which fallback.
type Assistant struct {
	exec       Executor
	researcher cloud.Researcher
	log        *logrus.Entry
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithResearcher sets the web researcher used by web-search chat research.
func WithResearcher(r cloud.Researcher) AssistantOption {
	return func(a *Assistant) { a.researcher = r }
}

// WithAssistantLogger sets the logger.
func WithAssistantLogger(l *logrus.Logger) AssistantOption {
	return func(a *Assistant) { a.log = logging.Component(l, "assistant") }
}

// NewAssistant returns an Assistant backed by exec.
func NewAssistant(exec Executor, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		exec: exec,
		log:  logging.Component(logging.Discard(), "assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// resolveModel maps "" and unknown display names to a registry key.
func resolveModel(key string) string {
	if d, ok := model.Lookup(key); ok {
		return d.Key
	}
	if strings.TrimSpace(key) == "" {
		return model.DefaultModel
	}
	return key
}

func withUser(history []model.Message, content string) []model.Message {
	msgs := make([]model.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, model.NewUserMessage(content))
}

func (a *Assistant) system(mode prompt.Mode, modelKey string) string {
	return prompt.Compose(prompt.Spec{Mode: mode, ModelKey: modelKey})
}

// =============================================================================
// BUILD OPERATIONS
// =============================================================================

// GenerateCode sends description after history with the default code prompt.
// Usage and fallback come from opts unchanged.
func (a *Assistant) GenerateCode(ctx context.Context, description string, history []model.Message, modelKey string, opts cloud.Options, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	if opts.Mode == "" {
		opts.Mode = prompt.ModeDirectCode
	}
	return a.exec.Execute(ctx, withUser(history, description), modelKey, onChunk, opts)
}

// GeneratePlan asks for a markdown plan without charging usage. A plan
// containing a code fence is replaced by CannedPlan.
func (a *Assistant) GeneratePlan(ctx context.Context, description string, history []model.Message, modelKey string) (string, error) {
	modelKey = resolveModel(modelKey)
	res, err := a.exec.Execute(ctx, withUser(history, prompt.PlanRequest(description)), modelKey, nil, cloud.Options{
		SystemPrompt: a.system(prompt.ModePlan, modelKey),
		Mode:         prompt.ModePlan,
		Fallback:     fallback.PolicyNone,
	})
	if err != nil {
		return "", err
	}
	if strings.Contains(res.Text, "```") {
		a.log.Debug("plan contained code, using canned plan")
		return CannedPlan, nil
	}
	return res.Text, nil
}

// GenerateCodeFromPlan asks for code that executes plan. The execution
// prompt always replaces any system prompt in opts.
func (a *Assistant) GenerateCodeFromPlan(ctx context.Context, description, plan string, history []model.Message, modelKey string, opts cloud.Options, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	opts.SystemPrompt = a.system(prompt.ModeExecutePlan, modelKey)
	opts.Mode = prompt.ModeExecutePlan
	return a.exec.Execute(ctx, withUser(history, prompt.ExecutePlanRequest(description, plan)), modelKey, onChunk, opts)
}

// =============================================================================
// EDIT OPERATIONS
// =============================================================================

// SmartEdit asks for <<<EDIT>>> blocks against currentCode.
func (a *Assistant) SmartEdit(ctx context.Context, instruction, currentCode string, history []model.Message, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	return a.exec.Execute(ctx, withUser(history, prompt.SmartEditRequest(instruction, currentCode)), modelKey, onChunk, cloud.Options{
		CountUsage:   true,
		SystemPrompt: a.system(prompt.ModeSmartEdit, modelKey),
		Mode:         prompt.ModeSmartEdit,
	})
}

// ModifyCode asks for a complete rewrite of currentCode.
func (a *Assistant) ModifyCode(ctx context.Context, instruction, currentCode string, history []model.Message, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	return a.exec.Execute(ctx, withUser(history, prompt.ModifyRequest(instruction, currentCode)), modelKey, onChunk, cloud.Options{
		CountUsage: true,
		Mode:       prompt.ModeDirectCode,
	})
}

// CustomizeSelection rewrites a selected snippet for one credit. A reply
// wrapped in a single fence is unwrapped.
func (a *Assistant) CustomizeSelection(ctx context.Context, selected, instruction, language, modelKey string) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	if language == "" {
		language = "text"
	}
	msgs := []model.Message{model.NewUserMessage(prompt.SelectionRequest(language, instruction, selected))}
	res, err := a.exec.Execute(ctx, msgs, modelKey, nil, cloud.Options{
		CountUsage:   true,
		UsageCost:    1,
		SystemPrompt: prompt.Compose(prompt.Spec{Mode: prompt.ModeSelectionEdit, ModelKey: modelKey, Language: language}),
		Mode:         prompt.ModeSelectionEdit,
	})
	if err != nil || res.Fallback {
		return res, err
	}
	res.Text = unwrapSingleFence(res.Text)
	return res, nil
}

func unwrapSingleFence(text string) string {
	blocks := files.ExtractBlocks(text)
	if len(blocks) != 1 {
		return text
	}
	b := blocks[0]
	if strings.TrimSpace(text[:b.Start]) != "" || strings.TrimSpace(text[b.End:]) != "" {
		return text
	}
	return b.Code
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a conversational message with the chat prompt and chat
// fallback.
func (a *Assistant) Chat(ctx context.Context, message string, history []model.Message, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	return a.exec.Execute(ctx, withUser(history, message), modelKey, onChunk, cloud.Options{
		CountUsage:   true,
		SystemPrompt: a.system(prompt.ModeChat, modelKey),
		Mode:         prompt.ModeChat,
		Fallback:     fallback.PolicyChat,
	})
}

// ChatResearch answers with the research assistant prompt for mode. In
// web-search mode web context is gathered first and embedded in the prompt.
// Empty modelKey selects the research model.
func (a *Assistant) ChatResearch(ctx context.Context, message string, mode prompt.ResearchMode, history []model.Message, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	if strings.TrimSpace(modelKey) == "" {
		modelKey = model.KeyResearch
	}
	modelKey = resolveModel(modelKey)
	if mode == "" {
		mode = prompt.ResearchChat
	}

	spec := prompt.Spec{Mode: prompt.ModeChatResearch, ModelKey: modelKey, Research: mode}
	skip := false
	if mode == prompt.ResearchWeb && a.researcher != nil {
		spec.WebContext = a.researcher.Gather(ctx, message)
		skip = true
	}

	return a.exec.Execute(ctx, withUser(history, message), modelKey, onChunk, cloud.Options{
		CountUsage:      true,
		UsageCost:       ChatResearchCost,
		SystemPrompt:    prompt.Compose(spec),
		Mode:            prompt.ModeChatResearch,
		Fallback:        fallback.PolicyChat,
		SkipWebResearch: skip,
	})
}

// =============================================================================
// CODE HELPERS
// =============================================================================

// ExplainCode asks for an explanation of code.
func (a *Assistant) ExplainCode(ctx context.Context, code, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	return a.single(ctx, prompt.ExplainRequest(code), modelKey, onChunk)
}

// FixCode asks for a fix of code given the error it produced.
func (a *Assistant) FixCode(ctx context.Context, code, errText, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	return a.single(ctx, prompt.FixRequest(code, errText), modelKey, onChunk)
}

// ImproveCode asks for improvements focused on aspects, if any.
func (a *Assistant) ImproveCode(ctx context.Context, code string, aspects []string, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	return a.single(ctx, prompt.ImproveRequest(code, aspects), modelKey, onChunk)
}

func (a *Assistant) single(ctx context.Context, content, modelKey string, onChunk cloud.ChunkFunc) (cloud.Result, error) {
	modelKey = resolveModel(modelKey)
	msgs := []model.Message{model.NewUserMessage(content)}
	return a.exec.Execute(ctx, msgs, modelKey, onChunk, cloud.Options{CountUsage: true})
}
