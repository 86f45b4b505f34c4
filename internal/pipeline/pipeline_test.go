// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vibecode/internal/cloud"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/usage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type call struct {
	Messages []model.Message
	ModelKey string
	Opts     cloud.Options
	Streamed bool
}

func (c call) lastUser() string {
	return model.LastUserContent(c.Messages)
}

// scripted answers each call with the next reply; a nil reply function
// result means "fail with err".
type scripted struct {
	mu      sync.Mutex
	calls   []call
	replies []func(call) (cloud.Result, error)
}

func (s *scripted) Execute(_ context.Context, msgs []model.Message, modelKey string, onChunk cloud.ChunkFunc, opts cloud.Options) (cloud.Result, error) {
	s.mu.Lock()
	c := call{Messages: msgs, ModelKey: modelKey, Opts: opts, Streamed: onChunk != nil}
	s.calls = append(s.calls, c)
	idx := len(s.calls) - 1
	s.mu.Unlock()

	if idx >= len(s.replies) {
		return cloud.Result{}, errors.New("unexpected call")
	}
	res, err := s.replies[idx](c)
	if err == nil && onChunk != nil {
		onChunk(res.Text, res.Text)
	}
	return res, err
}

func text(s string) func(call) (cloud.Result, error) {
	return func(call) (cloud.Result, error) { return cloud.Result{Text: s}, nil }
}

func fail(err error) func(call) (cloud.Result, error) {
	return func(call) (cloud.Result, error) { return cloud.Result{}, err }
}

func newPipeline(replies ...func(call) (cloud.Result, error)) (*Pipeline, *scripted) {
	exec := &scripted{replies: replies}
	return New(NewAssistant(exec)), exec
}

const codeReply = "Here you go:\n\n```html\n<h1>Timer</h1>\n```\n```css\nh1 { color: red; }\n```\n"

var longCode = strings.Repeat("<div class=\"row\">cell</div>\n", 4)

// =============================================================================
// HEURISTICS
// =============================================================================

func TestLooksLikeChecklist(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"implementation plan phrase", "Here is the Implementation Plan for you", true},
		{"todo phrase", "My TODO items:", true},
		{"to-do phrase", "a to-do app", true},
		{"four bullets no code", "- a\n- b\n1. c\n2) d", true},
		{"three bullets", "- a\n- b\n- c", false},
		{"bullets with code", "- a\n- b\n- c\n- d\n```js\nx()\n```", false},
		{"plain code", "```html\n<p>hi</p>\n```", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeChecklist(tt.text))
		})
	}
}

func TestIsLargePrompt(t *testing.T) {
	assert.False(t, IsLargePrompt("make a timer"))
	assert.False(t, IsLargePrompt(strings.Repeat("a", 200)))
	assert.True(t, IsLargePrompt(strings.Repeat("a", 201)))
	assert.False(t, IsLargePrompt("1\n2\n3\n4\n5"))
	assert.True(t, IsLargePrompt("1\n2\n3\n4\n5\n6"))
}

func TestIsEditRequest(t *testing.T) {
	assert.True(t, IsEditRequest("Change the title to blue", longCode))
	assert.True(t, IsEditRequest("please make it darker", longCode))
	assert.False(t, IsEditRequest("Change the title", "<p>short</p>"))
	assert.False(t, IsEditRequest("a calculator app", longCode))
	assert.False(t, IsEditRequest("additional", longCode))
}

func TestParseTasks(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		tasks := ParseTasks("Sure:\n[{\"task\":\"Layout\",\"priority\":\"high\"},{\"task\":\"Logic\"},{\"task\":\" \"}]\nDone")
		require.Len(t, tasks, 2)
		assert.Equal(t, Task{Task: "Layout", Priority: PriorityHigh}, tasks[0])
		assert.Equal(t, PriorityMedium, tasks[1].Priority)
	})

	t.Run("line split", func(t *testing.T) {
		tasks := ParseTasks("1. Layout\n\n2) Styles\n3. Logic\nPolish")
		require.Len(t, tasks, 4)
		assert.Equal(t, "Layout", tasks[0].Task)
		assert.Equal(t, PriorityHigh, tasks[0].Priority)
		assert.Equal(t, "Styles", tasks[1].Task)
		assert.Equal(t, PriorityHigh, tasks[1].Priority)
		assert.Equal(t, PriorityMedium, tasks[2].Priority)
		assert.Equal(t, "Polish", tasks[3].Task)
	})

	t.Run("invalid json falls back to lines", func(t *testing.T) {
		tasks := ParseTasks("[not json]")
		require.Len(t, tasks, 1)
		assert.Equal(t, "[not json]", tasks[0].Task)
	})
}

// =============================================================================
// STRATEGY SELECTION
// =============================================================================

func TestSelect(t *testing.T) {
	project := []files.ProjectFile{{Name: "index.html", Content: longCode}}

	assert.Equal(t, StrategyResearch, Select(Request{Message: "fix it", Research: prompt.ResearchWeb, Files: project}))
	assert.Equal(t, StrategyChat, Select(Request{Message: "fix it", Chat: true, Files: project}))
	assert.Equal(t, StrategySmartEdit, Select(Request{Message: "fix the header", Files: project}))
	assert.Equal(t, StrategyPlanBuild, Select(Request{Message: "fix the header"}))
	assert.Equal(t, StrategyDirect, Select(Request{Message: "a todo app", AIMode: AIModeCodeFast}))
	assert.Equal(t, StrategyPlanBuild, Select(Request{Message: "a todo app", AIMode: "unknown"}))
}

// =============================================================================
// BUILD STRATEGIES
// =============================================================================

func TestSend_PlanBuild(t *testing.T) {
	p, exec := newPipeline(
		text("1. Layout\n2. Logic"),
		text(codeReply),
	)
	var phases []Phase
	out, err := p.Send(context.Background(), Request{
		Message:  "a pomodoro timer",
		ModelKey: model.KeyPro,
		Thinking: model.ThinkingHigh,
		OnChunk:  func(string, string) {},
		OnPhase:  func(ph Phase) { phases = append(phases, ph) },
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyPlanBuild, out.Strategy)
	assert.Equal(t, "1. Layout\n2. Logic", out.Plan)
	assert.Equal(t, []Phase{PhasePlanning, PhaseBuilding}, phases)
	require.Len(t, out.Files, 2)
	assert.Equal(t, "index.html", out.Files[0].Name)
	assert.False(t, out.Scaffolded)

	require.Len(t, exec.calls, 2)
	plan := exec.calls[0]
	assert.Equal(t, model.KeyThinking, plan.ModelKey)
	assert.False(t, plan.Opts.CountUsage)
	assert.Equal(t, fallback.PolicyNone, plan.Opts.Fallback)
	assert.Equal(t, prompt.ModePlan, plan.Opts.Mode)
	assert.Contains(t, plan.lastUser(), "Thinking mode: HIGH (5 credits)")
	assert.False(t, plan.Streamed)

	build := exec.calls[1]
	assert.Equal(t, model.KeyPro, build.ModelKey)
	assert.True(t, build.Opts.CountUsage)
	assert.Equal(t, 5, build.Opts.UsageCost)
	assert.Equal(t, fallback.PolicyNone, build.Opts.Fallback)
	assert.Equal(t, prompt.Compose(prompt.Spec{Mode: prompt.ModeExecutePlan, ModelKey: model.KeyPro}), build.Opts.SystemPrompt)
	assert.Contains(t, build.lastUser(), "Approved plan:\n1. Layout\n2. Logic")
	assert.True(t, build.Streamed)
}

func TestSend_PlanWithCodeIsCanned(t *testing.T) {
	p, exec := newPipeline(
		text("Plan:\n```js\nconsole.log(1)\n```"),
		text(codeReply),
	)
	out, err := p.Send(context.Background(), Request{Message: "a clock"})
	require.NoError(t, err)
	assert.Equal(t, CannedPlan, out.Plan)
	assert.Contains(t, exec.calls[1].lastUser(), CannedPlan)
}

func TestSend_DirectRefinesChecklist(t *testing.T) {
	p, exec := newPipeline(
		text("Implementation plan:\n1. a\n2. b"),
		text(codeReply),
	)
	out, err := p.Send(context.Background(), Request{Message: "a clock", AIMode: AIModeCodeFast})
	require.NoError(t, err)

	assert.Equal(t, StrategyDirect, out.Strategy)
	assert.True(t, out.Refined)
	assert.Equal(t, codeReply, out.Reply)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, 3, exec.calls[0].Opts.UsageCost)
	refine := exec.calls[1]
	assert.False(t, refine.Opts.CountUsage)
	assert.Equal(t, fallback.PolicyNone, refine.Opts.Fallback)
	assert.Equal(t, prompt.RefineRequest("a clock"), refine.lastUser())
}

func TestSend_ScaffoldWhenNoCode(t *testing.T) {
	p, _ := newPipeline(text("I would build a nice page for you."))
	var chunks []string
	out, err := p.Send(context.Background(), Request{
		Message: "landing page",
		AIMode:  AIModeCodeFast,
		OnChunk: func(delta, _ string) { chunks = append(chunks, delta) },
	})
	require.NoError(t, err)

	assert.True(t, out.Scaffolded)
	assert.True(t, strings.HasPrefix(out.Reply, "I would build a nice page for you."))
	require.Len(t, out.Files, 3)
	assert.Equal(t, "index.html", out.Files[0].Name)
	assert.Contains(t, out.Files[0].Content, "landing page")
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[1], "```html")
}

func TestSend_LargePromptProducesTodo(t *testing.T) {
	long := strings.Repeat("build a dashboard with charts. ", 10)
	p, exec := newPipeline(
		text(`[{"task":"Charts","priority":"high"}]`),
		text(codeReply),
	)
	out, err := p.Send(context.Background(), Request{Message: long, AIMode: AIModeCodeFast})
	require.NoError(t, err)

	require.Len(t, out.Todo, 1)
	assert.Equal(t, "Charts", out.Todo[0].Task)
	todo := exec.calls[0]
	assert.Equal(t, prompt.ModeTodoList, todo.Opts.Mode)
	assert.False(t, todo.Opts.CountUsage)
	assert.Equal(t, fallback.PolicyNone, todo.Opts.Fallback)
}

func TestSend_TodoFailureIsIgnored(t *testing.T) {
	long := strings.Repeat("x", 250)
	p, _ := newPipeline(fail(errors.New("boom")), text(codeReply))
	out, err := p.Send(context.Background(), Request{Message: long, AIMode: AIModeCodeFast})
	require.NoError(t, err)
	assert.Nil(t, out.Todo)
	assert.Len(t, out.Files, 2)
}

func TestSend_QuotaCheckedBeforePlanning(t *testing.T) {
	ledger := usage.NewMemoryLedger(5)
	require.NoError(t, ledger.Increment(4))

	exec := &scripted{}
	p := New(NewAssistant(exec), WithLedger(ledger))
	_, err := p.Send(context.Background(), Request{Message: "a clock", Thinking: model.ThinkingMid})

	require.Error(t, err)
	assert.ErrorIs(t, err, cloud.ErrQuotaExceeded)
	var qe *cloud.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 3, qe.Needed)
	assert.Empty(t, exec.calls)
}

func TestSend_BuildErrorPropagates(t *testing.T) {
	p, _ := newPipeline(text("plan"), fail(cloud.ErrTimeout))
	_, err := p.Send(context.Background(), Request{Message: "a clock"})
	assert.ErrorIs(t, err, cloud.ErrTimeout)
}

func TestSend_EmptyMessage(t *testing.T) {
	p, _ := newPipeline()
	_, err := p.Send(context.Background(), Request{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

// =============================================================================
// SMART EDIT
// =============================================================================

const editReply = "<<<EDIT>>>\nFIND:\n<h1>Old</h1>\nREPLACE:\n<h1>New</h1>\n<<<END_EDIT>>>\n" +
	"<<<EDIT>>>\nFIND:\n<p>missing</p>\nREPLACE:\n<p>x</p>\n<<<END_EDIT>>>"

func TestSend_SmartEditAppliesBlocks(t *testing.T) {
	source := "<h1>Old</h1>\n" + longCode
	project := []files.ProjectFile{{ID: "keep", Name: "index.html", Content: source, Language: files.LangHTML}}
	history := make([]model.Message, 9)
	for i := range history {
		history[i] = model.NewUserMessage("m")
	}

	p, exec := newPipeline(text(editReply))
	out, err := p.Send(context.Background(), Request{Message: "change the heading", Files: project, History: history})
	require.NoError(t, err)

	assert.Equal(t, StrategySmartEdit, out.Strategy)
	require.NotNil(t, out.Edit)
	assert.Equal(t, 1, out.Edit.Applied())
	assert.Equal(t, []int{1}, out.Edit.Skipped())
	assert.True(t, strings.HasPrefix(out.Code, "<h1>New</h1>"))
	require.Len(t, out.Files, 1)
	assert.Equal(t, "keep", out.Files[0].ID)
	assert.Equal(t, out.Code, out.Files[0].Content)

	require.Len(t, exec.calls, 1)
	c := exec.calls[0]
	assert.Len(t, c.Messages, SmartEditContextMessages+1)
	assert.Equal(t, prompt.ModeSmartEdit, c.Opts.Mode)
	assert.True(t, c.Opts.CountUsage)
	assert.Contains(t, c.lastUser(), "Please make ONLY these changes")
}

func TestSend_SmartEditMultiFileProject(t *testing.T) {
	project := []files.ProjectFile{
		{ID: "a", Name: "index.html", Content: "<h1>Old</h1>\n" + longCode, Language: files.LangHTML},
		{ID: "b", Name: "style.css", Content: "h1 { color: red; }", Language: files.LangCSS},
	}
	reply := "<<<EDIT>>>\nFIND:\ncolor: red;\nREPLACE:\ncolor: blue;\n<<<END_EDIT>>>"

	p, _ := newPipeline(text(reply))
	out, err := p.Send(context.Background(), Request{Message: "update the color", Files: project})
	require.NoError(t, err)

	require.Len(t, out.Files, 2)
	css, ok := files.Find(out.Files, "style.css")
	require.True(t, ok)
	assert.Equal(t, "b", css.ID)
	assert.Equal(t, "h1 { color: blue; }", css.Content)
}

func TestSend_SmartEditWithoutBlocksParsesFiles(t *testing.T) {
	p, _ := newPipeline(text(codeReply))
	out, err := p.Send(context.Background(), Request{Message: "fix the layout", Code: longCode})
	require.NoError(t, err)
	assert.Nil(t, out.Edit)
	assert.Empty(t, out.Code)
	assert.Len(t, out.Files, 2)
}

func TestSend_SmartEditFallbackLeavesProject(t *testing.T) {
	p, _ := newPipeline(func(call) (cloud.Result, error) {
		return cloud.Result{Text: "```html\n<p>offline</p>\n```", Fallback: true, Reason: "Request timed out after 90s."}, nil
	})
	out, err := p.Send(context.Background(), Request{Message: "fix the layout", Code: longCode})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, "Request timed out after 90s.", out.FallbackReason)
	assert.Nil(t, out.Files)
	assert.Nil(t, out.Edit)
}

// =============================================================================
// CHAT AND RESEARCH
// =============================================================================

type staticResearcher struct{ context string }

func (s staticResearcher) Gather(context.Context, string) string { return s.context }

func TestSend_Chat(t *testing.T) {
	p, exec := newPipeline(text("Hello!"))
	history := make([]model.Message, 14)
	for i := range history {
		history[i] = model.NewAssistantMessage("x")
	}
	out, err := p.Send(context.Background(), Request{Message: "hi", Chat: true, History: history})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", out.Reply)

	c := exec.calls[0]
	assert.Len(t, c.Messages, BuildContextMessages+1)
	assert.Equal(t, fallback.PolicyChat, c.Opts.Fallback)
	assert.Equal(t, prompt.ModeChat, c.Opts.Mode)
	assert.Contains(t, c.Opts.SystemPrompt, prompt.ChatMarker)
}

func TestSend_ResearchWebSearch(t *testing.T) {
	exec := &scripted{replies: []func(call) (cloud.Result, error){text("Answer [1]")}}
	a := NewAssistant(exec, WithResearcher(staticResearcher{context: "Web research context for \"go\":\n[1] Go"}))
	out, err := New(a).Send(context.Background(), Request{Message: "what is go", Research: prompt.ResearchWeb})
	require.NoError(t, err)
	assert.Equal(t, StrategyResearch, out.Strategy)

	c := exec.calls[0]
	assert.Equal(t, model.KeyResearch, c.ModelKey)
	assert.Equal(t, ChatResearchCost, c.Opts.UsageCost)
	assert.True(t, c.Opts.CountUsage)
	assert.True(t, c.Opts.SkipWebResearch)
	assert.Equal(t, fallback.PolicyChat, c.Opts.Fallback)
	assert.Contains(t, c.Opts.SystemPrompt, "[1] Go")
}

func TestChatResearch_DeepDoesNotGather(t *testing.T) {
	exec := &scripted{replies: []func(call) (cloud.Result, error){text("Deep answer")}}
	a := NewAssistant(exec, WithResearcher(staticResearcher{context: "SHOULD NOT APPEAR"}))
	_, err := a.ChatResearch(context.Background(), "topic", prompt.ResearchDeep, nil, model.KeyPro, nil)
	require.NoError(t, err)

	c := exec.calls[0]
	assert.Equal(t, model.KeyPro, c.ModelKey)
	assert.False(t, c.Opts.SkipWebResearch)
	assert.NotContains(t, c.Opts.SystemPrompt, "SHOULD NOT APPEAR")
}

// =============================================================================
// ASSISTANT OPERATIONS
// =============================================================================

func TestCustomizeSelection(t *testing.T) {
	exec := &scripted{replies: []func(call) (cloud.Result, error){text("```js\nconst x = 2;\n```")}}
	a := NewAssistant(exec)
	res, err := a.CustomizeSelection(context.Background(), "const x = 1;", "use 2", "", "")
	require.NoError(t, err)
	assert.Equal(t, "const x = 2;", res.Text)

	c := exec.calls[0]
	assert.Equal(t, model.DefaultModel, c.ModelKey)
	assert.Equal(t, 1, c.Opts.UsageCost)
	assert.Equal(t, prompt.ModeSelectionEdit, c.Opts.Mode)
	assert.Contains(t, c.lastUser(), "Language: text")
}

func TestCodeHelpers(t *testing.T) {
	exec := &scripted{replies: []func(call) (cloud.Result, error){text("a"), text("b"), text("c"), text("d")}}
	a := NewAssistant(exec)
	ctx := context.Background()

	_, err := a.ExplainCode(ctx, "x()", "", nil)
	require.NoError(t, err)
	_, err = a.FixCode(ctx, "x()", "x is undefined", "", nil)
	require.NoError(t, err)
	_, err = a.ImproveCode(ctx, "x()", []string{"speed"}, "", nil)
	require.NoError(t, err)
	_, err = a.ModifyCode(ctx, "rename x", "x()", nil, "", nil)
	require.NoError(t, err)

	require.Len(t, exec.calls, 4)
	assert.Equal(t, prompt.ExplainRequest("x()"), exec.calls[0].lastUser())
	assert.Contains(t, exec.calls[1].lastUser(), "Error: x is undefined")
	assert.Contains(t, exec.calls[2].lastUser(), "Focus on: speed")
	assert.Contains(t, exec.calls[3].lastUser(), "Provide the complete updated code.")
	for _, c := range exec.calls {
		assert.True(t, c.Opts.CountUsage)
		assert.Empty(t, c.Opts.SystemPrompt)
		assert.Len(t, c.Messages, 1)
	}
}
