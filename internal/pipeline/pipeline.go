// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/cloud"
	"github.com/jeranaias/vibecode/internal/edit"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/usage"
)

// ErrEmptyMessage is returned by Send for a blank message.
var ErrEmptyMessage = errors.New("empty message")

// History windows sent with each strategy.
const (
	BuildContextMessages     = 10
	SmartEditContextMessages = 6
)

// =============================================================================
// STRATEGIES
// =============================================================================

// Strategy names how a message is handled.
type Strategy string

const (
	StrategyChat      Strategy = "chat"
	StrategyResearch  Strategy = "research"
	StrategySmartEdit Strategy = "smart-edit"
	StrategyPlanBuild Strategy = "plan-build"
	StrategyDirect    Strategy = "direct"
)

// AI modes for build requests.
const (
	AIModePlanBuild = "plan-build"
	AIModeCodeFast  = "code-fast"
)

// Phase is a progress label reported while a request runs.
type Phase string

const (
	PhaseTodo       Phase = "Listing tasks"
	PhasePlanning   Phase = "Planning"
	PhaseBuilding   Phase = "Building"
	PhaseGenerating Phase = "Generating"
	PhaseRefining   Phase = "Refining"
	PhaseEditing    Phase = "Smart Editing"
	PhaseChatting   Phase = "Chatting"
	PhaseResearch   Phase = "Researching"
)

// Request is one user turn.
type Request struct {
	Message string
	// History is the conversation before Message. The strategy trims it to
	// its own window.
	History []model.Message

	ModelKey string
	Thinking string
	// AIMode is AIModePlanBuild or AIModeCodeFast. Empty means plan-build.
	AIMode  string
	Persona string

	// Chat forces the chat strategy.
	Chat bool
	// Research selects the research strategy with this submode.
	Research prompt.ResearchMode

	// Files is the current project. Edit-sounding messages are applied to
	// it as smart edits.
	Files []files.ProjectFile
	// Code overrides Files as the smart-edit target.
	Code string

	OnChunk cloud.ChunkFunc
	OnPhase func(Phase)
}

func (r Request) currentCode() string {
	if r.Code != "" {
		return r.Code
	}
	if len(r.Files) == 1 {
		return r.Files[0].Content
	}
	return files.Render(r.Files)
}

// Outcome is the result of a handled turn.
type Outcome struct {
	Strategy Strategy
	Reply    string

	Fallback       bool
	FallbackReason string

	// Plan is the plan used by plan-build.
	Plan string
	// Todo is the task list for large prompts, when one could be made.
	Todo []Task
	// Refined is set when a checklist reply was replaced by a second call.
	Refined bool
	// Scaffolded is set when the starter project was appended to the reply.
	Scaffolded bool

	// Files is the project after the turn. Nil means unchanged.
	Files []files.ProjectFile
	// Code is the edited smart-edit target, when edits were applied.
	Code string
	// Edit reports per-block results of a smart edit.
	Edit *edit.Report

	Duration time.Duration
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline selects a strategy for each request and runs it.
type Pipeline struct {
	assistant *Assistant
	ledger    usage.Ledger
	log       *logrus.Entry
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLedger enables the up-front credit check for build strategies.
func WithLedger(l usage.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) { p.log = logging.Component(l, "pipeline") }
}

// New returns a Pipeline over assistant.
func New(assistant *Assistant, opts ...Option) *Pipeline {
	p := &Pipeline{
		assistant: assistant,
		log:       logging.Component(logging.Discard(), "pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Assistant returns the underlying assistant.
func (p *Pipeline) Assistant() *Assistant { return p.assistant }

// Select returns the strategy for r without running it.
func Select(r Request) Strategy {
	switch {
	case r.Research != "":
		return StrategyResearch
	case r.Chat:
		return StrategyChat
	case IsEditRequest(r.Message, r.currentCode()):
		return StrategySmartEdit
	case r.AIMode == AIModeCodeFast:
		return StrategyDirect
	default:
		return StrategyPlanBuild
	}
}

// Send runs r through its strategy.
func (p *Pipeline) Send(ctx context.Context, r Request) (Outcome, error) {
	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return Outcome{}, ErrEmptyMessage
	}
	start := p.now()
	strategy := Select(r)
	log := p.log.WithFields(logrus.Fields{"strategy": strategy, "model": resolveModel(r.ModelKey)})
	log.Debug("sending")

	var (
		out Outcome
		err error
	)
	switch strategy {
	case StrategyResearch:
		out, err = p.research(ctx, r)
	case StrategyChat:
		out, err = p.chat(ctx, r)
	case StrategySmartEdit:
		out, err = p.smartEdit(ctx, r, log)
	case StrategyDirect, StrategyPlanBuild:
		out, err = p.build(ctx, r, strategy, log)
	}
	out.Strategy = strategy
	out.Duration = p.now().Sub(start)
	if err != nil {
		log.WithError(err).Debug("send failed")
	}
	return out, err
}

func phase(r Request, ph Phase) {
	if r.OnPhase != nil {
		r.OnPhase(ph)
	}
}

func fromResult(res cloud.Result) Outcome {
	return Outcome{Reply: res.Text, Fallback: res.Fallback, FallbackReason: res.Reason}
}

// =============================================================================
// CHAT STRATEGIES
// =============================================================================

func (p *Pipeline) chat(ctx context.Context, r Request) (Outcome, error) {
	phase(r, PhaseChatting)
	res, err := p.assistant.Chat(ctx, r.Message, model.Tail(r.History, BuildContextMessages), r.ModelKey, r.OnChunk)
	if err != nil {
		return Outcome{}, err
	}
	return fromResult(res), nil
}

func (p *Pipeline) research(ctx context.Context, r Request) (Outcome, error) {
	phase(r, PhaseResearch)
	res, err := p.assistant.ChatResearch(ctx, r.Message, r.Research, model.Tail(r.History, BuildContextMessages), r.ModelKey, r.OnChunk)
	if err != nil {
		return Outcome{}, err
	}
	return fromResult(res), nil
}

// =============================================================================
// SMART EDIT
// =============================================================================

func (p *Pipeline) smartEdit(ctx context.Context, r Request, log *logrus.Entry) (Outcome, error) {
	todo := p.todo(ctx, r, log)

	phase(r, PhaseEditing)
	current := r.currentCode()
	res, err := p.assistant.SmartEdit(ctx, r.Message, current, model.Tail(r.History, SmartEditContextMessages), r.ModelKey, r.OnChunk)
	if err != nil {
		return Outcome{}, err
	}
	out := fromResult(res)
	out.Todo = todo
	if res.Fallback {
		return out, nil
	}

	blocks := edit.Parse(res.Text)
	if len(blocks) == 0 {
		// No edit blocks: treat the reply as whole files.
		out.Files = files.Parse(res.Text)
		log.WithField("files", len(out.Files)).Debug("no edit blocks, parsed whole files")
		return out, nil
	}

	report := edit.ApplyReport(current, blocks)
	out.Edit = &report
	out.Code = report.Result
	if r.Code == "" && len(r.Files) > 0 {
		out.Files = rebuildFiles(r.Files, report.Result)
	}
	log.WithFields(logrus.Fields{"applied": report.Applied(), "blocks": len(blocks)}).Debug("edits applied")
	return out, nil
}

// rebuildFiles maps edited code back onto the project it was rendered from.
func rebuildFiles(project []files.ProjectFile, code string) []files.ProjectFile {
	if len(project) == 1 {
		f := project[0]
		f.Content = code
		return []files.ProjectFile{f}
	}
	parsed := files.Parse(code)
	out := make([]files.ProjectFile, 0, len(parsed))
	for _, f := range parsed {
		if old, ok := files.Find(project, f.Name); ok {
			f.ID = old.ID
		}
		out = append(out, f)
	}
	return out
}

// =============================================================================
// BUILD STRATEGIES
// =============================================================================

func (p *Pipeline) build(ctx context.Context, r Request, strategy Strategy, log *logrus.Entry) (Outcome, error) {
	level := model.Thinking(r.Thinking)
	cost := level.Credits

	if p.ledger != nil {
		info, err := p.ledger.Info(cost)
		if err != nil {
			return Outcome{}, fmt.Errorf("usage ledger: %w", err)
		}
		if !info.CanAfford {
			return Outcome{}, &cloud.QuotaError{Used: info.Used, Limit: info.Limit, Needed: info.Needed}
		}
	}

	out := Outcome{Todo: p.todo(ctx, r, log)}

	history := model.Tail(r.History, BuildContextMessages)
	modelKey := resolveModel(r.ModelKey)
	finalMessage := prompt.ForThinking(r.Message, level, r.Persona)
	opts := cloud.Options{CountUsage: true, UsageCost: cost, Fallback: fallback.PolicyNone}

	var (
		res cloud.Result
		err error
	)
	if strategy == StrategyPlanBuild {
		phase(r, PhasePlanning)
		out.Plan, err = p.assistant.GeneratePlan(ctx, finalMessage, history, model.KeyThinking)
		if err != nil {
			return out, err
		}
		phase(r, PhaseBuilding)
		res, err = p.assistant.GenerateCodeFromPlan(ctx, finalMessage, out.Plan, history, modelKey, opts, r.OnChunk)
	} else {
		phase(r, PhaseGenerating)
		res, err = p.assistant.GenerateCode(ctx, finalMessage, history, modelKey, opts, r.OnChunk)
	}
	if err != nil {
		return out, err
	}
	reply := res.Text

	if LooksLikeChecklist(reply) {
		phase(r, PhaseRefining)
		log.Debug("reply looks like a checklist, refining")
		refined, err := p.assistant.GenerateCode(ctx, prompt.RefineRequest(r.Message), history, modelKey,
			cloud.Options{Fallback: fallback.PolicyNone}, r.OnChunk)
		if err != nil {
			return out, err
		}
		reply = refined.Text
		out.Refined = true
	}

	base := reply
	reply, out.Scaffolded = files.EnsureCode(reply, r.Message)
	if out.Scaffolded && r.OnChunk != nil {
		r.OnChunk(strings.TrimPrefix(reply, base), reply)
	}
	out.Reply = reply
	out.Files = files.Parse(reply)
	return out, nil
}

// todo generates a task list for large prompts. Failures are logged only.
func (p *Pipeline) todo(ctx context.Context, r Request, log *logrus.Entry) []Task {
	if !IsLargePrompt(r.Message) {
		return nil
	}
	phase(r, PhaseTodo)
	tasks, err := p.assistant.GenerateTodoList(ctx, r.Message, r.ModelKey)
	if err != nil {
		log.WithError(err).Debug("todo list unavailable")
		return nil
	}
	return tasks
}
