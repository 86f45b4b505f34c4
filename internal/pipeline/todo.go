// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jeranaias/vibecode/internal/cloud"
	"github.com/jeranaias/vibecode/internal/fallback"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/prompt"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is one entry of a generated todo list.
type Task struct {
	Task     string `json:"task"`
	Priority string `json:"priority"`
}

var (
	jsonArrayRe  = regexp.MustCompile(`\[[\s\S]*\]`)
	numberMarkRe = regexp.MustCompile(`^\d+[.)]\s*`)
)

// GenerateTodoList breaks request into tasks. It is never charged and never
// falls back.
func (a *Assistant) GenerateTodoList(ctx context.Context, request, modelKey string) ([]Task, error) {
	modelKey = resolveModel(modelKey)
	msgs := []model.Message{model.NewUserMessage(prompt.TodoRequest(request))}
	res, err := a.exec.Execute(ctx, msgs, modelKey, nil, cloud.Options{
		SystemPrompt: a.system(prompt.ModeTodoList, modelKey),
		Mode:         prompt.ModeTodoList,
		Fallback:     fallback.PolicyNone,
	})
	if err != nil {
		return nil, err
	}
	return ParseTasks(res.Text), nil
}

// ParseTasks reads a JSON array of tasks out of reply. Without one, every
// non-empty line becomes a task with its "1." / "2)" numbering removed; the
// first two lines are high priority.
func ParseTasks(reply string) []Task {
	if m := jsonArrayRe.FindString(reply); m != "" {
		var tasks []Task
		if err := json.Unmarshal([]byte(m), &tasks); err == nil {
			out := tasks[:0]
			for _, t := range tasks {
				t.Task = strings.TrimSpace(t.Task)
				if t.Task == "" {
					continue
				}
				if t.Priority == "" {
					t.Priority = PriorityMedium
				}
				out = append(out, t)
			}
			return out
		}
	}

	var tasks []Task
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		priority := PriorityMedium
		if len(tasks) < 2 {
			priority = PriorityHigh
		}
		tasks = append(tasks, Task{
			Task:     strings.TrimSpace(numberMarkRe.ReplaceAllString(line, "")),
			Priority: priority,
		})
	}
	return tasks
}
