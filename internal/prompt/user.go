// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"strconv"
	"strings"

	"github.com/jeranaias/vibecode/internal/model"
)

const fence = "```"

func fenced(lang, code string) string {
	return fence + lang + "\n" + code + "\n" + fence
}

// SmartEditRequest asks for targeted edit blocks against currentCode.
func SmartEditRequest(instruction, currentCode string) string {
	return "Here is my current code:\n\n" + fenced("", currentCode) +
		"\n\nPlease make ONLY these changes (do NOT rewrite the whole file): " + instruction +
		"\n\nUse <<<EDIT>>> blocks to show what to find and replace."
}

// ModifyRequest asks for a full rewrite of currentCode.
func ModifyRequest(instruction, currentCode string) string {
	return "Here is my current code:\n\n" + fenced("", currentCode) +
		"\n\nPlease make: " + instruction + "\n\nProvide the complete updated code."
}

// SelectionRequest asks for an edited version of a selected snippet only.
func SelectionRequest(language, instruction, selected string) string {
	if language == "" {
		language = "text"
	}
	return "Language: " + language + "\nInstruction: " + instruction +
		"\n\nSelected code:\n" + fenced(language, selected) +
		"\n\nReturn only the updated selected code. No markdown."
}

// TodoRequest asks for the request broken into tasks.
func TodoRequest(request string) string {
	return "Break this request into a task list:\n\n" + request
}

// PlanRequest asks for a markdown implementation plan.
func PlanRequest(description string) string {
	return "Create an implementation plan for:\n\n" + description + "\n\nReturn only the plan in markdown."
}

// ExecutePlanRequest asks for code that follows an approved plan.
func ExecutePlanRequest(description, plan string) string {
	return "User request:\n" + description + "\n\nApproved plan:\n" + plan +
		"\n\nExecute the plan and return complete runnable code."
}

// RefineRequest re-asks for code after the model answered with a checklist.
func RefineRequest(message string) string {
	return message + "\n\nReturn complete runnable code now. Do not return any checklist or plan text."
}

// ExplainRequest asks for an explanation of code.
func ExplainRequest(code string) string {
	return "Explain this code:\n\n" + fenced("", code)
}

// FixRequest asks for a fix of code given the error it produced.
func FixRequest(code, errText string) string {
	return "Fix this code:\n\n" + fenced("", code) + "\n\nError: " + errText
}

// ImproveRequest asks for improvements, optionally focused on aspects.
func ImproveRequest(code string, aspects []string) string {
	focus := "Improve overall quality"
	if len(aspects) > 0 {
		focus = "Focus on: " + strings.Join(aspects, ", ")
	}
	return "Improve this code:\n\n" + fenced("", code) + "\n\n" + focus
}

// ForThinking wraps a build request with the thinking level's guidance and
// an optional persona line.
//
//	Thinking mode: HIGH (5 credits). Reason carefully, ...
//
//	Persona guidance: ...
//
//	User request:
//	<message>
func ForThinking(message string, level model.ThinkingLevel, persona string) string {
	sections := []string{
		"Thinking mode: " + strings.ToUpper(level.ID) + " (" + strconv.Itoa(level.Credits) + " credits). " + level.Guidance,
	}
	if p := strings.TrimSpace(persona); p != "" {
		sections = append(sections, "Persona guidance: "+p)
	}
	if level.ID == model.ThinkingExtraHigh {
		sections = append(sections, "Extra High mode directive: enhance the user prompt, infer missing requirements "+
			"responsibly, and return a production-ready solution with clear structure.")
	}
	sections = append(sections, "User request:\n"+message)
	return strings.Join(sections, "\n\n")
}
