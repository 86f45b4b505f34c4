// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline turns a user turn into model calls.
//
// Assistant holds one method per assistant operation and decides the system
// prompt, usage charge and fallback policy of each. Pipeline picks a named
// strategy for a Request and runs it:
//
//   - research: Request.Research is set
//   - chat: Request.Chat is set
//   - smart-edit: the message asks for a change and there is code to change
//   - direct / plan-build: everything else, by AI mode
//
// Build strategies retry checklist replies once without charging, append a
// starter project when the reply has no code, and parse the reply into files.
//
//	p := pipeline.New(pipeline.NewAssistant(exec), pipeline.WithLedger(ledger))
//	out, err := p.Send(ctx, pipeline.Request{Message: "a pomodoro timer"})
package pipeline
