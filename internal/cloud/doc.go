// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud executes chat-completion requests against an
// OpenAI-compatible endpoint.
//
// # Key Types
//
//   - Executor: runs one request at a time with quota checks, timeouts,
//     cancellation, streaming with an empty-stream retry, and fallbacks
//   - Decoder: incremental SSE / newline-delimited JSON decoder
//   - WebResearcher: best-effort instant-answer lookups for research models
//   - RequestError, QuotaError, ProviderError: the failure taxonomy
//
// # Usage
//
//	exec := cloud.NewExecutor(cfg, cloud.WithLedger(ledger))
//	res, err := exec.Execute(ctx, msgs, "pro", func(delta, full string) {
//	    fmt.Print(delta)
//	}, cloud.Options{CountUsage: true})
//
// # Security
//
// API keys are never logged; log lines carry a SHA-256 fingerprint instead.
package cloud
