// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for vibe.
//
// # Key Types
//
//   - Command: Enumeration of the CLI commands
//   - Args: Parsed arguments with global and command-specific flags
//   - App: The pipeline, ledger, store and renderer for one invocation
//   - JSONResponse: The envelope every --json command prints
//
// # Usage
//
//	cmd, args := cli.Parse()
//	os.Exit(cli.Run(cmd, args))
//
// # Commands Overview
//
//   - ask: One request through the pipeline (also the default for bare words)
//   - chat: Interactive session with slash commands
//   - files, edit: Offline tools for replies and edit blocks
//   - preview: Loopback preview server for a project
//   - usage, models, config, sessions: Local state
//
// Every command supports --json. Errors map to exit codes in errors.go.
package cli
