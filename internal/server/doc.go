// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local preview server.
//
// Endpoints:
//   - GET  /                 - combined preview page (HTML with CSS and JS inlined)
//   - GET  /files            - JSON list of the current project files
//   - GET  /files/{name}     - raw file content
//   - POST /api/parse        - parse a model reply into files and serve them
//   - POST /api/edit/{name}  - apply <<<EDIT>>> blocks to one file
//   - GET  /healthz          - health check
//
// The server only binds loopback addresses.
package server
