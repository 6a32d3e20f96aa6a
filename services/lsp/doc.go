// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp is a Language Server Protocol client for language servers
// running as child processes over stdio.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                             Manager                              │
//	│   language detection · lazy start · aggregated diagnostics       │
//	│                                                                  │
//	│   ┌──────────────────────── Client ────────────────────────────┐ │
//	│   │  writer task ──► stdin       stdout ──► reader task        │ │
//	│   │      ▲                                    │                │ │
//	│   │  write queue                    pending table / handlers   │ │
//	│   │      ▲                                    │                │ │
//	│   │  SendRequest / Notify          diagnostics / documents     │ │
//	│   │                                                            │ │
//	│   │  stderr task ──► log sink      supervisor ──► child handle │ │
//	│   └────────────────────────────────────────────────────────────┘ │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Components
//
//   - Codec: Content-Length framing over a byte stream
//   - Message: JSON-RPC 2.0 envelope (request, response, notification)
//   - Client: one language server process and its session state
//   - Manager: one Client per language, started on first use
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
//
// # Example
//
//	mgr := lsp.NewManager(lsp.ManagerConfig{RootPath: root, Servers: lsp.DefaultServers()})
//	defer mgr.ShutdownAll(context.Background())
//
//	if err := mgr.OpenFile(ctx, "/repo/main.go", src); err != nil {
//	    return err
//	}
//	diags := mgr.Diagnostics("/repo/main.go")
package lsp
