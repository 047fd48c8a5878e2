// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable slot behind the chat store: a
// single keyed value holding the JSON-serialized store document.
//
// Three implementations are provided. FileSlot persists to one JSON file
// with atomic writes, MemorySlot backs tests and ephemeral sessions, and
// SQLiteSlot keeps the document in a key/value table for installations
// that already carry a database.
//
// The slot is deliberately dumb: it moves bytes and reports errors. All
// schema knowledge, normalization and recovery lives in the chatstore
// package above it.
package storage
