// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the persisted chat store data model: chat sessions
// with their messages, drafts and model settings, the folder/chat tree that
// organizes them, and the store document that ties both together.
//
// All timestamps are milliseconds since the Unix epoch, matching the wire
// schema. Enumerations (roles, statuses, attachment kinds) are closed typed
// strings; they are validated only at the sanitizer boundary, so values
// that survive sanitization can be trusted everywhere else.
//
// The field-level sanitizers in this package are total: they accept any
// input, clamp or coerce what they can, and drop what they cannot. They
// never return an error.
package model
