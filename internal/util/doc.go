// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the PuPu chat store:
// atomic file writes, rune-safe string handling, and numeric formatting.
//
// Nothing in this package knows about chats or trees; it exists so the
// storage and store packages do not each grow private copies of the same
// file and string plumbing.
package util
