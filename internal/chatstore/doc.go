// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatstore implements the normalized, size-bounded chat store: a
// forest of folders and chats organizing persisted chat sessions, kept
// valid across arbitrary mutation sequences.
//
// The package is built around three guarantees:
//
//   - Normalization is total and idempotent. Any bytes read from the
//     durable slot (corrupt, legacy schema v1, or hand-edited) decode to
//     a store satisfying every structural invariant: the tree is an
//     acyclic forest, every chat node references exactly one existing
//     session and every session has at most one node, exactly one active
//     chat always exists, and sibling labels are unique.
//
//   - Mutations never fail. Every public mutation reads the persisted
//     store, applies its change, re-normalizes, evicts down to the size
//     budget, persists, and publishes the result to subscribers. Invalid
//     parameters degrade to a no-op returning the unchanged store.
//
//   - Snapshots are immutable. Callers and subscribers always receive
//     deep clones; nothing handed out aliases internal state.
//
// The mutation path is synchronous and serialized by a mutex, so no
// caller ever observes a partially-updated store. Asynchrony exists only
// at the edges: the optional Coalescer bounds persist frequency for
// streaming callers, and the optional Watcher republishes snapshots when
// another process rewrites the slot file.
package chatstore
