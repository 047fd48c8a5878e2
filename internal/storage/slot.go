// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/haoxiang-xu/PuPu-sub000/internal/util"
)

// DefaultKey is the slot key the chat store document lives under.
const DefaultKey = "chats"

// =============================================================================
// SLOT INTERFACE
// =============================================================================

// Slot is a durable single-value store. Read returns ErrSlotEmpty when no
// value has been written yet.
type Slot interface {
	// Read returns the stored bytes.
	Read() ([]byte, error)

	// Write replaces the stored bytes.
	Write(data []byte) error

	// Key identifies the slot for diagnostics.
	Key() string
}

// ErrSlotEmpty is returned by Read when the slot holds no value.
// Use errors.Is(err, ErrSlotEmpty) to check for this error.
var ErrSlotEmpty = &SlotError{Message: "slot is empty"}

// SlotError represents a slot-related error.
type SlotError struct {
	Message string
}

// Error implements the error interface.
func (e *SlotError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing slot errors.
func (e *SlotError) Is(target error) bool {
	t, ok := target.(*SlotError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// FILE SLOT
// =============================================================================

// FileSlot persists the value as one JSON file, written atomically.
type FileSlot struct {
	path string
	key  string
}

// NewFileSlot creates a slot backed by the given file path.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path, key: DefaultKey}
}

// Path returns the backing file path.
func (s *FileSlot) Path() string {
	return s.path
}

// Key returns the slot key.
func (s *FileSlot) Key() string {
	return s.key
}

// Read returns the file contents, or ErrSlotEmpty when the file does not
// exist yet.
func (s *FileSlot) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSlotEmpty
		}
		return nil, fmt.Errorf("failed to read slot file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrSlotEmpty
	}
	return data, nil
}

// Write replaces the file contents atomically.
func (s *FileSlot) Write(data []byte) error {
	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write slot file: %w", err)
	}
	return nil
}

// =============================================================================
// MEMORY SLOT
// =============================================================================

// MemorySlot is an in-memory slot for tests and ephemeral sessions. The
// write failure switches simulate storage-quota errors.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte

	// FailWrites makes every Write fail until cleared.
	FailWrites bool

	// FailWritesOver makes Write fail for payloads larger than the given
	// byte count when non-zero, mimicking a quota-limited backend.
	FailWritesOver int
}

// NewMemorySlot creates an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// Key returns the slot key.
func (s *MemorySlot) Key() string {
	return DefaultKey
}

// Read returns the stored bytes, or ErrSlotEmpty.
func (s *MemorySlot) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrSlotEmpty
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Write replaces the stored bytes.
func (s *MemorySlot) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return &SlotError{Message: "write rejected"}
	}
	if s.FailWritesOver > 0 && len(data) > s.FailWritesOver {
		return &SlotError{Message: "quota exceeded"}
	}
	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

// Seed stores raw bytes without going through Write, bypassing the
// failure switches. Intended for test setup.
func (s *MemorySlot) Seed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make([]byte, len(data))
	copy(s.data, data)
}
