// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

// =============================================================================
// FILE SLOT TESTS
// =============================================================================

func TestFileSlot_EmptyRead(t *testing.T) {
	slot := NewFileSlot(filepath.Join(t.TempDir(), "chats.json"))

	_, err := slot.Read()
	if !errors.Is(err, ErrSlotEmpty) {
		t.Errorf("expected ErrSlotEmpty, got %v", err)
	}
}

func TestFileSlot_WriteRead(t *testing.T) {
	slot := NewFileSlot(filepath.Join(t.TempDir(), "nested", "chats.json"))

	if err := slot.Write([]byte(`{"schemaVersion":2}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := slot.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != `{"schemaVersion":2}` {
		t.Errorf("Read = %q", data)
	}

	if slot.Key() != DefaultKey {
		t.Errorf("Key = %q, want %q", slot.Key(), DefaultKey)
	}
}

// =============================================================================
// MEMORY SLOT TESTS
// =============================================================================

func TestMemorySlot_FailureSwitches(t *testing.T) {
	slot := NewMemorySlot()

	if _, err := slot.Read(); !errors.Is(err, ErrSlotEmpty) {
		t.Errorf("expected ErrSlotEmpty, got %v", err)
	}

	slot.FailWrites = true
	if err := slot.Write([]byte("x")); err == nil {
		t.Error("expected write failure")
	}
	slot.FailWrites = false

	slot.FailWritesOver = 4
	if err := slot.Write([]byte("longer than four")); err == nil {
		t.Error("expected quota failure")
	}
	if err := slot.Write([]byte("ok")); err != nil {
		t.Errorf("small write should succeed, got %v", err)
	}

	data, err := slot.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("Read = %q, want %q", data, "ok")
	}
}

func TestMemorySlot_ReadReturnsCopy(t *testing.T) {
	slot := NewMemorySlot()
	slot.Seed([]byte("abc"))

	data, _ := slot.Read()
	data[0] = 'z'

	again, _ := slot.Read()
	if string(again) != "abc" {
		t.Error("Read should return an independent copy")
	}
}

// =============================================================================
// SQLITE SLOT TESTS
// =============================================================================

func TestSQLiteSlot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pupu.db")

	slot, err := NewSQLiteSlot(path, "chats", 2)
	if err != nil {
		t.Fatalf("NewSQLiteSlot failed: %v", err)
	}
	defer slot.Close()

	if _, err := slot.Read(); !errors.Is(err, ErrSlotEmpty) {
		t.Errorf("expected ErrSlotEmpty, got %v", err)
	}

	if err := slot.Write([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := slot.Write([]byte(`{"a":2}`)); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	data, err := slot.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("Read = %q, want latest write", data)
	}
}

func TestSQLiteSlot_SeparateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pupu.db")

	first, err := NewSQLiteSlot(path, "chats", 2)
	if err != nil {
		t.Fatalf("NewSQLiteSlot failed: %v", err)
	}
	defer first.Close()

	second, err := NewSQLiteSlot(path, "other", 2)
	if err != nil {
		t.Fatalf("NewSQLiteSlot failed: %v", err)
	}
	defer second.Close()

	if err := first.Write([]byte("one")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := second.Read(); !errors.Is(err, ErrSlotEmpty) {
		t.Error("second key should be empty")
	}
}
