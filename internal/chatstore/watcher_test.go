// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/haoxiang-xu/PuPu-sub000/internal/storage"
)

func TestWatcher_RepublishesOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")
	svc := New(storage.NewFileSlot(path))
	svc.Bootstrap("test")

	events := make(chan Event, 8)
	defer svc.Subscribe(func(ev Event) { events <- ev })()

	w, err := WatchSlotFile(svc, path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WatchSlotFile failed: %v", err)
	}
	defer w.Close()

	// A second service over the same file plays the other process.
	other := New(storage.NewFileSlot(path))
	other.CreateChatInSelectedContext("", "External", "other-process")

	select {
	case ev := <-events:
		if ev.Source != "watcher" {
			t.Errorf("source = %q, want watcher", ev.Source)
		}
		found := false
		for _, session := range ev.Store.ChatsByID {
			if session.Title == "External" {
				found = true
			}
		}
		if !found {
			t.Error("republished snapshot does not contain the external chat")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh after external write")
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")
	svc := New(storage.NewFileSlot(path))

	w, err := WatchSlotFile(svc, path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WatchSlotFile failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
