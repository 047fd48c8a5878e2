// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"strings"
	"testing"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// bulkStore builds a normalized store with n chats of roughly chars
// bytes of content each; the first created chat is active.
func bulkStore(t *testing.T, n, chars int) *model.Store {
	t.Helper()
	now := model.NowMillis()
	st := &model.Store{ChatsByID: map[string]*model.ChatSession{}}
	content := strings.Repeat("x", chars)
	for i := 0; i < n; i++ {
		id := model.NewID("chat")
		st.ChatsByID[id] = &model.ChatSession{
			ID:        id,
			Title:     "Chat",
			CreatedAt: now - int64(i),
			UpdatedAt: now - int64(i),
			Messages: []model.Message{
				{Role: model.RoleUser, Content: content, CreatedAt: now, UpdatedAt: now},
			},
		}
		if i == 0 {
			st.ActiveChatID = id
		}
	}
	return Normalize(st)
}

func TestEnforceBudget_UnderCapUntouched(t *testing.T) {
	st := bulkStore(t, 3, 100)
	before := len(st.ChatsByID)
	EnforceBudget(st, DefaultLimits())
	if len(st.ChatsByID) != before {
		t.Errorf("eviction ran below the cap: %d -> %d chats", before, len(st.ChatsByID))
	}
}

func TestEnforceBudget_ShrinksBetweenTargetAndCap(t *testing.T) {
	st := bulkStore(t, 6, 1000)
	size := model.EstimateBytes(st)
	// Over the soft target but still under the hard cap.
	lim := Limits{
		MaxTotalBytes:     size + 1000,
		TargetTotalBytes:  size - 2000,
		MaxActiveMessages: 10,
	}
	active := st.ActiveChatID

	EnforceBudget(st, lim)

	if got := model.EstimateBytes(st); got > lim.TargetTotalBytes {
		t.Errorf("size = %d, want <= target %d", got, lim.TargetTotalBytes)
	}
	if len(st.ChatsByID) >= 6 {
		t.Errorf("nothing evicted, still %d chats", len(st.ChatsByID))
	}
	if _, ok := st.ChatsByID[active]; !ok {
		t.Fatal("active chat was evicted")
	}
}

func TestEnforceBudget_DropsLeastRecent(t *testing.T) {
	st := bulkStore(t, 6, 1000)
	lim := Limits{MaxTotalBytes: 4000, TargetTotalBytes: 3000, MaxActiveMessages: 10}
	active := st.ActiveChatID

	EnforceBudget(st, lim)

	if _, ok := st.ChatsByID[active]; !ok {
		t.Fatal("active chat was evicted")
	}
	if len(st.ChatsByID) >= 6 {
		t.Errorf("nothing evicted, still %d chats", len(st.ChatsByID))
	}
	// Evicted chats take their nodes and lru entries with them.
	for _, node := range st.Tree.NodesByID {
		if node.Entity == model.EntityChat && st.ChatsByID[node.ChatID] == nil {
			t.Errorf("node %s references evicted chat %s", node.ID, node.ChatID)
		}
	}
	for _, id := range st.LRUChatIDs {
		if st.ChatsByID[id] == nil {
			t.Errorf("lru references evicted chat %s", id)
		}
	}
	if node := st.Tree.NodesByID[st.Tree.SelectedNodeID]; node == nil || node.ChatID != active {
		t.Error("selection should land on the active chat's node")
	}
}

func TestEnforceBudget_TrimsOversizedActiveChat(t *testing.T) {
	now := model.NowMillis()
	id := model.NewID("chat")
	session := &model.ChatSession{ID: id, Title: "Huge", CreatedAt: now, UpdatedAt: now}
	for i := 0; i < 50; i++ {
		session.Messages = append(session.Messages, model.Message{
			Role:      model.RoleUser,
			Content:   strings.Repeat("y", 200),
			CreatedAt: now + int64(i),
			UpdatedAt: now + int64(i),
		})
	}
	st := Normalize(&model.Store{
		ChatsByID:    map[string]*model.ChatSession{id: session},
		ActiveChatID: id,
	})

	lim := Limits{MaxTotalBytes: 3000, TargetTotalBytes: 2500, MaxActiveMessages: 5}
	EnforceBudget(st, lim)

	kept := st.ChatsByID[id]
	if kept == nil {
		t.Fatal("active chat was evicted")
	}
	if len(kept.Messages) != 5 {
		t.Fatalf("messages = %d, want trim to 5", len(kept.Messages))
	}
	// The newest messages survive.
	if kept.Messages[4].CreatedAt != now+49 {
		t.Errorf("last kept message createdAt = %d, want %d", kept.Messages[4].CreatedAt, now+49)
	}
	if kept.Stats.MessageCount != 5 {
		t.Errorf("stats not recomputed: %+v", kept.Stats)
	}
}
