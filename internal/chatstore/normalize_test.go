// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"encoding/json"
	"testing"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

func marshalStore(t *testing.T, s *model.Store) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return string(data)
}

func TestNormalize_EmptyInputSynthesizesChat(t *testing.T) {
	st := Normalize(&model.Store{})

	if len(st.ChatsByID) != 1 {
		t.Fatalf("ChatsByID len = %d, want 1", len(st.ChatsByID))
	}
	session := st.ChatsByID[st.ActiveChatID]
	if session == nil {
		t.Fatal("activeChatId does not resolve")
	}
	if session.Title != model.DefaultChatTitle {
		t.Errorf("title = %q, want %q", session.Title, model.DefaultChatTitle)
	}
	if len(st.Tree.Root) != 1 {
		t.Fatalf("root len = %d, want 1", len(st.Tree.Root))
	}
	node := st.Tree.NodesByID[st.Tree.Root[0]]
	if node == nil || node.Entity != model.EntityChat || node.ChatID != session.ID {
		t.Errorf("root node does not reference the synthesized session")
	}
	if st.Tree.SelectedNodeID != node.ID {
		t.Errorf("selectedNodeId = %q, want %q", st.Tree.SelectedNodeID, node.ID)
	}
	if len(st.LRUChatIDs) != 1 || st.LRUChatIDs[0] != session.ID {
		t.Errorf("lruChatIds = %v", st.LRUChatIDs)
	}
	if st.SchemaVersion != model.SchemaVersion {
		t.Errorf("schemaVersion = %d", st.SchemaVersion)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	now := model.NowMillis()

	cases := []struct {
		name string
		in   *model.Store
	}{
		{"empty", &model.Store{}},
		{"nil", nil},
		{"legacy v1 payload", Decode([]byte(`{
			"schemaVersion": 1,
			"chatsById": {"c1": {"id": "c1", "title": "First", "createdAt": 1000, "updatedAt": 2000}},
			"chatOrder": ["c1"],
			"activeChatId": "c1"
		}`))},
		{"dangling references", &model.Store{
			UpdatedAt: now,
			ChatsByID: map[string]*model.ChatSession{
				"c1": {ID: "c1", Title: "Kept", CreatedAt: now, UpdatedAt: now},
			},
			ActiveChatID: "ghost",
			Tree: &model.Tree{
				Root: []string{"n1", "n2", "missing"},
				NodesByID: map[string]*model.TreeNode{
					"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
					"n2": {ID: "n2", Entity: model.EntityChat, ChatID: "ghost", CreatedAt: now, UpdatedAt: now},
				},
				SelectedNodeID: "n2",
			},
			LRUChatIDs: []string{"ghost", "c1", "c1"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Normalize(tc.in)
			twice := Normalize(once)
			if marshalStore(t, once) != marshalStore(t, twice) {
				t.Error("normalize is not idempotent")
			}
		})
	}
}

func TestNormalize_CycleBecomesForest(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "Chat", CreatedAt: now, UpdatedAt: now},
		},
		Tree: &model.Tree{
			Root: []string{"fA"},
			NodesByID: map[string]*model.TreeNode{
				"fA": {ID: "fA", Entity: model.EntityFolder, Label: "A", Children: []string{"fB"}, CreatedAt: now, UpdatedAt: now},
				"fB": {ID: "fB", Entity: model.EntityFolder, Label: "B", Children: []string{"fA", "n1"}, CreatedAt: now, UpdatedAt: now},
				"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
			},
		},
	})

	// Every node must be reachable exactly once.
	seen := map[string]int{}
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			seen[id]++
			if node := st.Tree.NodesByID[id]; node != nil && node.Entity == model.EntityFolder {
				walk(node.Children)
			}
		}
	}
	walk(st.Tree.Root)

	for id, count := range seen {
		if count != 1 {
			t.Errorf("node %s reached %d times", id, count)
		}
	}
	if len(seen) != len(st.Tree.NodesByID) {
		t.Errorf("reachable %d nodes, tree holds %d", len(seen), len(st.Tree.NodesByID))
	}
	if b := st.Tree.NodesByID["fB"]; b != nil {
		for _, child := range b.Children {
			if child == "fA" {
				t.Error("cycle edge fB -> fA survived")
			}
		}
	}
}

func TestNormalize_OneNodePerChat(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "Chat", CreatedAt: now, UpdatedAt: now},
		},
		Tree: &model.Tree{
			Root: []string{"n1", "n2"},
			NodesByID: map[string]*model.TreeNode{
				"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
				"n2": {ID: "n2", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
			},
		},
	})

	owners := map[string][]string{}
	for id, node := range st.Tree.NodesByID {
		if node.Entity == model.EntityChat {
			owners[node.ChatID] = append(owners[node.ChatID], id)
		}
	}
	if len(owners["c1"]) != 1 {
		t.Fatalf("chat c1 has %d nodes, want 1", len(owners["c1"]))
	}
	if owners["c1"][0] != "n1" {
		t.Errorf("first occurrence should win, got %s", owners["c1"][0])
	}
}

func TestNormalize_OrphanSessionGetsNode(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"old": {ID: "old", Title: "Old", CreatedAt: now - 10, UpdatedAt: now - 10},
			"new": {ID: "new", Title: "New", CreatedAt: now, UpdatedAt: now},
		},
		ActiveChatID: "old",
		Tree:         &model.Tree{},
	})

	if len(st.Tree.Root) != 2 {
		t.Fatalf("root len = %d, want 2", len(st.Tree.Root))
	}
	// Most recently updated orphan first.
	first := st.Tree.NodesByID[st.Tree.Root[0]]
	if first == nil || first.ChatID != "new" {
		t.Errorf("first root node references %v, want new", first)
	}
}

func TestNormalize_FolderLabelDedup(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "Chat", CreatedAt: now, UpdatedAt: now},
		},
		Tree: &model.Tree{
			Root: []string{"f1", "f2", "f3", "n1"},
			NodesByID: map[string]*model.TreeNode{
				"f1": {ID: "f1", Entity: model.EntityFolder, Label: "X", CreatedAt: now, UpdatedAt: now},
				"f2": {ID: "f2", Entity: model.EntityFolder, Label: "x", CreatedAt: now, UpdatedAt: now},
				"f3": {ID: "f3", Entity: model.EntityFolder, Label: "  ", CreatedAt: now, UpdatedAt: now},
				"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
			},
		},
	})

	if got := st.Tree.NodesByID["f1"].Label; got != "X" {
		t.Errorf("f1 label = %q, want X", got)
	}
	if got := st.Tree.NodesByID["f2"].Label; got != "x (2)" {
		t.Errorf("f2 label = %q, want \"x (2)\"", got)
	}
	if got := st.Tree.NodesByID["f3"].Label; got != model.DefaultFolderLabel {
		t.Errorf("blank label = %q, want default", got)
	}
}

func TestNormalize_SelectedFolderFallsBackToActiveNode(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "Chat", CreatedAt: now, UpdatedAt: now},
		},
		ActiveChatID: "c1",
		Tree: &model.Tree{
			Root: []string{"f1", "n1"},
			NodesByID: map[string]*model.TreeNode{
				"f1": {ID: "f1", Entity: model.EntityFolder, Label: "F", CreatedAt: now, UpdatedAt: now},
				"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
			},
			SelectedNodeID: "f1",
		},
	})

	if st.Tree.SelectedNodeID != "n1" {
		t.Errorf("selectedNodeId = %q, want n1", st.Tree.SelectedNodeID)
	}
}

func TestNormalize_LRURepair(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "One", CreatedAt: now, UpdatedAt: now - 5},
			"c2": {ID: "c2", Title: "Two", CreatedAt: now, UpdatedAt: now},
			"c3": {ID: "c3", Title: "Three", CreatedAt: now, UpdatedAt: now - 1},
		},
		ActiveChatID: "c1",
		Tree:         &model.Tree{},
		LRUChatIDs:   []string{"ghost", "c3", "c3"},
	})

	if len(st.LRUChatIDs) != 3 {
		t.Fatalf("lru = %v, want 3 entries", st.LRUChatIDs)
	}
	if st.LRUChatIDs[0] != "c1" {
		t.Errorf("active chat not promoted: %v", st.LRUChatIDs)
	}
	seen := map[string]bool{}
	for _, id := range st.LRUChatIDs {
		if seen[id] {
			t.Errorf("duplicate lru entry %s", id)
		}
		seen[id] = true
		if st.ChatsByID[id] == nil {
			t.Errorf("lru references missing session %s", id)
		}
	}
}

func TestNormalize_ExpandedFoldersFiltered(t *testing.T) {
	now := model.NowMillis()
	st := Normalize(&model.Store{
		ChatsByID: map[string]*model.ChatSession{
			"c1": {ID: "c1", Title: "Chat", CreatedAt: now, UpdatedAt: now},
		},
		Tree: &model.Tree{
			Root: []string{"f1", "n1"},
			NodesByID: map[string]*model.TreeNode{
				"f1": {ID: "f1", Entity: model.EntityFolder, Label: "F", CreatedAt: now, UpdatedAt: now},
				"n1": {ID: "n1", Entity: model.EntityChat, ChatID: "c1", CreatedAt: now, UpdatedAt: now},
			},
			ExpandedFolderIDs: []string{"f1", "n1", "ghost", "f1"},
		},
	})

	if len(st.Tree.ExpandedFolderIDs) != 1 || st.Tree.ExpandedFolderIDs[0] != "f1" {
		t.Errorf("expandedFolderIds = %v, want [f1]", st.Tree.ExpandedFolderIDs)
	}
}
