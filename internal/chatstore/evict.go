// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// =============================================================================
// SIZE BUDGETS
// =============================================================================

// Limits are the serialized-size budgets eviction enforces.
type Limits struct {
	// MaxTotalBytes is the hard cap on the serialized store.
	MaxTotalBytes int

	// TargetTotalBytes is the soft target eviction shrinks toward
	// whenever the serialized store exceeds it.
	TargetTotalBytes int

	// MaxActiveMessages bounds the active chat's message list when
	// dropping other chats cannot satisfy the hard cap.
	MaxActiveMessages int
}

// DefaultLimits mirrors the original browser-storage budgets: 4.5 MiB
// hard cap, 4.2 MiB target, 200-message active trim.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalBytes:     4718592,
		TargetTotalBytes:  4404019,
		MaxActiveMessages: 200,
	}
}

// EnforceBudget shrinks a normalized store until its serialized form fits
// the soft target. Least-recently-used chats go first; the active chat is
// never evicted, only trimmed to the most recent messages when dropping
// the others still leaves the store over the hard cap. The store stays
// valid throughout: removed chats take their tree node and recency entry
// with them.
func EnforceBudget(s *model.Store, lim Limits) *model.Store {
	for model.EstimateBytes(s) > lim.TargetTotalBytes {
		victim := leastRecentEvictable(s)
		if victim == "" {
			break
		}
		removeChat(s, victim)
	}

	if model.EstimateBytes(s) > lim.MaxTotalBytes {
		trimActiveChat(s, lim.MaxActiveMessages)
	}

	// Eviction may have taken the selected node with it.
	if node := s.Tree.NodesByID[s.Tree.SelectedNodeID]; node == nil || node.Entity != model.EntityChat {
		s.Tree.SelectedNodeID = nodeOfChat(s.Tree, s.ActiveChatID)
	}

	return s
}

// nodeOfChat returns the id of the chat node referencing chatID, or "".
func nodeOfChat(tree *model.Tree, chatID string) string {
	for id, node := range tree.NodesByID {
		if node.Entity == model.EntityChat && node.ChatID == chatID {
			return id
		}
	}
	return ""
}

// leastRecentEvictable returns the chat id at the back of the recency
// list, skipping the active chat, or "" when nothing can go.
func leastRecentEvictable(s *model.Store) string {
	for i := len(s.LRUChatIDs) - 1; i >= 0; i-- {
		if id := s.LRUChatIDs[i]; id != s.ActiveChatID {
			return id
		}
	}
	return ""
}

// removeChat deletes a session together with its tree node and recency
// entry.
func removeChat(s *model.Store, chatID string) {
	delete(s.ChatsByID, chatID)

	var nodeID string
	for id, node := range s.Tree.NodesByID {
		if node.Entity == model.EntityChat && node.ChatID == chatID {
			nodeID = id
			break
		}
	}
	if nodeID != "" {
		delete(s.Tree.NodesByID, nodeID)
		s.Tree.Root = removeID(s.Tree.Root, nodeID)
		for _, node := range s.Tree.NodesByID {
			if node.Entity == model.EntityFolder {
				node.Children = removeID(node.Children, nodeID)
			}
		}
		if s.Tree.SelectedNodeID == nodeID {
			s.Tree.SelectedNodeID = ""
		}
	}

	s.LRUChatIDs = removeID(s.LRUChatIDs, chatID)
}

// trimActiveChat keeps only the newest maxMessages messages of the
// active chat and recomputes its derived fields.
func trimActiveChat(s *model.Store, maxMessages int) {
	session := s.ChatsByID[s.ActiveChatID]
	if session == nil || maxMessages <= 0 || len(session.Messages) <= maxMessages {
		return
	}
	session.Messages = session.Messages[len(session.Messages)-maxMessages:]
	session.LastMessageAt = model.ComputeLastMessageAt(session.Messages, session.LastMessageAt)
	session.Stats = model.ComputeStats(session)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
