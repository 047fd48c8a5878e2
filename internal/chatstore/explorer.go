// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"strings"
	"time"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
	"github.com/haoxiang-xu/PuPu-sub000/internal/util"
)

// =============================================================================
// EXPLORER REORDER
// =============================================================================

// ExplorerNode is one entry of a drag-and-drop payload. Only the label
// and position are trusted; entity, chat reference and identity must
// match a node the store already knows.
type ExplorerNode struct {
	ID       string
	Label    string
	Children []string
}

// ExplorerLayout is the full candidate tree a drag-and-drop UI proposes.
type ExplorerLayout struct {
	Root      []string
	NodesByID map[string]ExplorerNode
}

// ApplyExplorerReorder applies a proposed layout, honoring only label
// edits and reordering of already-existing node ids. Payload entries
// inventing new node ids are discarded; chat nodes keep their original
// session reference, so an untrusted payload cannot remap or duplicate a
// chat. Nodes the payload drops resurface through orphan repair (chats)
// or disappear (folders).
func (s *Service) ApplyExplorerReorder(layout ExplorerLayout, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		now := model.NowMillis()
		next := map[string]*model.TreeNode{}

		for id, cand := range layout.NodesByID {
			orig := st.Tree.NodesByID[id]
			if orig == nil {
				continue
			}

			node := &model.TreeNode{
				ID:        id,
				Entity:    orig.Entity,
				Label:     orig.Label,
				ChatID:    orig.ChatID,
				CreatedAt: orig.CreatedAt,
				UpdatedAt: orig.UpdatedAt,
			}

			if orig.Entity == model.EntityFolder {
				node.Children = append([]string{}, cand.Children...)
				if label := strings.TrimSpace(cand.Label); label != "" && label != orig.Label {
					node.Label = cand.Label
					node.UpdatedAt = now
				}
			} else if label := strings.TrimSpace(cand.Label); label != "" && label != orig.Label {
				// A chat label edit is a rename of the backing session.
				if session := st.ChatsByID[orig.ChatID]; session != nil {
					session.Title = cand.Label
					session.UpdatedAt = now
				}
				node.UpdatedAt = now
			}

			next[id] = node
		}

		st.Tree.Root = append([]string{}, layout.Root...)
		st.Tree.NodesByID = next
		st.UpdatedAt = now
		return true
	})
}

// =============================================================================
// EXPLORER PROJECTION
// =============================================================================

// ExplorerHandlers are the callbacks an explorer widget fires. Chats get
// click-to-select and double-click-to-rename; folders only double-click,
// since folder clicks never move selection.
type ExplorerHandlers struct {
	OnSelectNode func(nodeID string)
	OnRenameNode func(nodeID string)
}

// ExplorerItem is one row of the projected tree.
type ExplorerItem struct {
	ID            string
	Entity        model.NodeEntity
	Label         string
	Postfix       string // relative last-activity time, chats only
	Unread        bool   // own flag for chats, descendant rollup for folders
	Children      []string
	OnClick       func()
	OnDoubleClick func()
}

// ExplorerProjection is the read-only shape a generic tree widget
// consumes.
type ExplorerProjection struct {
	Data            map[string]ExplorerItem
	Root            []string
	DefaultExpanded []string
}

// BuildExplorerFromTree projects the tree into widget input. It reads
// the given tree and sessions without mutating them and carries no store
// reference of its own.
func BuildExplorerFromTree(tree *model.Tree, chats map[string]*model.ChatSession, h ExplorerHandlers) ExplorerProjection {
	proj := ExplorerProjection{
		Data: map[string]ExplorerItem{},
	}
	if tree == nil {
		return proj
	}

	now := model.NowMillis()
	for id, node := range tree.NodesByID {
		item := ExplorerItem{
			ID:       id,
			Entity:   node.Entity,
			Label:    util.TruncateRunes(node.Label, model.MaxTitleChars),
			Children: append([]string{}, node.Children...),
		}

		nodeID := id
		if h.OnRenameNode != nil {
			item.OnDoubleClick = func() { h.OnRenameNode(nodeID) }
		}

		if node.Entity == model.EntityChat {
			if h.OnSelectNode != nil {
				item.OnClick = func() { h.OnSelectNode(nodeID) }
			}
			if session := chats[node.ChatID]; session != nil {
				item.Unread = session.HasUnreadGeneratedReply
				item.Postfix = RelativePostfix(now, lastActivity(session))
			}
		} else {
			item.Unread = folderHasUnread(tree, chats, node)
		}

		proj.Data[id] = item
	}

	proj.Root = append([]string{}, tree.Root...)
	proj.DefaultExpanded = append([]string{}, tree.ExpandedFolderIDs...)
	return proj
}

func lastActivity(session *model.ChatSession) int64 {
	if session.LastMessageAt > 0 {
		return session.LastMessageAt
	}
	return session.UpdatedAt
}

// folderHasUnread reports whether any chat in the folder's subtree has
// an unread generated reply.
func folderHasUnread(tree *model.Tree, chats map[string]*model.ChatSession, folder *model.TreeNode) bool {
	stack := append([]string{}, folder.Children...)
	seen := map[string]bool{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		node := tree.NodesByID[id]
		if node == nil {
			continue
		}
		if node.Entity == model.EntityChat {
			if session := chats[node.ChatID]; session != nil && session.HasUnreadGeneratedReply {
				return true
			}
			continue
		}
		stack = append(stack, node.Children...)
	}
	return false
}

// =============================================================================
// RELATIVE TIME
// =============================================================================

// RelativePostfix renders how long ago ts was, in the explorer's compact
// buckets: "now" under a minute, then minutes, hours, days, weeks (7-day
// units), months (30-day units) and years. Future or missing timestamps
// render as "now".
func RelativePostfix(nowMillis, ts int64) string {
	if ts <= 0 || ts > nowMillis {
		return "now"
	}
	elapsed := time.Duration(nowMillis-ts) * time.Millisecond

	switch {
	case elapsed < time.Minute:
		return "now"
	case elapsed < time.Hour:
		return util.IntToString(int(elapsed/time.Minute)) + "m"
	case elapsed < 24*time.Hour:
		return util.IntToString(int(elapsed/time.Hour)) + "h"
	}

	days := int(elapsed / (24 * time.Hour))
	switch {
	case days < 7:
		return util.IntToString(days) + "d"
	case days < 30:
		return util.IntToString(days/7) + "w"
	case days < 365:
		return util.IntToString(days/30) + "mo"
	default:
		return util.IntToString(days/365) + "y"
	}
}
