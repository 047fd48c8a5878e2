// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"strings"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// =============================================================================
// PARENT RESOLUTION
// =============================================================================

// resolveParentFolder picks the folder a new node goes under: the
// explicit id when it names an existing folder, otherwise the folder
// containing the current selection, otherwise the root ("").
func resolveParentFolder(st *model.Store, explicitID string) string {
	if node := st.Tree.NodesByID[explicitID]; node != nil && node.Entity == model.EntityFolder {
		return explicitID
	}
	if sel := st.Tree.SelectedNodeID; sel != "" {
		if parent := parentOf(st.Tree, sel); parent != "" {
			return parent
		}
	}
	return ""
}

// parentOf returns the id of the folder containing nodeID, or "" when it
// sits in the root (or does not exist).
func parentOf(tree *model.Tree, nodeID string) string {
	for id, node := range tree.NodesByID {
		if node.Entity != model.EntityFolder {
			continue
		}
		for _, child := range node.Children {
			if child == nodeID {
				return id
			}
		}
	}
	return ""
}

// insertFront places a node id at the front of its sibling order.
func insertFront(st *model.Store, parentID, nodeID string) {
	if parentID == "" {
		st.Tree.Root = append([]string{nodeID}, st.Tree.Root...)
		return
	}
	parent := st.Tree.NodesByID[parentID]
	parent.Children = append([]string{nodeID}, parent.Children...)
}

// siblingsOf returns the sibling id list a node lives in.
func siblingsOf(st *model.Store, parentID string) []string {
	if parentID == "" {
		return st.Tree.Root
	}
	if parent := st.Tree.NodesByID[parentID]; parent != nil {
		return parent.Children
	}
	return nil
}

// =============================================================================
// FOLDER & CHAT CREATION
// =============================================================================

// CreateFolder creates a folder under the resolved parent, inserted at
// the front of the sibling order. Selection is unchanged: folders are not
// selectable. Sibling label collisions are repaired with a " (n)" suffix.
func (s *Service) CreateFolder(parentID, label, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		now := model.NowMillis()
		node := &model.TreeNode{
			ID:        model.NewID("fol"),
			Entity:    model.EntityFolder,
			Label:     label,
			Children:  []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.Tree.NodesByID[node.ID] = node
		insertFront(st, resolveParentFolder(st, parentID), node.ID)
		st.UpdatedAt = now
		return true
	})
}

// CreateChatInSelectedContext creates an empty session plus its tree
// node under the resolved parent and makes it both active and selected.
func (s *Service) CreateChatInSelectedContext(parentID, title, source string) *model.Store {
	return s.createChat(parentID, title, nil, source)
}

// CreateChatWithMessagesInSelectedContext seeds the new chat with an
// initial message list; a blank title is derived from the first user
// message.
func (s *Service) CreateChatWithMessagesInSelectedContext(title string, messages []model.Message, source string) *model.Store {
	return s.createChat("", title, messages, source)
}

func (s *Service) createChat(parentID, title string, messages []model.Message, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session := model.NewChatSession(title)
		if len(messages) > 0 {
			session.Messages = messages
			if strings.TrimSpace(title) == "" {
				session.Title = ""
			}
			session = model.SanitizeSession(session, "")
		}
		st.ChatsByID[session.ID] = session

		node := &model.TreeNode{
			ID:        model.NewID("node"),
			Entity:    model.EntityChat,
			ChatID:    session.ID,
			Label:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}
		st.Tree.NodesByID[node.ID] = node
		insertFront(st, resolveParentFolder(st, parentID), node.ID)

		st.ActiveChatID = session.ID
		st.Tree.SelectedNodeID = node.ID
		st.UpdatedAt = session.UpdatedAt
		return true
	})
}

// =============================================================================
// RENAME / DELETE / SELECT
// =============================================================================

// RenameTreeNode relabels a node. Renaming a chat node also retitles the
// backing session; sibling uniqueness is re-validated with the node
// keeping its label when no earlier sibling collides.
func (s *Service) RenameTreeNode(nodeID, label, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		node := st.Tree.NodesByID[nodeID]
		if node == nil {
			return false
		}
		now := model.NowMillis()
		node.Label = label
		node.UpdatedAt = now
		if node.Entity == model.EntityChat {
			if session := st.ChatsByID[node.ChatID]; session != nil {
				session.Title = label
				session.UpdatedAt = now
			}
		}
		st.UpdatedAt = now
		return true
	})
}

// DeleteTreeNodeCascade removes a node and its entire subtree, deleting
// every session referenced inside it. When the active chat is among the
// deleted, a replacement is chosen by scanning forward then backward
// among the former siblings, then the first chat anywhere in the tree;
// if no chat remains a fresh one is synthesized so the store is never
// chat-less.
func (s *Service) DeleteTreeNodeCascade(nodeID, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		if st.Tree.NodesByID[nodeID] == nil {
			return false
		}

		parentID := parentOf(st.Tree, nodeID)
		siblings := siblingsOf(st, parentID)
		removedAt := indexOf(siblings, nodeID)

		doomedNodes, doomedChats := collectSubtree(st.Tree, nodeID)

		for _, id := range doomedNodes {
			delete(st.Tree.NodesByID, id)
		}
		for _, id := range doomedChats {
			delete(st.ChatsByID, id)
			st.LRUChatIDs = removeID(st.LRUChatIDs, id)
		}
		st.Tree.Root = removeID(st.Tree.Root, nodeID)
		for _, node := range st.Tree.NodesByID {
			if node.Entity == model.EntityFolder {
				node.Children = removeID(node.Children, nodeID)
			}
		}

		if st.ChatsByID[st.ActiveChatID] == nil {
			st.ActiveChatID = fallbackActiveChat(st, parentID, removedAt)
			st.Tree.SelectedNodeID = ""
		}
		st.UpdatedAt = model.NowMillis()
		return true
	})
}

// SelectTreeNode makes a chat node's session the active chat and clears
// its unread marker. Selecting a folder or an unknown id is inert.
func (s *Service) SelectTreeNode(nodeID, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		node := st.Tree.NodesByID[nodeID]
		if node == nil || node.Entity != model.EntityChat {
			return false
		}
		st.ActiveChatID = node.ChatID
		st.Tree.SelectedNodeID = nodeID
		if session := st.ChatsByID[node.ChatID]; session != nil {
			session.HasUnreadGeneratedReply = false
		}
		st.UpdatedAt = model.NowMillis()
		return true
	})
}

// SetFolderExpanded records whether a folder is open in the explorer.
func (s *Service) SetFolderExpanded(folderID string, expanded bool, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		node := st.Tree.NodesByID[folderID]
		if node == nil || node.Entity != model.EntityFolder {
			return false
		}
		st.Tree.ExpandedFolderIDs = removeID(st.Tree.ExpandedFolderIDs, folderID)
		if expanded {
			st.Tree.ExpandedFolderIDs = append(st.Tree.ExpandedFolderIDs, folderID)
		}
		st.UpdatedAt = model.NowMillis()
		return true
	})
}

// =============================================================================
// DUPLICATION
// =============================================================================

// DuplicateTreeNodeSubtree deep-copies a node and everything under it.
// Every duplicated session and node gets a fresh id, thread correlation
// is cleared, and the top of the copy is labeled "Copy of ...". The
// duplicate lands right after the original; active chat and selection
// are unchanged.
func (s *Service) DuplicateTreeNodeSubtree(nodeID, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		original := st.Tree.NodesByID[nodeID]
		if original == nil {
			return false
		}

		copyID := duplicateNode(st, original, true)

		parentID := parentOf(st.Tree, nodeID)
		siblings := siblingsOf(st, parentID)
		at := indexOf(siblings, nodeID)
		inserted := insertAfter(siblings, at, copyID)
		if parentID == "" {
			st.Tree.Root = inserted
		} else {
			st.Tree.NodesByID[parentID].Children = inserted
		}
		st.UpdatedAt = model.NowMillis()
		return true
	})
}

// duplicateNode clones one node (and, for folders, its subtree) into the
// store, returning the new node id. Only the top of the copy gets the
// "Copy of " prefix.
func duplicateNode(st *model.Store, node *model.TreeNode, top bool) string {
	now := model.NowMillis()

	label := node.Label
	if top {
		label = "Copy of " + label
	}

	if node.Entity == model.EntityChat {
		session := st.ChatsByID[node.ChatID].Clone()
		session.ID = model.NewID("chat")
		session.Title = label
		session.ThreadID = ""
		session.HasUnreadGeneratedReply = false
		session.CreatedAt = now
		session.UpdatedAt = now
		st.ChatsByID[session.ID] = session

		dup := &model.TreeNode{
			ID:        model.NewID("node"),
			Entity:    model.EntityChat,
			ChatID:    session.ID,
			Label:     session.Title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.Tree.NodesByID[dup.ID] = dup
		return dup.ID
	}

	dup := &model.TreeNode{
		ID:        model.NewID("fol"),
		Entity:    model.EntityFolder,
		Label:     label,
		Children:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.Tree.NodesByID[dup.ID] = dup
	for _, childID := range node.Children {
		child := st.Tree.NodesByID[childID]
		if child == nil {
			continue
		}
		dup.Children = append(dup.Children, duplicateNode(st, child, false))
	}
	return dup.ID
}

// =============================================================================
// SUBTREE HELPERS
// =============================================================================

// collectSubtree gathers every node id and chat id reachable from rootID.
func collectSubtree(tree *model.Tree, rootID string) (nodes []string, chats []string) {
	stack := []string{rootID}
	seen := map[string]bool{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == "" || seen[id] {
			continue
		}
		node := tree.NodesByID[id]
		if node == nil {
			continue
		}
		seen[id] = true
		nodes = append(nodes, id)
		if node.Entity == model.EntityChat {
			if node.ChatID != "" {
				chats = append(chats, node.ChatID)
			}
			continue
		}
		stack = append(stack, node.Children...)
	}
	return nodes, chats
}

// fallbackActiveChat scans forward then backward from the removal point
// among the former siblings for a chat node, then falls back to the
// first chat anywhere in the tree. Returns "" when no chat remains.
func fallbackActiveChat(st *model.Store, parentID string, removedAt int) string {
	siblings := siblingsOf(st, parentID)

	pick := func(i int) string {
		if i < 0 || i >= len(siblings) {
			return ""
		}
		if node := st.Tree.NodesByID[siblings[i]]; node != nil && node.Entity == model.EntityChat {
			return node.ChatID
		}
		return ""
	}

	for i := removedAt; i < len(siblings); i++ {
		if id := pick(i); id != "" {
			return id
		}
	}
	for i := removedAt - 1; i >= 0; i-- {
		if id := pick(i); id != "" {
			return id
		}
	}
	return firstChatInTree(st.Tree)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// insertAfter returns a copy of ids with newID inserted after index at;
// at == -1 appends.
func insertAfter(ids []string, at int, newID string) []string {
	if at < 0 || at >= len(ids) {
		return append(append([]string{}, ids...), newID)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:at+1]...)
	out = append(out, newID)
	out = append(out, ids[at+1:]...)
	return out
}
