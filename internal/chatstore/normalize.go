// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
	"github.com/haoxiang-xu/PuPu-sub000/internal/util"
)

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize repairs a store into one satisfying every structural
// invariant. It is total and idempotent: any input yields a valid store,
// and normalizing a normalized store changes nothing.
//
// Repair order matters: sessions first (so chat nodes can be validated
// against them), then the tree, then orphan sessions, then the
// active/selected fallbacks, then recency bookkeeping.
func Normalize(in *model.Store) *model.Store {
	if in == nil {
		in = &model.Store{}
	}

	out := &model.Store{
		SchemaVersion: model.SchemaVersion,
		UpdatedAt:     in.UpdatedAt,
		ChatsByID:     make(map[string]*model.ChatSession, len(in.ChatsByID)),
		Tree: &model.Tree{
			NodesByID: map[string]*model.TreeNode{},
		},
		UI: in.UI,
	}

	for id, chat := range in.ChatsByID {
		cleaned := model.SanitizeSession(chat, id)
		out.ChatsByID[cleaned.ID] = cleaned
	}

	rawTree := in.Tree
	if rawTree == nil {
		rawTree = &model.Tree{}
	}

	// claimed maps chat id -> node id; a session has at most one node.
	claimed := rebuildTree(rawTree, out)
	synthesizeOrphanNodes(out, claimed)
	normalizeLabels(out.Tree, out.ChatsByID)
	out.Tree.ExpandedFolderIDs = filterExpanded(rawTree.ExpandedFolderIDs, out.Tree)

	active := resolveActiveChat(in, out, claimed)
	out.ActiveChatID = active
	out.Tree.SelectedNodeID = resolveSelectedNode(rawTree.SelectedNodeID, out.Tree, claimed[active])
	out.LRUChatIDs = rebuildLRU(in.LRUChatIDs, out.ChatsByID, active)

	if out.UpdatedAt <= 0 {
		out.UpdatedAt = model.NowMillis()
	}
	if sess := out.ChatsByID[active]; sess != nil && sess.UpdatedAt > out.UpdatedAt {
		out.UpdatedAt = sess.UpdatedAt
	}

	return out
}

// =============================================================================
// TREE REPAIR
// =============================================================================

// rebuildTree walks the raw tree depth-first with an explicit stack and a
// visited set. The first occurrence of a node id wins; later occurrences
// (duplicate parents, cycles) are dropped. Chat nodes survive only when
// their session exists and no earlier node claimed it.
func rebuildTree(raw *model.Tree, out *model.Store) map[string]string {
	visited := make(map[string]bool)
	claimed := make(map[string]string)

	type frame struct {
		id     string
		parent string
	}

	stack := make([]frame, 0, len(raw.Root))
	for i := len(raw.Root) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: raw.Root[i]})
	}

	attach := func(parent, id string) {
		if parent == "" {
			out.Tree.Root = append(out.Tree.Root, id)
			return
		}
		p := out.Tree.NodesByID[parent]
		p.Children = append(p.Children, id)
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.id == "" || visited[f.id] {
			continue
		}
		rawNode, ok := raw.NodesByID[f.id]
		if !ok || rawNode == nil {
			continue
		}
		visited[f.id] = true

		switch rawNode.Entity {
		case model.EntityFolder:
			node := &model.TreeNode{
				ID:        f.id,
				Entity:    model.EntityFolder,
				Label:     rawNode.Label,
				Children:  []string{},
				CreatedAt: timestampOrNow(rawNode.CreatedAt),
				UpdatedAt: timestampOrNow(rawNode.UpdatedAt),
			}
			out.Tree.NodesByID[f.id] = node
			attach(f.parent, f.id)
			for i := len(rawNode.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{id: rawNode.Children[i], parent: f.id})
			}

		case model.EntityChat:
			session, ok := out.ChatsByID[rawNode.ChatID]
			if !ok {
				continue
			}
			if _, taken := claimed[rawNode.ChatID]; taken {
				continue
			}
			claimed[rawNode.ChatID] = f.id
			out.Tree.NodesByID[f.id] = &model.TreeNode{
				ID:        f.id,
				Entity:    model.EntityChat,
				ChatID:    rawNode.ChatID,
				Label:     session.Title,
				CreatedAt: timestampOrNow(rawNode.CreatedAt),
				UpdatedAt: timestampOrNow(rawNode.UpdatedAt),
			}
			attach(f.parent, f.id)
		}
	}

	return claimed
}

// synthesizeOrphanNodes gives every unclaimed session a chat node at the
// front of the root, most recently updated first.
func synthesizeOrphanNodes(out *model.Store, claimed map[string]string) {
	var orphans []*model.ChatSession
	for id, session := range out.ChatsByID {
		if claimed[id] == "" {
			orphans = append(orphans, session)
		}
	}
	if len(orphans) == 0 {
		return
	}

	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].UpdatedAt != orphans[j].UpdatedAt {
			return orphans[i].UpdatedAt > orphans[j].UpdatedAt
		}
		return orphans[i].ID < orphans[j].ID
	})

	prefix := make([]string, 0, len(orphans))
	for _, session := range orphans {
		node := &model.TreeNode{
			ID:        model.NewID("node"),
			Entity:    model.EntityChat,
			ChatID:    session.ID,
			Label:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}
		out.Tree.NodesByID[node.ID] = node
		claimed[session.ID] = node.ID
		prefix = append(prefix, node.ID)
	}
	out.Tree.Root = append(prefix, out.Tree.Root...)
}

// =============================================================================
// LABELS
// =============================================================================

// normalizeLabels enforces the label invariants: chat labels mirror their
// session title, folder labels are trimmed/clamped/defaulted, and folder
// labels are unique among direct siblings under Unicode case folding,
// with collisions suffixed " (n)".
func normalizeLabels(tree *model.Tree, chats map[string]*model.ChatSession) {
	fold := cases.Fold()

	dedupeSiblings := func(ids []string) {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			node := tree.NodesByID[id]
			if node == nil {
				continue
			}
			if node.Entity == model.EntityChat {
				if session := chats[node.ChatID]; session != nil {
					node.Label = session.Title
				}
				seen[fold.String(node.Label)] = true
				continue
			}

			label := util.TruncateRunesNoEllipsis(util.CollapseWhitespace(node.Label), model.MaxTitleChars)
			if label == "" {
				label = model.DefaultFolderLabel
			}
			if key := fold.String(label); !seen[key] {
				seen[key] = true
				node.Label = label
				continue
			}
			for n := 2; ; n++ {
				candidate := suffixLabel(label, n)
				if key := fold.String(candidate); !seen[key] {
					seen[key] = true
					node.Label = candidate
					break
				}
			}
		}
	}

	dedupeSiblings(tree.Root)
	for _, node := range tree.NodesByID {
		if node.Entity == model.EntityFolder {
			dedupeSiblings(node.Children)
		}
	}
}

// suffixLabel appends " (n)", trimming the base so the result stays
// within the title bound.
func suffixLabel(base string, n int) string {
	suffix := " (" + util.IntToString(n) + ")"
	allowed := model.MaxTitleChars - util.RuneLen(suffix)
	trimmed := util.TruncateRunesNoEllipsis(base, allowed)
	if existing := strings.TrimSuffix(trimmed, " "); existing != "" {
		trimmed = existing
	}
	return trimmed + suffix
}

func filterExpanded(ids []string, tree *model.Tree) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if node := tree.NodesByID[id]; node != nil && node.Entity == model.EntityFolder {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// ACTIVE / SELECTED / LRU
// =============================================================================

// resolveActiveChat applies the layered fallbacks: explicit id, selected
// node's chat, first chat in tree order, most recently updated session,
// and finally a freshly synthesized session.
func resolveActiveChat(in, out *model.Store, claimed map[string]string) string {
	active := strings.TrimSpace(in.ActiveChatID)
	if active != "" && out.ChatsByID[active] != nil {
		return active
	}

	if in.Tree != nil {
		if node := out.Tree.NodesByID[in.Tree.SelectedNodeID]; node != nil && node.Entity == model.EntityChat {
			return node.ChatID
		}
	}

	if id := firstChatInTree(out.Tree); id != "" {
		return id
	}

	var newest *model.ChatSession
	for _, session := range out.ChatsByID {
		if newest == nil || session.UpdatedAt > newest.UpdatedAt {
			newest = session
		}
	}
	if newest != nil {
		return newest.ID
	}

	// No sessions at all: the store is never chat-less.
	session := model.NewChatSession("")
	out.ChatsByID[session.ID] = session
	node := &model.TreeNode{
		ID:        model.NewID("node"),
		Entity:    model.EntityChat,
		ChatID:    session.ID,
		Label:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	out.Tree.NodesByID[node.ID] = node
	out.Tree.Root = append([]string{node.ID}, out.Tree.Root...)
	claimed[session.ID] = node.ID
	return session.ID
}

// firstChatInTree returns the chat id of the first chat node in
// depth-first order, or "".
func firstChatInTree(tree *model.Tree) string {
	stack := make([]string, 0, len(tree.Root))
	for i := len(tree.Root) - 1; i >= 0; i-- {
		stack = append(stack, tree.Root[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := tree.NodesByID[id]
		if node == nil {
			continue
		}
		if node.Entity == model.EntityChat {
			return node.ChatID
		}
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
	return ""
}

// resolveSelectedNode keeps a valid chat-node selection, otherwise falls
// back to the active chat's node. Folders are never selectable.
func resolveSelectedNode(selected string, tree *model.Tree, activeNodeID string) string {
	if node := tree.NodesByID[selected]; node != nil && node.Entity == model.EntityChat {
		return selected
	}
	return activeNodeID
}

// rebuildLRU filters the recency list to existing sessions, appends any
// sessions the list lost (most recently updated first), and promotes the
// active chat to the front.
func rebuildLRU(in []string, chats map[string]*model.ChatSession, active string) []string {
	out := make([]string, 0, len(chats))
	seen := make(map[string]bool, len(chats))

	for _, id := range in {
		if id == "" || seen[id] || chats[id] == nil {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	var missing []*model.ChatSession
	for id, session := range chats {
		if !seen[id] {
			missing = append(missing, session)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].UpdatedAt != missing[j].UpdatedAt {
			return missing[i].UpdatedAt > missing[j].UpdatedAt
		}
		return missing[i].ID < missing[j].ID
	})
	for _, session := range missing {
		out = append(out, session.ID)
	}

	// Active chat always leads the recency order.
	front := []string{active}
	for _, id := range out {
		if id != active {
			front = append(front, id)
		}
	}
	return front
}

func timestampOrNow(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return model.NowMillis()
}
