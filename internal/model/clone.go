// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Structural deep copies. Snapshots handed to callers and subscribers are
// never shared with the store's internal state, so a full clone on every
// boundary crossing is part of the contract. Cloning structurally instead
// of round-tripping through JSON keeps mutations cheap.

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	out := &Store{
		SchemaVersion: s.SchemaVersion,
		UpdatedAt:     s.UpdatedAt,
		ActiveChatID:  s.ActiveChatID,
		ChatsByID:     make(map[string]*ChatSession, len(s.ChatsByID)),
		Tree:          s.Tree.Clone(),
		LRUChatIDs:    cloneStrings(s.LRUChatIDs),
		UI:            cloneAnyMap(s.UI),
	}
	for id, chat := range s.ChatsByID {
		out.ChatsByID[id] = chat.Clone()
	}
	return out
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		Root:              cloneStrings(t.Root),
		NodesByID:         make(map[string]*TreeNode, len(t.NodesByID)),
		SelectedNodeID:    t.SelectedNodeID,
		ExpandedFolderIDs: cloneStrings(t.ExpandedFolderIDs),
	}
	for id, node := range t.NodesByID {
		out.NodesByID[id] = node.Clone()
	}
	return out
}

// Clone returns a deep copy of a tree node.
func (n *TreeNode) Clone() *TreeNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Children = cloneStrings(n.Children)
	return &out
}

// Clone returns a deep copy of a session.
func (c *ChatSession) Clone() *ChatSession {
	if c == nil {
		return nil
	}
	out := *c
	out.Model = c.Model.clone()
	out.Draft = c.Draft.clone()
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = c.Messages[i].Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of a message.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		for i := range m.Attachments {
			out.Attachments[i] = m.Attachments[i].clone()
		}
	}
	if m.Meta != nil {
		meta := *m.Meta
		if m.Meta.Usage != nil {
			usage := MessageUsage{
				PromptTokens:     cloneIntPtr(m.Meta.Usage.PromptTokens),
				CompletionTokens: cloneIntPtr(m.Meta.Usage.CompletionTokens),
				CompletionChars:  cloneIntPtr(m.Meta.Usage.CompletionChars),
			}
			meta.Usage = &usage
		}
		if m.Meta.Error != nil {
			errCopy := *m.Meta.Error
			meta.Error = &errCopy
		}
		out.Meta = &meta
	}
	return out
}

func (mc ModelConfig) clone() ModelConfig {
	out := mc
	if mc.Temperature != nil {
		v := *mc.Temperature
		out.Temperature = &v
	}
	out.MaxTokens = cloneIntPtr(mc.MaxTokens)
	return out
}

func (d Draft) clone() Draft {
	out := d
	if d.Attachments != nil {
		out.Attachments = make([]Attachment, len(d.Attachments))
		for i := range d.Attachments {
			out.Attachments[i] = d.Attachments[i].clone()
		}
	}
	return out
}

func (a Attachment) clone() Attachment {
	out := a
	if a.Size != nil {
		v := *a.Size
		out.Size = &v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneAnyMap deep-copies opaque UI state (JSON-shaped maps, slices and
// scalars).
func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAnyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneAny(item)
		}
		return out
	default:
		return val
	}
}
