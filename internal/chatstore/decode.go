// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"encoding/json"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// Tolerant decoding: raw slot bytes become a best-effort typed store with
// no value-level guarantees. Shape problems (wrong JSON types, missing
// fields, the legacy flat schema) are absorbed here; value repair happens
// in Normalize. Decode never fails.

// Decode converts raw slot bytes into a typed store. Corrupt or empty
// input yields an empty store; the legacy v1 flat schema is migrated to
// the tree shape.
func Decode(data []byte) *model.Store {
	if len(data) == 0 {
		return &model.Store{}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &model.Store{}
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return &model.Store{}
	}

	return storeFromMap(m)
}

func storeFromMap(m map[string]any) *model.Store {
	out := &model.Store{
		SchemaVersion: int(asInt64(m["schemaVersion"])),
		UpdatedAt:     asInt64(m["updatedAt"]),
		ActiveChatID:  asString(m["activeChatId"]),
		ChatsByID:     map[string]*model.ChatSession{},
	}

	if ui, ok := m["ui"].(map[string]any); ok {
		out.UI = ui
	}

	if chats, ok := m["chatsById"].(map[string]any); ok {
		for id, rawChat := range chats {
			if cm, ok := rawChat.(map[string]any); ok {
				session := sessionFromMap(cm)
				if session.ID == "" {
					session.ID = id
				}
				out.ChatsByID[session.ID] = session
			}
		}
	}

	if tree, ok := m["tree"].(map[string]any); ok {
		out.Tree = treeFromMap(tree)
		out.LRUChatIDs = asStringSlice(m["lruChatIds"])
		return out
	}

	// Legacy v1 flat schema: {chatsById, chatOrder, activeChatId}. The
	// recency-ordered chatOrder becomes both the root node order and the
	// LRU list.
	order := asStringSlice(m["chatOrder"])
	tree := &model.Tree{NodesByID: map[string]*model.TreeNode{}}
	for _, chatID := range order {
		session, ok := out.ChatsByID[chatID]
		if !ok {
			continue
		}
		node := &model.TreeNode{
			ID:        model.NewID("node"),
			Entity:    model.EntityChat,
			ChatID:    chatID,
			Label:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}
		tree.NodesByID[node.ID] = node
		tree.Root = append(tree.Root, node.ID)
	}
	out.Tree = tree
	out.LRUChatIDs = order
	return out
}

// =============================================================================
// SESSION SHAPES
// =============================================================================

func sessionFromMap(m map[string]any) *model.ChatSession {
	s := &model.ChatSession{
		ID:            asString(m["id"]),
		Title:         asString(m["title"]),
		CreatedAt:     asInt64(m["createdAt"]),
		UpdatedAt:     asInt64(m["updatedAt"]),
		LastMessageAt: asInt64(m["lastMessageAt"]),
		ThreadID:      asString(m["threadId"]),
	}

	s.HasUnreadGeneratedReply = asBool(m["hasUnreadGeneratedReply"])

	// Model historically allowed a bare string id.
	switch mv := m["model"].(type) {
	case string:
		s.Model = model.ModelConfig{ID: mv}
	case map[string]any:
		s.Model = modelFromMap(mv)
	}

	if d, ok := m["draft"].(map[string]any); ok {
		s.Draft = model.Draft{
			Text:        asString(d["text"]),
			Attachments: attachmentsFromAny(d["attachments"]),
			UpdatedAt:   asInt64(d["updatedAt"]),
		}
	}

	if msgs, ok := m["messages"].([]any); ok {
		for _, rawMsg := range msgs {
			if mm, ok := rawMsg.(map[string]any); ok {
				s.Messages = append(s.Messages, messageFromMap(mm))
			}
		}
	}

	return s
}

func modelFromMap(m map[string]any) model.ModelConfig {
	mc := model.ModelConfig{
		ID:       asString(m["id"]),
		Provider: asString(m["provider"]),
	}
	if t, ok := asFloat(m["temperature"]); ok {
		mc.Temperature = &t
	}
	if n, ok := asIntChecked(m["maxTokens"]); ok {
		mc.MaxTokens = &n
	}
	return mc
}

func messageFromMap(m map[string]any) model.Message {
	msg := model.Message{
		ID:          asString(m["id"]),
		Role:        model.Role(asString(m["role"])),
		Content:     asString(m["content"]),
		CreatedAt:   asInt64(m["createdAt"]),
		UpdatedAt:   asInt64(m["updatedAt"]),
		Status:      model.MessageStatus(asString(m["status"])),
		Attachments: attachmentsFromAny(m["attachments"]),
	}

	if meta, ok := m["meta"].(map[string]any); ok {
		cleaned := &model.MessageMeta{
			Model:     asString(meta["model"]),
			RequestID: asString(meta["requestId"]),
		}
		if usage, ok := meta["usage"].(map[string]any); ok {
			u := &model.MessageUsage{}
			if n, ok := asIntChecked(usage["promptTokens"]); ok {
				u.PromptTokens = &n
			}
			if n, ok := asIntChecked(usage["completionTokens"]); ok {
				u.CompletionTokens = &n
			}
			if n, ok := asIntChecked(usage["completionChars"]); ok {
				u.CompletionChars = &n
			}
			cleaned.Usage = u
		}
		if errMap, ok := meta["error"].(map[string]any); ok {
			cleaned.Error = &model.MessageError{
				Code:    asString(errMap["code"]),
				Message: asString(errMap["message"]),
			}
		}
		msg.Meta = cleaned
	}

	return msg
}

func attachmentsFromAny(v any) []model.Attachment {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.Attachment
	for _, raw := range list {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, attachmentFromMap(m))
		}
	}
	return out
}

func attachmentFromMap(m map[string]any) model.Attachment {
	a := model.Attachment{
		ID:        asString(m["id"]),
		Kind:      model.AttachmentKind(asString(m["kind"])),
		Name:      asString(m["name"]),
		Source:    model.AttachmentSource(asString(m["source"])),
		MimeType:  asString(m["mimeType"]),
		Ext:       asString(m["ext"]),
		URL:       asString(m["url"]),
		LocalRef:  asString(m["localRef"]),
		Checksum:  asString(m["checksum"]),
		CreatedAt: asInt64(m["createdAt"]),
	}
	if f, ok := asFloat(m["size"]); ok && f >= 0 {
		size := int64(f)
		a.Size = &size
	}
	return a
}

// =============================================================================
// TREE SHAPES
// =============================================================================

func treeFromMap(m map[string]any) *model.Tree {
	t := &model.Tree{
		Root:              asStringSlice(m["root"]),
		NodesByID:         map[string]*model.TreeNode{},
		SelectedNodeID:    asString(m["selectedNodeId"]),
		ExpandedFolderIDs: asStringSlice(m["expandedFolderIds"]),
	}

	if nodes, ok := m["nodesById"].(map[string]any); ok {
		for id, rawNode := range nodes {
			nm, ok := rawNode.(map[string]any)
			if !ok {
				continue
			}
			node := &model.TreeNode{
				ID:        asString(nm["id"]),
				Entity:    model.NodeEntity(asString(nm["entity"])),
				Label:     asString(nm["label"]),
				ChatID:    asString(nm["chatId"]),
				Children:  asStringSlice(nm["children"]),
				CreatedAt: asInt64(nm["createdAt"]),
				UpdatedAt: asInt64(nm["updatedAt"]),
			}
			if node.ID == "" {
				node.ID = id
			}
			t.NodesByID[node.ID] = node
		}
	}

	return t
}

// =============================================================================
// LOOSE VALUE HELPERS
// =============================================================================

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt64(v any) int64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}

func asIntChecked(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
