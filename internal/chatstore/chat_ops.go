// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"strings"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// =============================================================================
// CHAT MUTATIONS
// =============================================================================

// Chat mutations upsert: a chat id not present in the store gets a fresh
// session under that id, which then becomes the active chat. This keeps
// high-frequency callers (streaming handlers racing an eviction) from
// silently dropping writes.

// upsertSession returns the session for chatID, creating it when absent.
func upsertSession(st *model.Store, chatID string) (*model.ChatSession, bool) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, false
	}
	if session := st.ChatsByID[chatID]; session != nil {
		return session, true
	}
	session := model.NewChatSession("")
	session.ID = chatID
	st.ChatsByID[chatID] = session
	return session, true
}

// SetChatMessages replaces a chat's message list. A chat still carrying
// the default title is retitled from its first user message. The chat is
// promoted to active.
func (s *Service) SetChatMessages(chatID string, messages []model.Message, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		now := model.NowMillis()
		session.Messages = model.SanitizeMessages(messages)
		if title := strings.TrimSpace(session.Title); title == "" || title == model.DefaultChatTitle {
			session.Title = model.DeriveTitle(session.Messages, model.DefaultChatTitle)
		}
		session.LastMessageAt = model.ComputeLastMessageAt(session.Messages, session.LastMessageAt)
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// AppendChatMessage appends one message, with the same retitling and
// promotion behavior as SetChatMessages.
func (s *Service) AppendChatMessage(chatID string, message model.Message, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		cleaned, valid := model.SanitizeMessage(message)
		if !valid {
			return false
		}
		now := model.NowMillis()
		session.Messages = append(session.Messages, cleaned)
		if title := strings.TrimSpace(session.Title); title == "" || title == model.DefaultChatTitle {
			session.Title = model.DeriveTitle(session.Messages, model.DefaultChatTitle)
		}
		session.LastMessageAt = model.ComputeLastMessageAt(session.Messages, session.LastMessageAt)
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// UpdateChatDraft replaces the unsent input buffer of a chat.
func (s *Service) UpdateChatDraft(chatID string, draft model.Draft, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		now := model.NowMillis()
		draft.UpdatedAt = now
		session.Draft = model.SanitizeDraft(draft)
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// SetChatThreadID records the external correlation id for a chat.
func (s *Service) SetChatThreadID(chatID, threadID, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		now := model.NowMillis()
		session.ThreadID = strings.TrimSpace(threadID)
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// SetChatModel replaces the per-chat model selection.
func (s *Service) SetChatModel(chatID string, mc model.ModelConfig, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		now := model.NowMillis()
		session.Model = model.SanitizeModel(mc)
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// SetChatTitle retitles a chat; its tree node label follows on the next
// normalization pass.
func (s *Service) SetChatTitle(chatID, title, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session, ok := upsertSession(st, chatID)
		if !ok {
			return false
		}
		now := model.NowMillis()
		session.Title = title
		session.UpdatedAt = now
		st.ActiveChatID = session.ID
		st.UpdatedAt = now
		return true
	})
}

// SetChatGeneratedUnread marks or clears the unread flag for a finished
// assistant reply. Unlike the other chat mutations this never changes
// which chat is active: a reply landing in a background chat must not
// steal focus.
func (s *Service) SetChatGeneratedUnread(chatID string, unread bool, source string) *model.Store {
	return s.mutate(source, func(st *model.Store) bool {
		session := st.ChatsByID[strings.TrimSpace(chatID)]
		if session == nil {
			return false
		}
		session.HasUnreadGeneratedReply = unread
		st.UpdatedAt = model.NowMillis()
		return true
	})
}
