// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"

	"github.com/haoxiang-xu/PuPu-sub000/internal/util"
)

// =============================================================================
// TEXT HELPERS
// =============================================================================

// clampText bounds a string to max runes without appending an ellipsis.
func clampText(s string, max int) string {
	return util.TruncateRunesNoEllipsis(s, max)
}

// EstimateBytes returns the UTF-8 byte length of the JSON encoding of v.
// Returns 0 when v cannot be encoded.
func EstimateBytes(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// SanitizeAttachment repairs a single attachment in place semantics:
// unknown kinds become files, unknown sources fall back per kind, and
// free-text fields are clamped.
func SanitizeAttachment(a Attachment) Attachment {
	if !a.Kind.Valid() {
		a.Kind = KindFile
	}

	fallbackName := "attachment"
	if a.Kind == KindLink {
		fallbackName = "link"
	}
	a.Name = clampText(strings.TrimSpace(a.Name), 300)
	if a.Name == "" {
		a.Name = fallbackName
	}

	if !a.Source.Valid() {
		if a.Kind == KindLink {
			a.Source = SourceURL
		} else {
			a.Source = SourceLocal
		}
	}

	a.MimeType = clampText(a.MimeType, 200)
	a.Ext = clampText(a.Ext, 50)

	if a.Size != nil && *a.Size < 0 {
		a.Size = nil
	}

	if a.Kind == KindLink {
		a.URL = clampText(a.URL, 2000)
	} else {
		a.URL = ""
	}

	if strings.TrimSpace(a.LocalRef) == "" {
		a.LocalRef = ""
	} else {
		a.LocalRef = clampText(a.LocalRef, 2000)
	}
	if strings.TrimSpace(a.Checksum) == "" {
		a.Checksum = ""
	} else {
		a.Checksum = clampText(a.Checksum, 200)
	}

	if strings.TrimSpace(a.ID) == "" {
		a.ID = NewID("att")
	}
	if a.CreatedAt <= 0 {
		a.CreatedAt = NowMillis()
	}

	return a
}

// SanitizeAttachments repairs every attachment in a list.
func SanitizeAttachments(list []Attachment) []Attachment {
	if len(list) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(list))
	for _, a := range list {
		out = append(out, SanitizeAttachment(a))
	}
	return out
}

// =============================================================================
// MESSAGES
// =============================================================================

// SanitizeMessage repairs a message. The second return value is false when
// the message is malformed beyond repair (unknown role) and must be
// dropped.
func SanitizeMessage(m Message) (Message, bool) {
	m.Role = Role(strings.TrimSpace(string(m.Role)))
	if !m.Role.Valid() {
		return Message{}, false
	}

	m.Content = clampText(m.Content, MaxTextChars)

	if m.CreatedAt <= 0 {
		m.CreatedAt = NowMillis()
	}
	if m.UpdatedAt <= 0 {
		m.UpdatedAt = m.CreatedAt
	}

	if strings.TrimSpace(m.ID) == "" {
		m.ID = NewID(string(m.Role))
	}

	// Status is an assistant-only field; user/system messages never carry
	// one, and assistant messages always do.
	if m.Role == RoleAssistant {
		if !m.Status.Valid() {
			m.Status = StatusDone
		}
	} else {
		m.Status = ""
	}

	// Attachments ride on user messages only.
	if m.Role == RoleUser {
		m.Attachments = SanitizeAttachments(m.Attachments)
	} else {
		m.Attachments = nil
	}

	m.Meta = sanitizeMeta(m.Meta)

	return m, true
}

func sanitizeMeta(meta *MessageMeta) *MessageMeta {
	if meta == nil {
		return nil
	}

	cleaned := &MessageMeta{}
	if strings.TrimSpace(meta.Model) != "" {
		cleaned.Model = clampText(meta.Model, 200)
	}
	if strings.TrimSpace(meta.RequestID) != "" {
		cleaned.RequestID = clampText(meta.RequestID, 200)
	}

	if meta.Usage != nil {
		usage := &MessageUsage{}
		if meta.Usage.PromptTokens != nil && *meta.Usage.PromptTokens >= 0 {
			usage.PromptTokens = meta.Usage.PromptTokens
		}
		if meta.Usage.CompletionTokens != nil && *meta.Usage.CompletionTokens >= 0 {
			usage.CompletionTokens = meta.Usage.CompletionTokens
		}
		if meta.Usage.CompletionChars != nil && *meta.Usage.CompletionChars >= 0 {
			usage.CompletionChars = meta.Usage.CompletionChars
		}
		if usage.PromptTokens != nil || usage.CompletionTokens != nil || usage.CompletionChars != nil {
			cleaned.Usage = usage
		}
	}

	if meta.Error != nil {
		code := strings.TrimSpace(meta.Error.Code)
		if code == "" {
			code = "unknown"
		}
		msg := strings.TrimSpace(meta.Error.Message)
		if msg == "" {
			msg = "Unknown error"
		}
		cleaned.Error = &MessageError{
			Code:    clampText(code, 100),
			Message: clampText(msg, 2000),
		}
	}

	if cleaned.Model == "" && cleaned.RequestID == "" && cleaned.Usage == nil && cleaned.Error == nil {
		return nil
	}
	return cleaned
}

// SanitizeMessages repairs a message list, dropping malformed entries.
func SanitizeMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if cleaned, ok := SanitizeMessage(m); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

// =============================================================================
// MODEL CONFIG & DRAFT
// =============================================================================

// SanitizeModel repairs the per-session model selection.
func SanitizeModel(mc ModelConfig) ModelConfig {
	mc.ID = strings.TrimSpace(clampText(mc.ID, 200))
	if mc.ID == "" {
		mc.ID = DefaultModelID
	}
	mc.Provider = clampText(strings.TrimSpace(mc.Provider), 100)
	if mc.MaxTokens != nil && *mc.MaxTokens < 0 {
		zero := 0
		mc.MaxTokens = &zero
	}
	return mc
}

// SanitizeDraft repairs the unsent input buffer.
func SanitizeDraft(d Draft) Draft {
	d.Text = clampText(d.Text, MaxDraftChars)
	d.Attachments = SanitizeAttachments(d.Attachments)
	if d.UpdatedAt <= 0 {
		d.UpdatedAt = NowMillis()
	}
	return d
}

// =============================================================================
// DERIVED FIELDS
// =============================================================================

// DeriveTitle returns the first non-blank user message, whitespace
// collapsed and clamped, or the fallback.
func DeriveTitle(messages []Message, fallback string) string {
	for _, m := range messages {
		if m.Role == RoleUser && strings.TrimSpace(m.Content) != "" {
			return clampText(util.CollapseWhitespace(m.Content), MaxTitleChars)
		}
	}
	title := clampText(fallback, MaxTitleChars)
	if title == "" {
		title = DefaultChatTitle
	}
	return title
}

// ComputeLastMessageAt returns the newest message timestamp, or the
// fallback when the list is empty. Returns 0 when neither exists.
func ComputeLastMessageAt(messages []Message, fallback int64) int64 {
	if len(messages) == 0 {
		if fallback > 0 {
			return fallback
		}
		return 0
	}
	var latest int64
	for _, m := range messages {
		t := m.UpdatedAt
		if t <= 0 {
			t = m.CreatedAt
		}
		if t > latest {
			latest = t
		}
	}
	return latest
}

// ComputeStats recomputes the derived per-session statistics. The byte
// estimate covers the fields that dominate storage cost.
func ComputeStats(s *ChatSession) SessionStats {
	return SessionStats{
		MessageCount: len(s.Messages),
		ApproxBytes: EstimateBytes(struct {
			ThreadID string      `json:"threadId"`
			Model    ModelConfig `json:"model"`
			Draft    Draft       `json:"draft"`
			Messages []Message   `json:"messages"`
		}{s.ThreadID, s.Model, s.Draft, s.Messages}),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// SanitizeSession repairs a whole session field by field. fallbackID is
// used when the session has no usable id (typically the chatsById map key).
func SanitizeSession(s *ChatSession, fallbackID string) *ChatSession {
	if s == nil {
		s = &ChatSession{}
	}
	cleaned := &ChatSession{}

	cleaned.ID = strings.TrimSpace(s.ID)
	if cleaned.ID == "" {
		cleaned.ID = strings.TrimSpace(fallbackID)
	}
	if cleaned.ID == "" {
		cleaned.ID = NewID("chat")
	}

	if s.CreatedAt > 0 {
		cleaned.CreatedAt = s.CreatedAt
	} else {
		cleaned.CreatedAt = NowMillis()
	}

	cleaned.Messages = SanitizeMessages(s.Messages)
	cleaned.Draft = SanitizeDraft(s.Draft)

	if s.UpdatedAt > 0 {
		cleaned.UpdatedAt = s.UpdatedAt
	} else {
		cleaned.UpdatedAt = max64(cleaned.CreatedAt, cleaned.Draft.UpdatedAt)
	}

	cleaned.Title = clampText(strings.TrimSpace(s.Title), MaxTitleChars)
	if cleaned.Title == "" {
		cleaned.Title = DeriveTitle(cleaned.Messages, DefaultChatTitle)
	}

	cleaned.LastMessageAt = ComputeLastMessageAt(cleaned.Messages, s.LastMessageAt)

	if strings.TrimSpace(s.ThreadID) != "" {
		cleaned.ThreadID = clampText(strings.TrimSpace(s.ThreadID), 200)
	}

	cleaned.Model = SanitizeModel(s.Model)
	cleaned.HasUnreadGeneratedReply = s.HasUnreadGeneratedReply
	cleaned.Stats = ComputeStats(cleaned)

	return cleaned
}

// NewChatSession creates an empty session with defaults applied.
func NewChatSession(title string) *ChatSession {
	seed := NowMillis()
	if strings.TrimSpace(title) == "" {
		title = DefaultChatTitle
	}
	return SanitizeSession(&ChatSession{
		ID:        NewID("chat"),
		Title:     title,
		CreatedAt: seed,
		UpdatedAt: seed,
		Model:     ModelConfig{ID: DefaultModelID},
		Draft:     Draft{UpdatedAt: seed},
	}, "")
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
