// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LIMITS & DEFAULTS
// =============================================================================

const (
	// SchemaVersion is the current store schema. Version 1 was the flat
	// {chatsById, chatOrder, activeChatId} shape and is migrated on read.
	SchemaVersion = 2

	MaxTextChars  = 100000
	MaxTitleChars = 120
	MaxDraftChars = 20000

	DefaultModelID     = "miso-unset"
	DefaultChatTitle   = "New Chat"
	DefaultFolderLabel = "New Folder"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// MessageStatus tracks the lifecycle of an assistant message.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusDone      MessageStatus = "done"
	StatusError     MessageStatus = "error"
	StatusCancelled MessageStatus = "cancelled"
)

// Valid reports whether the status is one of the closed set.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusStreaming, StatusDone, StatusError, StatusCancelled:
		return true
	}
	return false
}

// AttachmentKind distinguishes file payloads from links.
type AttachmentKind string

const (
	KindFile AttachmentKind = "file"
	KindLink AttachmentKind = "link"
)

// Valid reports whether the kind is one of the closed set.
func (k AttachmentKind) Valid() bool {
	switch k {
	case KindFile, KindLink:
		return true
	}
	return false
}

// AttachmentSource records where an attachment came from.
type AttachmentSource string

const (
	SourceLocal  AttachmentSource = "local"
	SourceURL    AttachmentSource = "url"
	SourcePasted AttachmentSource = "pasted"
)

// Valid reports whether the source is one of the closed set.
func (s AttachmentSource) Valid() bool {
	switch s {
	case SourceLocal, SourceURL, SourcePasted:
		return true
	}
	return false
}

// NodeEntity is the tree node discriminator.
type NodeEntity string

const (
	EntityFolder NodeEntity = "folder"
	EntityChat   NodeEntity = "chat"
)

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is durable conversation state: messages, draft, model
// settings and the external thread correlation id.
type ChatSession struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
	LastMessageAt int64  `json:"lastMessageAt,omitempty"` // 0 = no messages yet
	ThreadID      string `json:"threadId,omitempty"`

	Model    ModelConfig `json:"model"`
	Draft    Draft       `json:"draft"`
	Messages []Message   `json:"messages"`

	// HasUnreadGeneratedReply marks a finished assistant reply the user
	// has not looked at yet. Selecting the chat clears it.
	HasUnreadGeneratedReply bool `json:"hasUnreadGeneratedReply"`

	Stats SessionStats `json:"stats"`
}

// ModelConfig is the per-session model selection.
type ModelConfig struct {
	ID          string   `json:"id"`
	Provider    string   `json:"provider,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// Draft holds the not-yet-sent input for a session.
type Draft struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	UpdatedAt   int64        `json:"updatedAt"`
}

// SessionStats are derived on every mutation and never trusted from disk.
type SessionStats struct {
	MessageCount int `json:"messageCount"`
	ApproxBytes  int `json:"approxBytes"`
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single conversation entry.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	// Status is set for assistant messages only.
	Status MessageStatus `json:"status,omitempty"`

	// Attachments are carried by user messages only.
	Attachments []Attachment `json:"attachments,omitempty"`

	Meta *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta carries generation bookkeeping for a message.
type MessageMeta struct {
	Model     string        `json:"model,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
	Usage     *MessageUsage `json:"usage,omitempty"`
	Error     *MessageError `json:"error,omitempty"`
}

// MessageUsage records token accounting reported by the backend.
type MessageUsage struct {
	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`
	CompletionChars  *int `json:"completionChars,omitempty"`
}

// MessageError describes a failed generation.
type MessageError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// Attachment is a file or link staged on a draft or carried by a message.
type Attachment struct {
	ID        string           `json:"id"`
	Kind      AttachmentKind   `json:"kind"`
	Name      string           `json:"name"`
	Source    AttachmentSource `json:"source"`
	MimeType  string           `json:"mimeType,omitempty"`
	Ext       string           `json:"ext,omitempty"`
	Size      *int64           `json:"size,omitempty"`
	URL       string           `json:"url,omitempty"` // link kind only
	LocalRef  string           `json:"localRef,omitempty"`
	Checksum  string           `json:"checksum,omitempty"`
	CreatedAt int64            `json:"createdAt"`
}

// =============================================================================
// TREE
// =============================================================================

// TreeNode is an entry in the folder/chat hierarchy. Folders carry an
// ordered child id list; chat nodes reference exactly one session.
type TreeNode struct {
	ID        string     `json:"id"`
	Entity    NodeEntity `json:"entity"`
	Label     string     `json:"label"`
	ChatID    string     `json:"chatId,omitempty"`   // chat nodes only
	Children  []string   `json:"children,omitempty"` // folder nodes only
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// Tree is the folder/chat forest plus explorer selection state.
type Tree struct {
	Root              []string             `json:"root"`
	NodesByID         map[string]*TreeNode `json:"nodesById"`
	SelectedNodeID    string               `json:"selectedNodeId,omitempty"`
	ExpandedFolderIDs []string             `json:"expandedFolderIds"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is the persisted document: all sessions, the tree that organizes
// them, and recency bookkeeping for eviction.
type Store struct {
	SchemaVersion int                     `json:"schemaVersion"`
	UpdatedAt     int64                   `json:"updatedAt"`
	ActiveChatID  string                  `json:"activeChatId"`
	ChatsByID     map[string]*ChatSession `json:"chatsById"`
	Tree          *Tree                   `json:"tree"`
	LRUChatIDs    []string                `json:"lruChatIds"`

	// UI is opaque passthrough state owned by the front end.
	UI map[string]any `json:"ui"`
}

// =============================================================================
// IDS & CLOCK
// =============================================================================

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewID returns a fresh prefixed identifier, e.g. "chat-9f1c...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
