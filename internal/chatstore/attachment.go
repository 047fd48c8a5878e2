// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
)

// CreateChatMessageAttachment sanitizes a loosely-shaped attachment value
// (as produced by a file picker or paste handler) before it is staged on
// a draft. Non-map input yields nil.
func CreateChatMessageAttachment(raw any) *model.Attachment {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	a := model.SanitizeAttachment(attachmentFromMap(m))
	return &a
}
