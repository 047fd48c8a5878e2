// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strconv"

// IntToString converts an int to string.
// Uses strconv.Itoa for optimal performance.
func IntToString(i int) string {
	return strconv.Itoa(i)
}

// Int64ToString converts an int64 to string.
// Uses strconv.FormatInt for optimal performance.
func Int64ToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// BytesToHuman formats a byte count as a compact human-readable string,
// e.g. "4.2MB". Kept deliberately simple for status output.
func BytesToHuman(n int) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n >= mb:
		return strconv.FormatFloat(float64(n)/float64(mb), 'f', 1, 64) + "MB"
	case n >= kb:
		return strconv.FormatFloat(float64(n)/float64(kb), 'f', 1, 64) + "KB"
	default:
		return strconv.Itoa(n) + "B"
	}
}
