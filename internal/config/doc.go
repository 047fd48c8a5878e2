// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the PuPu chat store.
//
// Configuration sources, in order of precedence:
//   - PUPU_* environment variables
//   - ~/.pupu/config.toml
//   - Built-in defaults
//
// Everything has a working default; a missing config file is not an
// error.
package config
