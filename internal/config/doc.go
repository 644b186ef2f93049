// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatdesk.
//
// Supports TOML, YAML, and JSON configuration files, .env files, environment
// variable overrides, defaults, validation, and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GatewayConfig: Groq credential, base URL, and timeout
//   - StorageConfig: Persistence backend and location
//   - ServerConfig: HTTP API listener, CORS, and rate limits
//   - ValidationErrors: Every problem found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GROQ_API_KEY, CHATDESK_*)
//   - .env.local and .env in the working directory
//   - ~/.chatdesk/config.toml (or .yaml, .yml, .json)
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on change:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        client.SetAPIKey(cfg.Gateway.APIKey)
//	    }
//	})
package config
