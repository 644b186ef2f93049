// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used across chatdesk.
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
package logging
