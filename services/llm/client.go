// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the model-provider clients and the goal extractor built
// on top of them. Providers speak their native wire formats over plain
// net/http; callers program against the Client interface.
package llm

import "context"

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the optional knobs passed through to the provider.
// Nil pointers mean "use the provider default".
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	MaxTokens   *int
	Stop        []string
}

// Client is a chat-completion model provider.
//
// Thread Safety: implementations must be safe for concurrent use.
type Client interface {
	// Chat sends a conversation and returns the assistant's text reply.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}
