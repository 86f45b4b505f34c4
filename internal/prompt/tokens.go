// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/jeranaias/vibecode/internal/model"
)

// perMessageOverhead approximates the role and framing tokens of one chat message.
const perMessageOverhead = 4

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate cl100k_base token count for text.
// When the codec is unavailable it falls back to four bytes per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	c, err := getCodec()
	if err != nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// EstimateMessages sums EstimateTokens over a conversation plus framing.
func EstimateMessages(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		n += perMessageOverhead + EstimateTokens(m.Content)
	}
	return n
}
