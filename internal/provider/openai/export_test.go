// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/aisage-dev/aisage/internal/provider"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	return convertMessages(msgs, systemPrompt)
}
