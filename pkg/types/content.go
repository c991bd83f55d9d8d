package types

import (
	"encoding/json"
	"fmt"
)

// ContentItem is one element of a message's content array: text,
// a tool call, or a reasoning block. Implementations are value types
// distinguished by their Kind().
type ContentItem interface {
	Kind() string
}

// TextContent is a plain text content block, optionally carrying a
// provider signature (used by Anthropic's extended-thinking mode).
type TextContent struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

func (TextContent) Kind() string { return "text" }

// ToolCallContent is an assistant-issued tool invocation.
type ToolCallContent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (ToolCallContent) Kind() string { return "tool_call" }

// ReasoningContent carries a provider's chain-of-thought item. Only
// OpenAI Responses/Codex populate ID/EncryptedContent; Anthropic uses
// Signature for its thinking-block verification tag.
type ReasoningContent struct {
	ID               string `json:"id,omitempty"`
	EncryptedContent string `json:"encryptedContent,omitempty"`
	Summary          string `json:"summary,omitempty"`
	Signature        string `json:"signature,omitempty"`
}

func (ReasoningContent) Kind() string { return "reasoning" }

// ImageContent is a base64-encoded image block, used in tool results
// (e.g. a screenshot) and in user messages that attach an image.
type ImageContent struct {
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
}

func (ImageContent) Kind() string { return "image" }

type contentEnvelope struct {
	Kind string `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalContentItem encodes a ContentItem as a kind-tagged envelope
// so a slice of the interface round-trips through storage/JSON.
func MarshalContentItem(item ContentItem) (json.RawMessage, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentEnvelope{Kind: item.Kind(), Data: data})
}

// UnmarshalContentItem decodes a kind-tagged envelope back into its
// concrete ContentItem type.
func UnmarshalContentItem(raw json.RawMessage) (ContentItem, error) {
	var env contentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "text":
		var v TextContent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "tool_call":
		var v ToolCallContent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "reasoning":
		var v ReasoningContent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "image":
		var v ImageContent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown content item kind %q", env.Kind)
	}
}

// ContentList is a slice of ContentItem that marshals/unmarshals as a
// JSON array of kind-tagged envelopes.
type ContentList []ContentItem

func (c ContentList) MarshalJSON() ([]byte, error) {
	envs := make([]contentEnvelope, 0, len(c))
	for _, item := range c {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		envs = append(envs, contentEnvelope{Kind: item.Kind(), Data: data})
	}
	return json.Marshal(envs)
}

func (c *ContentList) UnmarshalJSON(data []byte) error {
	var envs []json.RawMessage
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(ContentList, 0, len(envs))
	for _, raw := range envs {
		item, err := UnmarshalContentItem(raw)
		if err != nil {
			return err
		}
		out = append(out, item)
	}
	*c = out
	return nil
}
