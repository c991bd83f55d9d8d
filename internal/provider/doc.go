// Package provider turns a transcript-derived context into a
// provider-specific wire request and streams back a typed sequence of
// AssistantMessageEvent values.
//
// Three adapters are implemented directly against each provider's
// HTTP/SSE surface rather than through a chat-model abstraction
// layer: AnthropicAdapter (Messages API), OpenAIResponsesAdapter
// (Responses API), and OpenAICodexAdapter (the same Responses frame
// shape against the ChatGPT backend, with account-scoped headers and
// prompt-cache keys layered on top). Hand-rolling the transport keeps
// header injection, reasoning-item replay and cache-control placement
// under this package's direct control instead of behind a generic
// chat-model interface that would need its own escape hatches for
// those per-provider obligations.
//
// Request and response bodies are shaped after each provider's public
// API; where github.com/anthropics/anthropic-sdk-go already exports a
// JSON-tag-compatible value type (Usage) it's reused directly instead
// of redeclared. The OpenAI Responses event stream is a discriminated
// union keyed by "type" with no single settled Go shape across SDK
// versions, so its frames are decoded by hand into anonymous structs
// scoped to each event instead.
package provider
