package provider

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const codexBaseURL = "https://chatgpt.com/backend-api/codex"

// OpenAICodexAdapter talks to the ChatGPT backend's Codex endpoint,
// which accepts the same Responses frame shape as the public API
// plus account-scoped headers and a session-keyed prompt cache.
type OpenAICodexAdapter struct{ *responsesAdapter }

func NewOpenAICodexAdapter(cfg OpenAIConfig) *OpenAICodexAdapter {
	accountID := chatgptAccountID(cfg.APIKey)

	a := newResponsesAdapter("openai-codex", cfg.APIKey, cfg.MaxRetries, cfg.Emit, openAIModels(), responsesVariant{
		endpoint: func() string { return codexBaseURL + "/responses" },
		extraHeaders: func(req StreamRequest, apiKey string) map[string]string {
			headers := map[string]string{
				"Authorization":      "Bearer " + apiKey,
				"chatgpt-account-id": accountID,
				"openai-beta":        "responses=experimental",
				"originator":         "pi",
			}
			if req.SessionID != "" {
				headers["conversation_id"] = req.SessionID
				headers["session_id"] = req.SessionID
			}
			return headers
		},
		mutateBody: func(body *openaiRequest, req StreamRequest) {
			if req.SessionID != "" {
				body.PromptCacheKey = req.SessionID
				body.PromptCacheRetention = "in-memory"
			}
		},
	})
	return &OpenAICodexAdapter{a}
}

// chatgptAccountID decodes the bearer JWT's
// "https://api.openai.com/auth.chatgpt_account_id" claim without
// validating the token's signature — Codex only uses this value to
// address the right account-scoped backend, the bearer token itself
// is what authenticates the request.
func chatgptAccountID(bearer string) string {
	parts := strings.Split(bearer, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims map[string]json.RawMessage
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	raw, ok := claims["https://api.openai.com/auth.chatgpt_account_id"]
	if !ok {
		return ""
	}
	var id string
	_ = json.Unmarshal(raw, &id)
	return id
}
