package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Registry maps provider id -> Adapter, and derives a flattened
// provider/model catalog from each registered adapter's Models().
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

func (r *Registry) Get(providerID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return a, nil
}

// GetModel looks up one model from a registered provider's catalog.
func (r *Registry) GetModel(providerID, modelID string) (Model, error) {
	a, err := r.Get(providerID)
	if err != nil {
		return Model{}, err
	}
	for _, m := range a.Models() {
		if m.ID == modelID {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model from every registered provider,
// sorted by provider then model id for stable listing.
func (r *Registry) AllModels() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []Model
	for _, a := range r.adapters {
		models = append(models, a.Models()...)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].ProviderID != models[j].ProviderID {
			return models[i].ProviderID < models[j].ProviderID
		}
		return models[i].ID < models[j].ID
	})
	return models
}

// InitializeFromConfig builds a Registry from the bootstrap config's
// llm section, registering one adapter per configured provider family
// that carries an API key. emit is wired to every adapter's
// llm.retry/llm.give_up transcript callback.
func InitializeFromConfig(cfg *config.Config, emit func(types.CustomPayload)) *Registry {
	registry := NewRegistry()

	if llm, ok := cfg.LLM["anthropic"]; ok && llm.APIKey != "" {
		registry.Register(NewAnthropicAdapter(AnthropicConfig{APIKey: llm.APIKey, BaseURL: llm.BaseURL, Emit: emit}))
	}
	if llm, ok := cfg.LLM["openai"]; ok && llm.APIKey != "" {
		registry.Register(NewOpenAIResponsesAdapter(OpenAIConfig{APIKey: llm.APIKey, BaseURL: llm.BaseURL, Emit: emit}))
	}
	if llm, ok := cfg.LLM["openai-codex"]; ok && llm.APIKey != "" {
		registry.Register(NewOpenAICodexAdapter(OpenAIConfig{APIKey: llm.APIKey, Emit: emit}))
	}

	return registry
}

// ParseModelString parses "provider/model" into its two parts.
func ParseModelString(s string) (providerID, modelID string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}
