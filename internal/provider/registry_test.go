package provider

import "testing"

func TestRegistry_GetAndAllModels(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAnthropicAdapter(AnthropicConfig{APIKey: "k"}))
	reg.Register(NewOpenAIResponsesAdapter(OpenAIConfig{APIKey: "k"}))

	if _, err := reg.Get("anthropic"); err != nil {
		t.Fatalf("expected anthropic registered: %v", err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	models := reg.AllModels()
	if len(models) == 0 {
		t.Fatal("expected at least one model")
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].ProviderID > models[i].ProviderID {
			t.Fatal("models not sorted by provider id")
		}
	}
}

func TestRegistry_GetModel(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAnthropicAdapter(AnthropicConfig{APIKey: "k"}))

	m, err := reg.GetModel("anthropic", "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("GetModel failed: %v", err)
	}
	if m.ProviderID != "anthropic" {
		t.Errorf("unexpected provider id %q", m.ProviderID)
	}

	if _, err := reg.GetModel("anthropic", "no-such-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestParseModelString(t *testing.T) {
	cases := map[string][2]string{
		"anthropic/claude-sonnet-4-20250514": {"anthropic", "claude-sonnet-4-20250514"},
		"gpt-4o":                             {"", "gpt-4o"},
	}
	for in, want := range cases {
		p, m := ParseModelString(in)
		if p != want[0] || m != want[1] {
			t.Errorf("ParseModelString(%q) = (%q,%q), want (%q,%q)", in, p, m, want[0], want[1])
		}
	}
}
