package openai

import "testing"

func TestParseModel_GroqExtensions(t *testing.T) {
	raw := `{"id":"llama-3.3-70b-versatile","object":"model","created":1733447754,"owned_by":"Meta","active":true,"context_window":131072,"max_completion_tokens":32768}`
	m := parseModel("llama-3.3-70b-versatile", 1733447754, "Meta", raw)

	if m.Active == nil || !*m.Active {
		t.Fatalf("Active = %v, want true", m.Active)
	}
	if m.ContextWindow != 131072 {
		t.Errorf("ContextWindow = %d, want 131072", m.ContextWindow)
	}
	if m.MaxOutputTokens != 32768 {
		t.Errorf("MaxOutputTokens = %d, want 32768", m.MaxOutputTokens)
	}
	if m.Created.Unix() != 1733447754 {
		t.Errorf("Created = %v", m.Created)
	}
	if m.OwnedBy != "Meta" {
		t.Errorf("OwnedBy = %q", m.OwnedBy)
	}
}

func TestParseModel_InactiveModel(t *testing.T) {
	m := parseModel("distil-whisper-large-v3-en", 0, "HF", `{"id":"distil-whisper-large-v3-en","active":false}`)
	if m.Active == nil || *m.Active {
		t.Fatalf("Active = %v, want false", m.Active)
	}
	if m.IsActive() {
		t.Error("IsActive() = true, want false")
	}
	if !m.Created.IsZero() {
		t.Errorf("Created = %v, want zero", m.Created)
	}
}

func TestParseModel_PlainOpenAI(t *testing.T) {
	m := parseModel("gpt-4o-mini", 1721172741, "system", `{"id":"gpt-4o-mini","object":"model","created":1721172741,"owned_by":"system"}`)
	if m.Active != nil {
		t.Errorf("Active = %v, want nil (unknown)", *m.Active)
	}
	if !m.IsActive() {
		t.Error("unknown activity should count as active")
	}
	if m.ContextWindow != 0 {
		t.Errorf("ContextWindow = %d, want 0", m.ContextWindow)
	}
}

func TestParseModel_Capabilities(t *testing.T) {
	m := parseModel("x", 0, "", `{"id":"x","capabilities":["speech","chat"]}`)
	if len(m.Capabilities) != 2 || m.Capabilities[0] != "speech" {
		t.Errorf("Capabilities = %v", m.Capabilities)
	}
}
