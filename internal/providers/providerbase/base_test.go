package providerbase

import (
	"testing"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

func TestNew_AppliesDefaults(t *testing.T) {
	base := New(core.ProviderSpec{
		ID: "sample",
		Info: core.ProviderInfo{
			DocURL: "https://example.com/docs",
		},
		Auth: core.ProviderAuthSpec{Type: core.ProviderAuthTypeAPIKey},
	})

	spec := base.Spec()
	if spec.Setup.DocsURL != "https://example.com/docs" {
		t.Fatalf("setup docs = %q, want %q", spec.Setup.DocsURL, "https://example.com/docs")
	}
	if got := base.Describe().Name; got != "sample" {
		t.Fatalf("name = %q, want sample", got)
	}
	if got := base.CredentialKey(); got != "usagebar-sample-credentials" {
		t.Fatalf("credential key = %q, want usagebar-sample-credentials", got)
	}
}

func TestNew_OAuthHasNoStoreKey(t *testing.T) {
	base := New(core.ProviderSpec{
		ID:   "oauth",
		Auth: core.ProviderAuthSpec{Type: core.ProviderAuthTypeOAuth},
	})
	if got := base.CredentialKey(); got != "" {
		t.Fatalf("credential key = %q, want empty", got)
	}
}

func TestNew_EmptyIDFallsBackToUnknown(t *testing.T) {
	base := New(core.ProviderSpec{})
	if base.ID() != "unknown" {
		t.Fatalf("ID = %q, want unknown", base.ID())
	}
}

func TestNew_KeepsExplicitCredentialKey(t *testing.T) {
	base := New(core.ProviderSpec{
		ID:   "zai",
		Auth: core.ProviderAuthSpec{Type: core.ProviderAuthTypeAPIKey, CredentialKey: "custom"},
	})
	if got := base.CredentialKey(); got != "custom" {
		t.Fatalf("credential key = %q, want custom", got)
	}
}
