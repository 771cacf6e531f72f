package providers

import (
	"path/filepath"
	"testing"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/credentials"
)

func providerIDs(reg Registry) []string {
	ids := make([]string, 0, len(reg.Providers))
	for _, p := range reg.Providers {
		ids = append(ids, p.ID())
	}
	return ids
}

func TestBuild_DefaultOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Claude.CredentialsPath = filepath.Join(t.TempDir(), ".credentials.json")

	reg := Build(cfg, credentials.NewMemoryStore())
	got := providerIDs(reg)
	want := []string{"claude", "zai", "amp"}
	if len(got) != len(want) {
		t.Fatalf("providers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("providers = %v, want %v", got, want)
		}
	}
	if reg.ClaudeFile.Path() != cfg.Claude.CredentialsPath {
		t.Fatalf("claude path = %q, want %q", reg.ClaudeFile.Path(), cfg.Claude.CredentialsPath)
	}
}

func TestBuild_SkipsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Zai.Enabled = false

	reg := Build(cfg, credentials.NewMemoryStore())
	if _, ok := reg.ByID("zai"); ok {
		t.Fatal("zai should not be registered when disabled")
	}
	if _, ok := reg.ByID("amp"); !ok {
		t.Fatal("amp should be registered")
	}
}

func TestBuild_SharedCredentialCache(t *testing.T) {
	store := credentials.NewMemoryStore()
	reg := Build(config.DefaultConfig(), store)

	p, ok := reg.ByID("zai")
	if !ok {
		t.Fatal("zai missing")
	}
	writer, ok := p.(core.CredentialWriter)
	if !ok {
		t.Fatal("zai should accept pasted credentials")
	}
	if err := writer.SaveCredential("  abcdefghijkl  "); err != nil {
		t.Fatalf("SaveCredential() error: %v", err)
	}
	if !p.HasCredential() {
		t.Fatal("HasCredential() = false after save")
	}
	if _, ok := reg.ByID("claude"); !ok {
		t.Fatal("claude missing")
	}
	if _, ok := p.(interface{ CredentialKey() string }); !ok {
		t.Fatal("zai should expose its credential key")
	}
}

func TestOpenCredentialStore_Backend(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.CredentialBackend = config.BackendFile
	if _, ok := OpenCredentialStore(cfg).(*credentials.FileStore); !ok {
		t.Fatal("file backend should return *FileStore")
	}
	cfg.CredentialBackend = config.BackendKeyring
	if _, ok := OpenCredentialStore(cfg).(credentials.KeyringStore); !ok {
		t.Fatal("keyring backend should return KeyringStore")
	}
}
