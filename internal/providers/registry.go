package providers

import (
	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/credentials"
	"github.com/janekbaraniewski/usagebar/internal/providers/amp"
	"github.com/janekbaraniewski/usagebar/internal/providers/claude"
	"github.com/janekbaraniewski/usagebar/internal/providers/shared"
	"github.com/janekbaraniewski/usagebar/internal/providers/zai"
)

// Registry is the set of enabled providers plus the credential handles the
// CLI needs for watching and importing.
type Registry struct {
	Providers   []core.UsageProvider
	ClaudeFile  *credentials.ClaudeFile
	Credentials *credentials.Cache
}

// OpenCredentialStore picks the backend named by credential_backend.
func OpenCredentialStore(cfg config.Config) credentials.Store {
	if cfg.CredentialBackend == config.BackendFile {
		return credentials.NewFileStore(config.CredentialsPath())
	}
	return credentials.NewKeyringStore(credentials.DefaultKeyringService)
}

// Build constructs the enabled providers in display order: claude, zai, amp.
func Build(cfg config.Config, store credentials.Store) Registry {
	reg := Registry{
		ClaudeFile:  credentials.NewClaudeFile(cfg.Claude.CredentialsPath),
		Credentials: credentials.NewCache(store),
	}
	timeout := cfg.RequestTimeout()

	if cfg.Providers.Claude.Enabled {
		opts := []claude.Option{claude.WithHTTPClient(shared.NewHTTPClient(timeout))}
		if base := cfg.Providers.Claude.BaseURL; base != "" {
			opts = append(opts, claude.WithEndpoints(shared.JoinURL(base, claude.UsagePath), ""))
		}
		reg.Providers = append(reg.Providers, claude.New(reg.ClaudeFile, opts...))
	}
	if cfg.Providers.Zai.Enabled {
		reg.Providers = append(reg.Providers, zai.New(reg.Credentials,
			zai.WithHTTPClient(shared.NewHTTPClient(timeout)),
			zai.WithBaseURL(cfg.Providers.Zai.BaseURL),
			zai.WithThresholds(cfg.Tiers.ZaiThresholds),
		))
	}
	if cfg.Providers.Amp.Enabled {
		opts := []amp.Option{amp.WithHTTPClient(shared.NewNoRedirectClient(timeout))}
		if base := cfg.Providers.Amp.BaseURL; base != "" {
			opts = append(opts, amp.WithSettingsURL(shared.JoinURL(base, amp.SettingsPath)))
		}
		reg.Providers = append(reg.Providers, amp.New(reg.Credentials, opts...))
	}
	return reg
}

// ByID returns the provider with the given ID, if enabled.
func (r Registry) ByID(id string) (core.UsageProvider, bool) {
	for _, p := range r.Providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}
