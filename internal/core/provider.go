package core

import "context"

type ProviderInfo struct {
	Name         string   // e.g. "Claude", "Z.AI"
	Capabilities []string // "oauth_refresh", "quota_limit", "html_scrape"
	DocURL       string
}

// UsageProvider is implemented by each upstream client. FetchUsage returns
// usage and tier from a single upstream exchange.
type UsageProvider interface {
	ID() string
	Describe() ProviderInfo
	FetchUsage(ctx context.Context) (UsageSnapshot, error)
	HasCredential() bool
	ValidateCredential(ctx context.Context, candidate string) error
}

// CredentialWriter is implemented by providers whose secret is user supplied
// (pasted API key or session cookie).
type CredentialWriter interface {
	SaveCredential(value string) error
	DeleteCredential() error
}
