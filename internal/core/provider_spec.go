package core

type ProviderAuthType string

const (
	ProviderAuthTypeUnknown ProviderAuthType = ""
	ProviderAuthTypeAPIKey  ProviderAuthType = "api_key"
	ProviderAuthTypeOAuth   ProviderAuthType = "oauth"
	ProviderAuthTypeCookie  ProviderAuthType = "cookie"
)

// ProviderAuthSpec defines how a provider authenticates and where its secret lives.
type ProviderAuthSpec struct {
	Type ProviderAuthType
	// CredentialKey is the stable name under which the secret is kept in the
	// credential store. Empty for providers backed by a file they do not own.
	CredentialKey string
	// MinLength rejects obviously truncated pastes before any request is made.
	MinLength int
}

// ProviderSetupSpec describes setup entry points and quickstart instructions.
type ProviderSetupSpec struct {
	DocsURL    string
	Quickstart []string
}

// ProviderSpec is the canonical provider definition used for registration and CLI metadata.
type ProviderSpec struct {
	ID    string
	Info  ProviderInfo
	Auth  ProviderAuthSpec
	Setup ProviderSetupSpec
}
