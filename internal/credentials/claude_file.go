package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ClaudeTokenEnv overrides the credentials file with a raw access token.
// Such tokens carry no refresh token and are never refreshed.
const ClaudeTokenEnv = "CLAUDE_CODE_OAUTH_TOKEN"

const oauthKey = "claudeAiOauth"

// OAuthToken mirrors the claudeAiOauth object written by Claude Code.
type OAuthToken struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAt        *int64   `json:"-"` // epoch milliseconds
	Scopes           []string `json:"scopes,omitempty"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
	RateLimitTier    string   `json:"rateLimitTier,omitempty"`

	// TokenOnly is set when the token came from ClaudeTokenEnv.
	TokenOnly bool `json:"-"`
}

func (t *OAuthToken) UnmarshalJSON(data []byte) error {
	type plain OAuthToken
	aux := struct {
		*plain
		ExpiresAt *float64 `json:"expiresAt"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.ExpiresAt = nil
	if aux.ExpiresAt != nil {
		ms := int64(*aux.ExpiresAt)
		t.ExpiresAt = &ms
	}
	return nil
}

// ClaudeFile reads and writes ~/.claude/.credentials.json. The file belongs
// to Claude Code, so writes only touch the token fields and keep everything
// else in place.
type ClaudeFile struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cached   *OAuthToken
	cachedAt time.Time
	gen      uint64
}

// NewClaudeFile uses path when set, otherwise discovers the file under the
// user's home directory.
func NewClaudeFile(path string) *ClaudeFile {
	if path == "" {
		path = DefaultClaudeCredentialsPath()
	}
	return &ClaudeFile{path: path, ttl: CacheTTL, now: time.Now}
}

// DefaultClaudeCredentialsPath prefers .credentials.json, then
// credentials.json, and falls back to the dotted name when neither exists.
func DefaultClaudeCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".claude")
	dotPath := filepath.Join(dir, ".credentials.json")
	plainPath := filepath.Join(dir, "credentials.json")
	if _, err := os.Stat(dotPath); err == nil {
		return dotPath
	}
	if _, err := os.Stat(plainPath); err == nil {
		return plainPath
	}
	return dotPath
}

func (f *ClaudeFile) Path() string {
	return f.path
}

// SetClock replaces time.Now, mainly for tests.
func (f *ClaudeFile) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Load returns the current token, served from a short-lived cache.
func (f *ClaudeFile) Load() (OAuthToken, error) {
	if raw := os.Getenv(ClaudeTokenEnv); raw != "" {
		return OAuthToken{AccessToken: raw, TokenOnly: true}, nil
	}

	f.mu.Lock()
	if f.cached != nil && f.now().Sub(f.cachedAt) < f.ttl {
		tok := *f.cached
		f.mu.Unlock()
		return tok, nil
	}
	gen := f.gen
	f.mu.Unlock()

	tok, err := f.read()
	if err != nil {
		return OAuthToken{}, err
	}
	f.storeIfCurrent(gen, tok)
	return tok, nil
}

// storeIfCurrent caches tok unless the cache was invalidated after gen was
// observed, so a read that raced a save never shadows the newer token.
func (f *ClaudeFile) storeIfCurrent(gen uint64, tok OAuthToken) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return false
	}
	f.cached = &tok
	f.cachedAt = f.now()
	return true
}

func (f *ClaudeFile) Exists() bool {
	if os.Getenv(ClaudeTokenEnv) != "" {
		return true
	}
	_, err := f.Load()
	return err == nil
}

// SaveToken overwrites the token fields in place and invalidates the cache.
// The write is complete (temp file renamed over the existing one) before it returns.
func (f *ClaudeFile) SaveToken(accessToken, refreshToken string, expiresAtMs int64) error {
	root := map[string]json.RawMessage{}
	data, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("credentials: parsing %s (may be corrupted): %w", f.path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("credentials: reading %s: %w", f.path, err)
	}

	oauth := map[string]any{}
	if existing, ok := root[oauthKey]; ok {
		if err := json.Unmarshal(existing, &oauth); err != nil {
			return fmt.Errorf("credentials: parsing %s.%s: %w", f.path, oauthKey, err)
		}
	}
	oauth["accessToken"] = accessToken
	oauth["refreshToken"] = refreshToken
	oauth["expiresAt"] = expiresAtMs

	encoded, err := json.Marshal(oauth)
	if err != nil {
		return fmt.Errorf("credentials: marshaling token: %w", err)
	}
	root[oauthKey] = encoded

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: marshaling %s: %w", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("credentials: creating .claude dir: %w", err)
	}
	if err := writeFileAtomic(f.path, out, 0o600); err != nil {
		return err
	}

	f.Invalidate()
	return nil
}

func (f *ClaudeFile) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.cached = nil
}

// Watch drops the cached token whenever the file changes on disk, so edits
// made by Claude Code show up before the TTL runs out. It blocks until ctx
// is done.
func (f *ClaudeFile) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credentials: creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: Claude Code replaces the file instead of writing in place.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("credentials: watching %s: %w", dir, err)
	}

	name := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				log.Printf("credentials level=info event=claude_file_changed op=%s", event.Op)
				f.Invalidate()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("credentials level=warn event=watch_error error=%q", werr)
		}
	}
}

func (f *ClaudeFile) read() (OAuthToken, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return OAuthToken{}, fmt.Errorf("%w: %s (log in to Claude Code first)", ErrNotFound, f.path)
		}
		return OAuthToken{}, fmt.Errorf("credentials: reading %s: %w", f.path, err)
	}

	var root struct {
		OAuth *OAuthToken `json:"claudeAiOauth"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return OAuthToken{}, fmt.Errorf("credentials: parsing %s: %w", f.path, err)
	}
	if root.OAuth == nil || root.OAuth.AccessToken == "" {
		return OAuthToken{}, fmt.Errorf("%w: no %s.accessToken in %s", ErrNotFound, oauthKey, f.path)
	}
	return *root.OAuth, nil
}
