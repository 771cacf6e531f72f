package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := NewFileStore(path)

	if _, err := s.Get("zai"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on missing file error = %v, want ErrNotFound", err)
	}
	if err := s.Set("zai", []byte("zai-key-123")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := s.Set("amp", []byte("cookie-value")); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := NewFileStore(path).Get("zai")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got) != "zai-key-123" {
		t.Errorf("Get = %q, want zai-key-123", got)
	}

	if err := s.Delete("zai"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get("zai"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete("zai"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if got, _ := s.Get("amp"); string(got) != "cookie-value" {
		t.Errorf("amp = %q, want cookie-value", got)
	}
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := NewFileStore(path).Set("zai", []byte("x")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path)
	if _, err := s.Get("zai"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on corrupt file error = %v, want parse error", err)
	}
	if err := s.Set("zai", []byte("recovered")); err != nil {
		t.Fatalf("Set over corrupt file error: %v", err)
	}
	if got, _ := s.Get("zai"); string(got) != "recovered" {
		t.Errorf("Get = %q, want recovered", got)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore("")
	if s.Service != DefaultKeyringService {
		t.Fatalf("Service = %q, want %q", s.Service, DefaultKeyringService)
	}

	if _, err := s.Get("usagebar-zai-credentials"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing error = %v, want ErrNotFound", err)
	}
	if err := s.Set("usagebar-zai-credentials", []byte("key-abc-123")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := s.Get("usagebar-zai-credentials")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got) != "key-abc-123" {
		t.Errorf("Get = %q, want key-abc-123", got)
	}
	if err := s.Delete("usagebar-zai-credentials"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := s.Delete("usagebar-zai-credentials"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDeleteMissing(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing error = %v, want ErrNotFound", err)
	}
}
