package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type fileContents struct {
	Keys map[string]string `json:"keys"` // credential name → secret
}

// FileStore keeps secrets in a 0600 JSON file. It is the fallback for
// headless machines without a keychain daemon.
type FileStore struct {
	path string
	mu   sync.Mutex // guards read-modify-write cycles
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := contents.Keys[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return []byte(v), nil
}

func (s *FileStore) Set(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		contents = fileContents{Keys: make(map[string]string)}
	}
	contents.Keys[name] = string(value)
	return s.write(contents)
}

func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := contents.Keys[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(contents.Keys, name)
	return s.write(contents)
}

func (s *FileStore) load() (fileContents, error) {
	contents := fileContents{Keys: make(map[string]string)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return contents, nil
		}
		return contents, fmt.Errorf("credentials: reading %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &contents); err != nil {
		return fileContents{Keys: make(map[string]string)}, fmt.Errorf("credentials: parsing %s: %w", s.path, err)
	}
	if contents.Keys == nil {
		contents.Keys = make(map[string]string)
	}
	return contents, nil
}

func (s *FileStore) write(contents fileContents) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("credentials: creating dir: %w", err)
	}
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: marshaling: %w", err)
	}
	data = append(data, '\n')
	return writeFileAtomic(s.path, data, 0o600)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("credentials: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("credentials: replacing %s: %w", path, err)
	}
	return nil
}
