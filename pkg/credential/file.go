package credential

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultPath returns the default location of the credential file
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "noah_credential.json"
	}
	return filepath.Join(home, ".noah", "credential.json")
}

// FileStore persists the credential as a JSON file readable only by the owner
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path (DefaultPath when empty)
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath()
	}
	return &FileStore{path: path}
}

// Path returns the file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the credential. A missing file is an empty credential.
func (f *FileStore) Load(_ context.Context) (Credential, error) {
	var c Credential

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Save writes the credential, creating the directory if needed
func (f *FileStore) Save(_ context.Context, c Credential) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(f.path, data, 0600)
}

// Clear removes the credential file. Clearing an absent file succeeds.
func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
