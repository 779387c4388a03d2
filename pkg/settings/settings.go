// Package settings manages persistent user preferences for the noah CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Fallbacks used when a preference is unset
const (
	DefaultPageSize     = 10
	DefaultOutputFormat = "table"
	MaxPageSize         = 500
)

// Settings holds persistent user preferences
type Settings struct {
	// PageSize is the --limit used by list commands when not given
	PageSize int `json:"page_size,omitempty"`

	// OutputFormat is "table" or "json"
	OutputFormat string `json:"output_format,omitempty"`

	// LastUser prefills the login prompt
	LastUser string `json:"last_user,omitempty"`

	// DefaultOLT is the --olt filter for card and pon-port commands
	DefaultOLT string `json:"default_olt,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "noah_settings.json"
	}
	return filepath.Join(home, ".noah", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetPageSize sets the default list limit; 0 restores the fallback
func (s *Settings) SetPageSize(n int) error {
	if n < 0 || n > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	}
	s.PageSize = n
	return nil
}

// GetPageSize returns the page size (with fallback)
func (s *Settings) GetPageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return DefaultPageSize
}

// SetOutputFormat sets the default output format
func (s *Settings) SetOutputFormat(format string) error {
	switch format {
	case "", "table", "json":
		s.OutputFormat = format
		return nil
	}
	return fmt.Errorf("unknown output format %q (table, json)", format)
}

// GetOutputFormat returns the output format (with fallback)
func (s *Settings) GetOutputFormat() string {
	if s.OutputFormat != "" {
		return s.OutputFormat
	}
	return DefaultOutputFormat
}

// SetLastUser records the user of the last successful login
func (s *Settings) SetLastUser(user string) {
	s.LastUser = user
}

// SetDefaultOLT sets the OLT used to scope card and pon-port commands
func (s *Settings) SetDefaultOLT(uuid string) {
	s.DefaultOLT = uuid
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
