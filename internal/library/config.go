// Package library holds the multi-brand configuration: which catalog
// each brand talks to, its feature flags, and its capability strategy.
// One config value covers every brand; there is no per-brand subclassing.
package library

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Flags are the per-brand feature switches the formatting helpers read.
type Flags struct {
	ShowQueuePosition   bool `yaml:"show_queue_position"`
	EnableHistory       bool `yaml:"enable_history"`
	ShowOnlineResources bool `yaml:"show_online_resources"`
}

// Library is one branded catalog endpoint. OrgShortName is the Evergreen
// org-unit shortname used to scope org-specific online resource links.
type Library struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	OrgShortName string `yaml:"org,omitempty"`
	Capability   string `yaml:"capability,omitempty"`
	Flags        Flags  `yaml:"flags"`
}

// Caps resolves the brand's capability strategy.
func (l *Library) Caps() Capability {
	return CapabilityFor(l.Capability)
}

// Config models libraries.yml.
type Config struct {
	Default   string    `yaml:"default"`
	Libraries []Library `yaml:"libraries"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "libraries.yml")
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; seed one with hemlock libraries init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid libraries yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Libraries) == 0 {
		return fmt.Errorf("config.libraries is required")
	}
	seen := map[string]bool{}
	for i := range c.Libraries {
		l := &c.Libraries[i]
		if l.ID == "" {
			return fmt.Errorf("library %d has empty id", i)
		}
		if seen[l.ID] {
			return fmt.Errorf("duplicate library id %s", l.ID)
		}
		seen[l.ID] = true
		if l.BaseURL == "" {
			return fmt.Errorf("library %s has no base_url", l.ID)
		}
		u, err := url.Parse(l.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("library %s has invalid base_url %q", l.ID, l.BaseURL)
		}
		if !KnownCapability(l.Capability) {
			return fmt.Errorf("library %s references unknown capability %q", l.ID, l.Capability)
		}
	}
	if c.Default != "" && !seen[c.Default] {
		return fmt.Errorf("default library %s not defined", c.Default)
	}
	return nil
}

// Find returns the library with the given id.
func (c *Config) Find(id string) (*Library, bool) {
	for i := range c.Libraries {
		if c.Libraries[i].ID == id {
			return &c.Libraries[i], true
		}
	}
	return nil, false
}

// Active picks the library named by override, falling back to the
// configured default, falling back to a sole entry.
func (c *Config) Active(override string) (*Library, error) {
	id := override
	if id == "" {
		id = c.Default
	}
	if id == "" {
		if len(c.Libraries) == 1 {
			return &c.Libraries[0], nil
		}
		return nil, fmt.Errorf("library not specified; use --library or set a default")
	}
	l, ok := c.Find(id)
	if !ok {
		return nil, fmt.Errorf("unknown library %s", id)
	}
	return l, nil
}

// Save writes the config back to the workspace.
func (c *Config) Save(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal libraries yaml: %w", err)
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		// The embedded template always validates.
		panic(err)
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `default: demo

libraries:
  - id: demo
    name: Demo Public Library
    base_url: http://127.0.0.1:8787
    org: DEMO
    capability: generic
    flags:
      show_queue_position: true
      enable_history: true
      show_online_resources: true

  - id: concise
    name: Concise Consortium
    base_url: http://127.0.0.1:8787
    capability: concise
    flags:
      show_queue_position: false
      enable_history: false
      show_online_resources: true
`
