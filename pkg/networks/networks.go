package networks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Package networks contains pluggable affiliate network configs and the
// discovery/link-generation adapters for each supported network.

// Network describes one affiliate network entry declared in config files.
type Network struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Type    string         `json:"type" yaml:"type"`
	APIBase string         `json:"api_base" yaml:"api_base"`
	Enabled *bool          `json:"enabled" yaml:"enabled"`
	Config  map[string]any `json:"config" yaml:"config"`
}

type configFile struct {
	Networks []Network `json:"networks" yaml:"networks"`
}

// ConfigRegistry materializes network definitions loaded from config files.
type ConfigRegistry struct {
	mu       sync.RWMutex
	networks []Network
	idx      map[string]Network
}

// LoadRegistry loads the network registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("networks file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open networks file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}

	fileReg, err := parseNetworkFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Networks) == 0 {
		return nil, errors.New("networks file contains no network entries")
	}

	reg := &ConfigRegistry{
		networks: make([]Network, len(fileReg.Networks)),
		idx:      make(map[string]Network, len(fileReg.Networks)),
	}

	for i := range fileReg.Networks {
		n := sanitizeNetwork(fileReg.Networks[i])
		if err := validateNetwork(n); err != nil {
			return nil, fmt.Errorf("networks[%d]: %w", i, err)
		}
		if _, exists := reg.idx[n.ID]; exists {
			return nil, fmt.Errorf("duplicate network id %q", n.ID)
		}
		reg.networks[i] = n
		reg.idx[n.ID] = n
	}

	return reg, nil
}

func parseNetworkFile(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg configFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return configFile{}, errors.New("networks file format not recognized (expected YAML or JSON)")
}

func sanitizeNetwork(n Network) Network {
	n.ID = strings.TrimSpace(n.ID)
	n.Name = strings.TrimSpace(n.Name)
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	n.APIBase = strings.TrimRight(strings.TrimSpace(n.APIBase), "/")
	if n.Config == nil {
		n.Config = map[string]any{}
	}
	if n.Enabled == nil {
		def := true
		n.Enabled = &def
	}
	return n
}

func validateNetwork(n Network) error {
	if n.ID == "" {
		return errors.New("id is required")
	}
	if n.Name == "" {
		return fmt.Errorf("name is required for network %q", n.ID)
	}
	if n.Type == "" {
		return fmt.Errorf("type is required for network %q", n.ID)
	}
	if n.APIBase == "" {
		return fmt.Errorf("api_base is required for network %q", n.ID)
	}
	return nil
}

// ByID returns the network config by id.
func (r *ConfigRegistry) ByID(id string) (Network, bool) {
	if r == nil {
		return Network{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Network{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.idx[id]
	return n, ok
}

// All returns all configured networks.
func (r *ConfigRegistry) All() []Network {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Network, len(r.networks))
	copy(out, r.networks)
	return out
}

// Enabled returns networks that are enabled.
func (r *ConfigRegistry) Enabled() []Network {
	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]Network, 0, len(all))
	for _, n := range all {
		if n.EnabledValue() {
			out = append(out, n)
		}
	}
	return out
}

// EnabledValue returns the enabled flag defaulting to true.
func (n Network) EnabledValue() bool {
	if n.Enabled == nil {
		return true
	}
	return *n.Enabled
}
