package networks

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slickofficials/autoposter/pkg/httpclient"
)

const (
	TypeAwin    = "awin"
	TypeRakuten = "rakuten"
)

// Credentials carries the per-network API credentials. Empty credentials are
// legal; the affected source degrades to an error on use, which callers treat
// the same as a vendor failure.
type Credentials struct {
	Awin    AwinCredentials
	Rakuten RakutenCredentials
}

// AwinCredentials holds the Awin publisher API token and account id.
type AwinCredentials struct {
	APIToken    string
	PublisherID string
}

// RakutenCredentials holds the Rakuten web services tokens.
type RakutenCredentials struct {
	WSToken       string
	SecurityToken string
	ScopeID       string
}

// sourceRegistry implements SourceRegistry keyed by network type.
type sourceRegistry struct {
	mu       sync.RWMutex
	sources  map[string]Source
	builders map[string]LinkBuilder
	appliers map[string]Applier
}

// NewSourceRegistry builds a registry from type-keyed sources, link builders,
// and appliers.
func NewSourceRegistry(sources map[string]Source, builders map[string]LinkBuilder, appliers map[string]Applier) SourceRegistry {
	reg := &sourceRegistry{
		sources:  make(map[string]Source),
		builders: make(map[string]LinkBuilder),
		appliers: make(map[string]Applier),
	}
	for typ, s := range sources {
		key := strings.ToLower(strings.TrimSpace(typ))
		if key == "" || s == nil {
			continue
		}
		reg.sources[key] = s
	}
	for typ, b := range builders {
		key := strings.ToLower(strings.TrimSpace(typ))
		if key == "" || b == nil {
			continue
		}
		reg.builders[key] = b
	}
	for typ, a := range appliers {
		key := strings.ToLower(strings.TrimSpace(typ))
		if key == "" || a == nil {
			continue
		}
		reg.appliers[key] = a
	}
	return reg
}

func (r *sourceRegistry) SourceFor(cfg Network) (Source, error) {
	if r == nil {
		return nil, fmt.Errorf("source registry is nil")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if s, ok := r.sources[key]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no source registered for network %q (type %q)", cfg.ID, cfg.Type)
}

func (r *sourceRegistry) LinkBuilderFor(cfg Network) (LinkBuilder, error) {
	if r == nil {
		return nil, fmt.Errorf("source registry is nil")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if b, ok := r.builders[key]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("no link builder registered for network %q (type %q)", cfg.ID, cfg.Type)
}

func (r *sourceRegistry) ApplierFor(cfg Network) (Applier, error) {
	if r == nil {
		return nil, fmt.Errorf("source registry is nil")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if a, ok := r.appliers[key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no applier registered for network %q (type %q)", cfg.ID, cfg.Type)
}

// DefaultHTTPClient returns a tuned HTTP client for network adapters.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(20 * time.Second) }

// DefaultSourceRegistry wires up the known network adapters.
func DefaultSourceRegistry(client HTTPClient, creds Credentials) SourceRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	awin := NewAwinAdapter(client, creds.Awin)
	rakuten := NewRakutenAdapter(client, creds.Rakuten)

	return NewSourceRegistry(
		map[string]Source{
			TypeAwin:    awin,
			TypeRakuten: rakuten,
		},
		map[string]LinkBuilder{
			TypeAwin:    awin,
			TypeRakuten: rakuten,
		},
		map[string]Applier{
			TypeAwin:    awin,
			TypeRakuten: rakuten,
		},
	)
}
