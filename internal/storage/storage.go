package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
)

// Package storage provides the durable post-queue abstraction.

// ErrNotFound is returned by link-keyed updates when no post has that link.
var ErrNotFound = fmt.Errorf("post not found")

// ErrProgrammeNotFound is returned by programme updates when no programme
// matches the (network, external id) pair.
var ErrProgrammeNotFound = fmt.Errorf("programme not found")

// Store is the durable, link-keyed post queue plus the programme-application
// ledger. Implementations must guarantee that at most one post exists per
// link and one programme per (network, external id), and must treat malformed
// persisted data as an empty store rather than failing.
type Store interface {
	Close() error
	LoadAll() ([]domain.Post, error)
	AppendBatch(posts []domain.Post) error
	MarkPosted(link string, at time.Time) error
	MarkFailed(link string) error
	IncrementAttempts(link string) error
	CountByStatus() (map[domain.Status]int, error)

	LoadProgrammes() ([]domain.Programme, error)
	AppendProgrammes(progs []domain.Programme) error
	MarkProgrammeApplied(network domain.Network, externalID string, at time.Time) error
	MarkProgrammeApproved(network domain.Network, externalID string, at time.Time) error
}

// NewStore creates the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openGorm(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error                                  { return nil }
func (noopStore) LoadAll() ([]domain.Post, error)               { return nil, nil }
func (noopStore) AppendBatch([]domain.Post) error               { return nil }
func (noopStore) MarkPosted(string, time.Time) error            { return nil }
func (noopStore) MarkFailed(string) error                       { return nil }
func (noopStore) IncrementAttempts(string) error                { return nil }
func (noopStore) CountByStatus() (map[domain.Status]int, error) { return map[domain.Status]int{}, nil }

func (noopStore) LoadProgrammes() ([]domain.Programme, error) { return nil, nil }
func (noopStore) AppendProgrammes([]domain.Programme) error   { return nil }

func (noopStore) MarkProgrammeApplied(domain.Network, string, time.Time) error  { return nil }
func (noopStore) MarkProgrammeApproved(domain.Network, string, time.Time) error { return nil }
