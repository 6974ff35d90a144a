package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/logger"
	"github.com/slickofficials/autoposter/internal/storage"
	"github.com/slickofficials/autoposter/pkg/captions"
	"github.com/slickofficials/autoposter/pkg/publer"
)

// Package queue implements the deduplicated post queue and the at-most-once
// publish cycle. Every mutating entry point serializes behind one mutex so
// the load-decide-write sequences of enqueue and publish never interleave.

// Publisher delivers one post downstream. Single attempt; the Result says
// whether the vendor confirmed delivery.
type Publisher interface {
	Publish(ctx context.Context, caption, link, mediaURL string, platforms []string) publer.Result
}

// Candidate is one discovered offer ready to become a post.
type Candidate struct {
	Offer     domain.Offer
	Link      string
	Caption   string
	MediaURL  string
	Platforms []string
}

// CycleResult summarizes one publish cycle.
type CycleResult struct {
	Attempted int `json:"attempted"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Stats is a read-only snapshot of the queue.
type Stats struct {
	Total         int       `json:"total"`
	Pending       int       `json:"pending"`
	Posted        int       `json:"posted"`
	Failed        int       `json:"failed"`
	LastEnqueueAt time.Time `json:"last_enqueue_at,omitzero"`
	LastPublishAt time.Time `json:"last_publish_at,omitzero"`
}

// Service owns the post store and enforces the queue invariants.
type Service struct {
	mu          sync.Mutex
	store       storage.Store
	pub         Publisher
	log         logger.Logger
	batchSize   int
	maxAttempts int
	now         func() time.Time

	lastEnqueue time.Time
	lastPublish time.Time
}

// Option tweaks Service construction.
type Option func(*Service)

// WithBatchSize bounds how many pending posts one publish cycle attempts.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxAttempts moves a post to the terminal failed state once its attempt
// counter reaches n. Zero disables the cap, leaving failing posts pending.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the queue service around a store and a publisher.
func NewService(store storage.Store, pub Publisher, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Service{
		store:     store,
		pub:       pub,
		log:       log,
		batchSize: 5,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue appends the genuinely new candidates as pending posts. Duplicates
// against history and within the batch are silently skipped; the store sees
// exactly one append call per invocation. Returns the number added.
func (s *Service) Enqueue(ctx context.Context, cands []Candidate) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("queue service is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load posts: %w", err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.Link] = struct{}{}
	}

	fresh := make([]domain.Post, 0, len(cands))
	for _, c := range cands {
		if c.Link == "" {
			continue
		}
		if _, dup := seen[c.Link]; dup {
			continue
		}
		seen[c.Link] = struct{}{}
		fresh = append(fresh, domain.Post{
			Link:      c.Link,
			Caption:   c.Caption,
			MediaURL:  c.MediaURL,
			Platforms: c.Platforms,
			Status:    domain.StatusPending,
			CreatedAt: s.now().UTC(),
		})
	}

	if len(fresh) > 0 {
		if err := s.store.AppendBatch(fresh); err != nil {
			return 0, fmt.Errorf("append posts: %w", err)
		}
	}
	s.lastEnqueue = s.now()

	s.log.InfoObj("enqueue completed", "enqueue_result", map[string]any{
		"candidates": len(cands),
		"added":      len(fresh),
		"skipped":    len(cands) - len(fresh),
	})
	return len(fresh), nil
}

// PublishCycle delivers up to the configured batch of pending posts,
// oldest-created first. Each post is marked posted immediately after its
// confirmed success; a failure logs, bumps the attempt counter, and moves on
// to the next candidate without aborting the batch.
func (s *Service) PublishCycle(ctx context.Context) (CycleResult, error) {
	if s == nil || s.store == nil || s.pub == nil {
		return CycleResult{}, fmt.Errorf("queue service is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.LoadAll()
	if err != nil {
		return CycleResult{}, fmt.Errorf("load posts: %w", err)
	}

	pending := make([]domain.Post, 0, len(all))
	for _, p := range all {
		if p.Status == domain.StatusPending {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	batch := pending
	if len(batch) > s.batchSize {
		batch = batch[:s.batchSize]
	}

	res := CycleResult{}
	terminal := 0
	for _, post := range batch {
		if err := ctx.Err(); err != nil {
			break
		}
		res.Attempted++

		caption := captions.Substitute(post.Caption, post.Link)
		outcome := s.pub.Publish(ctx, caption, post.Link, post.MediaURL, post.Platforms)
		if outcome.OK {
			if err := s.store.MarkPosted(post.Link, s.now().UTC()); err != nil {
				return res, fmt.Errorf("mark posted %q: %w", post.Link, err)
			}
			res.Published++
			s.log.InfoObj("post published", "publish_result", map[string]any{
				"link":   post.Link,
				"detail": outcome.Detail,
			})
			continue
		}

		res.Failed++
		s.log.WarnObj("post publish failed", "publish_failure", map[string]any{
			"link":     post.Link,
			"attempts": post.Attempts + 1,
			"detail":   outcome.Detail,
		})
		if err := s.store.IncrementAttempts(post.Link); err != nil {
			s.log.ErrorObj("attempt counter update failed", "error", err.Error())
			continue
		}
		if s.maxAttempts > 0 && post.Attempts+1 >= s.maxAttempts {
			if err := s.store.MarkFailed(post.Link); err != nil {
				s.log.ErrorObj("mark failed update failed", "error", err.Error())
			} else {
				terminal++
			}
		}
	}

	res.Remaining = len(pending) - res.Published - terminal
	s.lastPublish = s.now()
	return res, nil
}

// Stats reports queue counts. An empty or missing store yields zeros.
func (s *Service) Stats() (Stats, error) {
	if s == nil || s.store == nil {
		return Stats{}, nil
	}

	counts, err := s.store.CountByStatus()
	if err != nil {
		return Stats{}, fmt.Errorf("count posts: %w", err)
	}

	s.mu.Lock()
	lastEnq, lastPub := s.lastEnqueue, s.lastPublish
	s.mu.Unlock()

	st := Stats{
		Pending:       counts[domain.StatusPending],
		Posted:        counts[domain.StatusPosted],
		Failed:        counts[domain.StatusFailed],
		LastEnqueueAt: lastEnq,
		LastPublishAt: lastPub,
	}
	st.Total = st.Pending + st.Posted + st.Failed
	return st, nil
}

// RecentPosts returns up to limit posts, newest-created first.
func (s *Service) RecentPosts(limit int) ([]domain.Post, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}

	all, err := s.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
