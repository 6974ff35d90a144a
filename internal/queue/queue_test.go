package queue

import (
	"context"
	"testing"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/logger"
	"github.com/slickofficials/autoposter/internal/storage"
	"github.com/slickofficials/autoposter/pkg/publer"
)

// stubPublisher succeeds or fails per link and records every call.
type stubPublisher struct {
	failLinks map[string]bool
	calls     []string
}

func (s *stubPublisher) Publish(_ context.Context, _ string, link, _ string, _ []string) publer.Result {
	s.calls = append(s.calls, link)
	if s.failLinks[link] {
		return publer.Result{OK: false, Detail: "stub failure"}
	}
	return publer.Result{OK: true, Detail: "status 201"}
}

func newTestService(t *testing.T, pub Publisher, opts ...Option) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewStore("bbolt", t.TempDir()+"/posts.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, pub, logger.NopLogger{}, opts...), store
}

func cand(link string) Candidate {
	return Candidate{
		Link:      link,
		Caption:   "Deal! [Link]",
		Platforms: []string{"instagram"},
	}
}

func TestEnqueueDeduplicatesAgainstHistory(t *testing.T) {
	svc, store := newTestService(t, &stubPublisher{})
	ctx := context.Background()

	added, err := svc.Enqueue(ctx, []Candidate{cand("L1"), cand("L2")})
	if err != nil || added != 2 {
		t.Fatalf("first enqueue: added=%d err=%v", added, err)
	}

	added, err = svc.Enqueue(ctx, []Candidate{cand("L1"), cand("L3")})
	if err != nil || added != 1 {
		t.Fatalf("second enqueue: added=%d err=%v", added, err)
	}

	posts, _ := store.LoadAll()
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
}

func TestEnqueueCollapsesDuplicatesWithinBatch(t *testing.T) {
	svc, store := newTestService(t, &stubPublisher{})

	added, err := svc.Enqueue(context.Background(), []Candidate{cand("L1"), cand("L1")})
	if err != nil || added != 1 {
		t.Fatalf("enqueue: added=%d err=%v", added, err)
	}

	posts, _ := store.LoadAll()
	if len(posts) != 1 || posts[0].Link != "L1" {
		t.Fatalf("expected exactly one L1 post, got %#v", posts)
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	svc, store := newTestService(t, &stubPublisher{})
	ctx := context.Background()
	batch := []Candidate{cand("L1"), cand("L2")}

	if _, err := svc.Enqueue(ctx, batch); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	first, _ := store.LoadAll()

	added, err := svc.Enqueue(ctx, batch)
	if err != nil || added != 0 {
		t.Fatalf("repeat enqueue: added=%d err=%v", added, err)
	}
	second, _ := store.LoadAll()
	if len(first) != len(second) {
		t.Fatalf("store changed on repeat enqueue: %d -> %d", len(first), len(second))
	}
}

func TestEnqueueSkipsEmptyLinks(t *testing.T) {
	svc, _ := newTestService(t, &stubPublisher{})
	added, err := svc.Enqueue(context.Background(), []Candidate{cand(""), cand("L1")})
	if err != nil || added != 1 {
		t.Fatalf("enqueue: added=%d err=%v", added, err)
	}
}

func TestPublishCyclePartialFailure(t *testing.T) {
	// Spec scenario: L1 succeeds, L2 fails; L2 stays pending for retry.
	pub := &stubPublisher{failLinks: map[string]bool{"L2": true}}
	svc, store := newTestService(t, pub)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("L1"), cand("L2")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := svc.PublishCycle(ctx)
	if err != nil {
		t.Fatalf("PublishCycle: %v", err)
	}
	if res.Attempted != 2 || res.Published != 1 || res.Failed != 1 {
		t.Fatalf("unexpected cycle result: %#v", res)
	}

	posts, _ := store.LoadAll()
	byLink := map[string]domain.Post{}
	for _, p := range posts {
		byLink[p.Link] = p
	}
	if byLink["L1"].Status != domain.StatusPosted {
		t.Fatalf("L1 should be posted, got %s", byLink["L1"].Status)
	}
	if byLink["L2"].Status != domain.StatusPending {
		t.Fatalf("L2 should stay pending, got %s", byLink["L2"].Status)
	}

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.Posted != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestPublishCycleNeverRepublishes(t *testing.T) {
	pub := &stubPublisher{}
	svc, _ := newTestService(t, pub)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("L1")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := svc.PublishCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if _, err := svc.PublishCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if len(pub.calls) != 1 || pub.calls[0] != "L1" {
		t.Fatalf("publish should run exactly once for L1, calls=%v", pub.calls)
	}
}

func TestPublishCycleFailureKeepsRetrying(t *testing.T) {
	pub := &stubPublisher{failLinks: map[string]bool{"L1": true}}
	svc, store := newTestService(t, pub)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("L1")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.PublishCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if len(pub.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(pub.calls))
	}
	posts, _ := store.LoadAll()
	if posts[0].Status != domain.StatusPending || posts[0].Attempts != 3 {
		t.Fatalf("expected pending with 3 attempts, got %#v", posts[0])
	}
}

func TestPublishCycleMaxAttemptsTerminatesToFailed(t *testing.T) {
	pub := &stubPublisher{failLinks: map[string]bool{"L1": true}}
	svc, store := newTestService(t, pub, WithMaxAttempts(2))
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("L1")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.PublishCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	// Third cycle must not attempt a terminally failed post.
	if len(pub.calls) != 2 {
		t.Fatalf("expected 2 attempts before terminal failure, got %d", len(pub.calls))
	}
	posts, _ := store.LoadAll()
	if posts[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", posts[0].Status)
	}
}

func TestPublishCycleRemainingExcludesTerminalFailures(t *testing.T) {
	pub := &stubPublisher{failLinks: map[string]bool{"L1": true}}
	svc, _ := newTestService(t, pub, WithMaxAttempts(1))
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("L1"), cand("L2")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := svc.PublishCycle(ctx)
	if err != nil {
		t.Fatalf("PublishCycle: %v", err)
	}
	// L1 went terminal failed, L2 published; nothing is left pending.
	if res.Published != 1 || res.Failed != 1 {
		t.Fatalf("unexpected cycle result: %#v", res)
	}
	if res.Remaining != 0 {
		t.Fatalf("terminal failure counted as remaining: %#v", res)
	}

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 0 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestPublishCycleRespectsBatchSizeOldestFirst(t *testing.T) {
	pub := &stubPublisher{}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc, _ := newTestService(t, pub, WithBatchSize(2), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()

	for _, link := range []string{"L1", "L2", "L3"} {
		if _, err := svc.Enqueue(ctx, []Candidate{cand(link)}); err != nil {
			t.Fatalf("enqueue %s: %v", link, err)
		}
	}

	res, err := svc.PublishCycle(ctx)
	if err != nil {
		t.Fatalf("PublishCycle: %v", err)
	}
	if res.Attempted != 2 || res.Remaining != 1 {
		t.Fatalf("unexpected cycle result: %#v", res)
	}
	if len(pub.calls) != 2 || pub.calls[0] != "L1" || pub.calls[1] != "L2" {
		t.Fatalf("expected oldest-first batch [L1 L2], got %v", pub.calls)
	}
}

func TestPublishCycleSubstitutesLinkIntoCaption(t *testing.T) {
	var gotCaption string
	pub := &captureCaptionPublisher{captured: &gotCaption}
	svc, _ := newTestService(t, pub)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, []Candidate{cand("https://t.example/l1")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.PublishCycle(ctx); err != nil {
		t.Fatalf("PublishCycle: %v", err)
	}
	if gotCaption != "Deal! https://t.example/l1" {
		t.Fatalf("caption placeholder not substituted: %q", gotCaption)
	}
}

type captureCaptionPublisher struct {
	captured *string
}

func (c *captureCaptionPublisher) Publish(_ context.Context, caption, _, _ string, _ []string) publer.Result {
	*c.captured = caption
	return publer.Result{OK: true}
}

func TestStatsOnEmptyStore(t *testing.T) {
	svc, _ := newTestService(t, &stubPublisher{})
	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 0 || stats.Pending != 0 || stats.Posted != 0 {
		t.Fatalf("expected zero stats, got %#v", stats)
	}
}
