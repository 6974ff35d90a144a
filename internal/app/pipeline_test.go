package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slickofficials/autoposter/internal/config"
	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/logger"
)

// fakeAwin serves the Awin endpoints the pipeline hits. The joined feed holds
// programmes 101 and 202; the unfiltered listing adds 303 as joinable.
func fakeAwin(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/programmes"):
			progs := []map[string]any{
				{"programmeId": 101, "programmeName": "Shop A", "clickThroughUrl": "https://shopa.example"},
				{"programmeId": 202, "programmeName": "Shop B", "clickThroughUrl": "https://shopb.example"},
			}
			if r.URL.Query().Get("relationship") != "joined" {
				progs = append(progs, map[string]any{
					"programmeId": 303, "programmeName": "Shop C", "clickThroughUrl": "https://shopc.example",
				})
			}
			json.NewEncoder(w).Encode(progs)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/apply"):
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cread/links"):
			var req struct {
				ProgrammeID string `json:"programmeId"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"link": "https://track.awin/" + req.ProgrammeID})
		default:
			http.NotFound(w, r)
		}
	}))
}

// fakeRakuten serves the advertiser feed and the link locator.
func fakeRakuten(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getAdvertisers"):
			advertisers := []map[string]any{}
			if r.URL.Query().Get("approvalStatus") == "accepted" {
				advertisers = append(advertisers, map[string]any{
					"advertiserId": 555, "advertiserName": "Shop R", "siteUrl": "https://shopr.example",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"advertisers": advertisers})
		case strings.HasSuffix(r.URL.Path, "/getTrackingLink"):
			json.NewEncoder(w).Encode(map[string]string{"trackingLink": "https://click.rakuten/555"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func testConfig(t *testing.T, apiBase string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	networksYAML := `
networks:
  - id: awin-uk
    name: Awin UK
    type: awin
    api_base: ` + apiBase + `
`
	networksFile := filepath.Join(dir, "networks.yaml")
	if err := os.WriteFile(networksFile, []byte(networksYAML), 0o600); err != nil {
		t.Fatalf("write networks file: %v", err)
	}

	return &config.Config{
		AppName:          "autoposter",
		Env:              "test",
		LogLevel:         "error",
		NetworksFile:     networksFile,
		NotifiersFile:    filepath.Join(dir, "missing-notifiers.yaml"),
		DiscoverInterval: time.Hour,
		PublishInterval:  time.Hour,
		PublishBatchSize: 5,
		StorageType:      "bbolt",
		BBoltPath:        filepath.Join(dir, "posts.db"),
		HTTPAddr:         ":0",
		HTTPTimeout:      2 * time.Second,
		DefaultPlatforms: []string{"instagram", "facebook"},
		AwinAPIToken:     "token",
		AwinPublisherID:  "12345",
	}
}

func twoNetworkConfig(t *testing.T, awinBase, rakutenBase string) *config.Config {
	t.Helper()
	cfg := testConfig(t, awinBase)

	networksYAML := `
networks:
  - id: awin-uk
    name: Awin UK
    type: awin
    api_base: ` + awinBase + `
  - id: rakuten-us
    name: Rakuten Advertising
    type: rakuten
    api_base: ` + rakutenBase + `
`
	if err := os.WriteFile(cfg.NetworksFile, []byte(networksYAML), 0o600); err != nil {
		t.Fatalf("write networks file: %v", err)
	}
	cfg.RakutenWSToken = "ws-token"
	return cfg
}

func TestDiscoverAndEnqueueEndToEnd(t *testing.T) {
	srv := fakeAwin(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	p, err := NewPipeline(context.Background(), cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.close()

	added, err := p.DiscoverAndEnqueue(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAndEnqueue: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 posts added, got %d", added)
	}

	posts, err := p.RecentPosts(0)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 stored posts, got %d", len(posts))
	}
	links := map[string]bool{}
	for _, post := range posts {
		links[post.Link] = true
		if post.Status != domain.StatusPending {
			t.Fatalf("new post should be pending, got %s", post.Status)
		}
		if !strings.Contains(post.Caption, "[Link]") {
			t.Fatalf("caption missing placeholder: %q", post.Caption)
		}
		if len(post.Platforms) != 2 {
			t.Fatalf("default platforms not applied: %#v", post.Platforms)
		}
	}
	if !links["https://track.awin/101"] || !links["https://track.awin/202"] {
		t.Fatalf("tracking links not stored: %#v", links)
	}

	// A second run against the same feed adds nothing.
	added, err = p.DiscoverAndEnqueue(context.Background())
	if err != nil {
		t.Fatalf("second DiscoverAndEnqueue: %v", err)
	}
	if added != 0 {
		t.Fatalf("rerun should be deduplicated, added=%d", added)
	}
}

func TestDiscoverSurvivesNetworkOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	p, err := NewPipeline(context.Background(), cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.close()

	added, err := p.DiscoverAndEnqueue(context.Background())
	if err != nil {
		t.Fatalf("outage must not error the cycle: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected 0 posts, got %d", added)
	}
}

func TestDiscoverIsolatesFailingNetwork(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer down.Close()
	rak := fakeRakuten(t)
	defer rak.Close()

	cfg := twoNetworkConfig(t, down.URL, rak.URL)
	p, err := NewPipeline(context.Background(), cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.close()

	added, err := p.DiscoverAndEnqueue(context.Background())
	if err != nil {
		t.Fatalf("one failing network must not error the cycle: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected the healthy network's offer enqueued, added=%d", added)
	}

	posts, err := p.RecentPosts(0)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 1 || posts[0].Link != "https://click.rakuten/555" {
		t.Fatalf("unexpected stored posts: %#v", posts)
	}
}

func TestProgrammeApplicationWorkflow(t *testing.T) {
	srv := fakeAwin(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.AutoApply = true
	p, err := NewPipeline(context.Background(), cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.close()

	if _, err := p.DiscoverAndEnqueue(context.Background()); err != nil {
		t.Fatalf("DiscoverAndEnqueue: %v", err)
	}

	// 101 and 202 show up in the joined feed, so only 303 stays pending.
	pending, err := p.PendingProgrammes()
	if err != nil {
		t.Fatalf("PendingProgrammes: %v", err)
	}
	if len(pending) != 1 || pending[0].ExternalID != "303" {
		t.Fatalf("unexpected pending programmes: %#v", pending)
	}
	if pending[0].AppliedAt == nil {
		t.Fatalf("auto-apply should have stamped the application time")
	}

	added, err := p.ApproveProgramme(context.Background(), "awin", "303")
	if err != nil {
		t.Fatalf("ApproveProgramme: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 post enqueued for the approved programme, got %d", added)
	}

	pending, err = p.PendingProgrammes()
	if err != nil {
		t.Fatalf("PendingProgrammes: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("approved programme still pending: %#v", pending)
	}

	posts, err := p.RecentPosts(0)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	links := map[string]bool{}
	for _, post := range posts {
		links[post.Link] = true
	}
	if !links["https://track.awin/303"] {
		t.Fatalf("approved programme post not stored: %#v", links)
	}

	if _, err := p.ApproveProgramme(context.Background(), "awin", "999"); err == nil {
		t.Fatalf("expected error for untracked programme")
	}
}

func TestStatusSnapshot(t *testing.T) {
	srv := fakeAwin(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	p, err := NewPipeline(context.Background(), cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.close()

	if _, err := p.DiscoverAndEnqueue(context.Background()); err != nil {
		t.Fatalf("DiscoverAndEnqueue: %v", err)
	}

	st, err := p.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.App != "autoposter" || st.Env != "test" {
		t.Fatalf("unexpected identity: %#v", st)
	}
	if st.Queue.Pending != 2 || st.Queue.Total != 2 {
		t.Fatalf("unexpected queue stats: %#v", st.Queue)
	}
}
