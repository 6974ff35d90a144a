package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slickofficials/autoposter/internal/analytics"
	"github.com/slickofficials/autoposter/internal/config"
	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/enrich"
	"github.com/slickofficials/autoposter/internal/logger"
	"github.com/slickofficials/autoposter/internal/queue"
	"github.com/slickofficials/autoposter/internal/storage"
	"github.com/slickofficials/autoposter/internal/web"
	"github.com/slickofficials/autoposter/pkg/captions"
	"github.com/slickofficials/autoposter/pkg/httpclient"
	"github.com/slickofficials/autoposter/pkg/networks"
	"github.com/slickofficials/autoposter/pkg/notify"
	"github.com/slickofficials/autoposter/pkg/publer"
)

// Pipeline represents the autoposter runtime. It coordinates network
// discovery, the post queue, the Publer client, the scheduler, and the
// dashboard server. It also handles storage initialization and cleanup.
type Pipeline struct {
	cfg      *config.Config
	log      logger.Logger
	store    storage.Store
	queue    *queue.Service
	netReg   *networks.ConfigRegistry
	sources  networks.SourceRegistry
	enricher *enrich.Enricher
	fanout   *notify.Fanout
	stats    *analytics.Repo
	server   *web.Server
	sched    *cron.Cron

	discoverEntry cron.EntryID
	publishEntry  cron.EntryID
}

// NewPipeline builds the full runtime from config files. A network or
// notifier misconfiguration is fatal; vendor credentials are not checked
// here because a missing credential must degrade at call time, not crash
// the process.
func NewPipeline(ctx context.Context, cfg *config.Config, log logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	netReg, err := networks.LoadRegistry(cfg.NetworksFile)
	if err != nil {
		return nil, fmt.Errorf("load networks registry: %w", err)
	}
	enabled := netReg.Enabled()
	networkIDs := make([]string, 0, len(enabled))
	for _, n := range enabled {
		networkIDs = append(networkIDs, n.ID)
	}
	log.InfoObj("networks registry loaded", "networks_meta", map[string]any{
		"count": len(networkIDs),
		"ids":   networkIDs,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	storePath := cfg.BBoltPath
	if cfg.StorageType == "sqlite" {
		storePath = cfg.SQLitePath
	}
	store, err := storage.NewStore(cfg.StorageType, storePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": storePath,
	})

	pubClient := publer.NewClient(cfg.PublerAPIKey, cfg.PublerAccountID, cfg.HTTPTimeout)
	queueSvc := queue.NewService(store, pubClient, log,
		queue.WithBatchSize(cfg.PublishBatchSize),
		queue.WithMaxAttempts(cfg.PublishMaxAttempts),
	)

	client := httpclient.NewRestyClient(cfg.HTTPTimeout)
	sources := networks.DefaultSourceRegistry(client, networks.Credentials{
		Awin: networks.AwinCredentials{
			APIToken:    cfg.AwinAPIToken,
			PublisherID: cfg.AwinPublisherID,
		},
		Rakuten: networks.RakutenCredentials{
			WSToken:       cfg.RakutenWSToken,
			SecurityToken: cfg.RakutenSecurityToken,
			ScopeID:       cfg.RakutenScopeID,
		},
	})

	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		store:   store,
		queue:   queueSvc,
		netReg:  netReg,
		sources: sources,
		fanout:  fanout,
		sched:   cron.New(),
	}

	if cfg.EnrichMedia {
		p.enricher = enrich.New(client, log)
	}

	var statsAPI web.Analytics
	if cfg.AnalyticsEnabled {
		repo, err := analytics.Open(cfg.AnalyticsDBPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init analytics: %w", err)
		}
		p.stats = repo
		statsAPI = repo
	}

	p.server = web.NewServer(cfg.HTTPAddr, cfg.DashboardToken, p, statsAPI, log)

	return p, nil
}

// buildFanout loads and instantiates the notifier sinks. A missing or broken
// notifiers file degrades to no notifiers rather than failing startup.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*notify.Fanout, error) {
	reg, err := notify.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		log.WarnObj("notifiers registry unavailable; alerts disabled", "notifiers_error", map[string]any{
			"file":  cfg.NotifiersFile,
			"error": err.Error(),
		})
		return notify.NewFanout(nil), nil
	}

	sinks, err := notify.BuildAll(ctx, notify.DefaultRegistry(), reg.Enabled(), log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}
	log.InfoObj("notifiers loaded", "notifiers_meta", map[string]any{"count": len(sinks)})
	return notify.NewFanout(sinks), nil
}

// DiscoverAndEnqueue polls every enabled network for approved offers, builds
// tracking links and captions, and enqueues the genuinely new posts. A
// network that fails is logged and skipped; the cycle continues with the
// remaining networks.
func (p *Pipeline) DiscoverAndEnqueue(ctx context.Context) (int, error) {
	if p == nil || p.queue == nil {
		return 0, fmt.Errorf("pipeline is not initialized")
	}

	p.trackProgrammes(ctx)

	var cands []queue.Candidate
	for _, netCfg := range p.netReg.Enabled() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		src, err := p.sources.SourceFor(netCfg)
		if err != nil {
			p.log.WarnObj("network has no source adapter", "network_error", map[string]any{
				"network": netCfg.ID,
				"error":   err.Error(),
			})
			continue
		}

		offers, err := src.Discover(ctx, netCfg)
		if err != nil {
			p.log.WarnObj("network discovery failed", "network_error", map[string]any{
				"network": netCfg.ID,
				"error":   err.Error(),
			})
			continue
		}

		p.markApproved(netCfg, offers)

		if p.enricher != nil {
			offers = p.enricher.FillMedia(ctx, offers)
		}

		builder, err := p.sources.LinkBuilderFor(netCfg)
		if err != nil {
			p.log.WarnObj("network has no link builder", "network_error", map[string]any{
				"network": netCfg.ID,
				"error":   err.Error(),
			})
			continue
		}

		for _, offer := range offers {
			link, err := builder.TrackingLink(ctx, netCfg, offer)
			if err != nil {
				p.log.WarnObj("tracking link unavailable; using destination url", "link_error", map[string]any{
					"network": netCfg.ID,
					"offer":   offer.ExternalID,
					"error":   err.Error(),
				})
				link = offer.DestinationURL
			}

			media := offer.LogoURL
			if media == "" {
				media = p.cfg.DefaultMediaURL
			}

			cands = append(cands, queue.Candidate{
				Offer:     offer,
				Link:      link,
				Caption:   captions.Build(offer.Name, offer.Network),
				MediaURL:  media,
				Platforms: p.cfg.DefaultPlatforms,
			})
		}
	}

	added, err := p.queue.Enqueue(ctx, cands)
	if err != nil {
		return 0, fmt.Errorf("enqueue discovered offers: %w", err)
	}

	evt := notify.NewEvent(notify.KindDiscover)
	evt.Count = added
	p.notifyEvent(ctx, evt)

	return added, nil
}

// PublishCycle delivers one bounded batch of pending posts.
func (p *Pipeline) PublishCycle(ctx context.Context) (queue.CycleResult, error) {
	if p == nil || p.queue == nil {
		return queue.CycleResult{}, fmt.Errorf("pipeline is not initialized")
	}

	res, err := p.queue.PublishCycle(ctx)
	if err != nil {
		return res, err
	}

	if res.Published > 0 {
		evt := notify.NewEvent(notify.KindPublish)
		evt.Count = res.Published
		p.notifyEvent(ctx, evt)
	}
	if res.Failed > 0 {
		evt := notify.NewEvent(notify.KindPublishFailed)
		evt.Count = res.Failed
		p.notifyEvent(ctx, evt)
	}
	return res, nil
}

// trackProgrammes records programmes the publisher could join and, when
// auto-apply is on, submits applications for the untouched ones. Everything
// here is best-effort; a vendor that rejects programmatic applications only
// produces a warning.
func (p *Pipeline) trackProgrammes(ctx context.Context) {
	if p.store == nil {
		return
	}

	for _, netCfg := range p.netReg.Enabled() {
		applier, err := p.sources.ApplierFor(netCfg)
		if err != nil {
			continue
		}
		progs, err := applier.Available(ctx, netCfg)
		if err != nil {
			p.log.WarnObj("programme listing failed", "network_error", map[string]any{
				"network": netCfg.ID,
				"error":   err.Error(),
			})
			continue
		}
		if err := p.store.AppendProgrammes(progs); err != nil {
			p.log.WarnObj("programme ledger write failed", "network_error", map[string]any{
				"network": netCfg.ID,
				"error":   err.Error(),
			})
		}
	}

	if !p.cfg.AutoApply {
		return
	}

	tracked, err := p.store.LoadProgrammes()
	if err != nil {
		p.log.WarnObj("programme ledger read failed", "error", err.Error())
		return
	}
	for _, prog := range tracked {
		if prog.Approved || prog.AppliedAt != nil {
			continue
		}
		netCfg, ok := p.networkForType(string(prog.Network))
		if !ok {
			continue
		}
		applier, err := p.sources.ApplierFor(netCfg)
		if err != nil {
			continue
		}
		if err := applier.Apply(ctx, netCfg, prog.ExternalID); err != nil {
			p.log.WarnObj("programme application failed", "apply_error", map[string]any{
				"network":   netCfg.ID,
				"programme": prog.ExternalID,
				"error":     err.Error(),
			})
			continue
		}
		if err := p.store.MarkProgrammeApplied(prog.Network, prog.ExternalID, time.Now().UTC()); err != nil {
			p.log.WarnObj("programme ledger update failed", "apply_error", map[string]any{
				"network":   netCfg.ID,
				"programme": prog.ExternalID,
				"error":     err.Error(),
			})
		}
	}
}

// markApproved flips tracked programmes to approved when they show up in the
// joined feed. Offers for programmes that were never tracked are not an error.
func (p *Pipeline) markApproved(netCfg networks.Network, offers []domain.Offer) {
	if p.store == nil {
		return
	}
	now := time.Now().UTC()
	for _, offer := range offers {
		err := p.store.MarkProgrammeApproved(offer.Network, offer.ExternalID, now)
		if err != nil && !errors.Is(err, storage.ErrProgrammeNotFound) {
			p.log.WarnObj("programme approval update failed", "network_error", map[string]any{
				"network":   netCfg.ID,
				"programme": offer.ExternalID,
				"error":     err.Error(),
			})
		}
	}
}

// PendingProgrammes lists tracked programmes that are not yet approved.
func (p *Pipeline) PendingProgrammes() ([]domain.Programme, error) {
	if p == nil || p.store == nil {
		return nil, fmt.Errorf("pipeline is not initialized")
	}
	tracked, err := p.store.LoadProgrammes()
	if err != nil {
		return nil, err
	}
	pending := make([]domain.Programme, 0, len(tracked))
	for _, prog := range tracked {
		if !prog.Approved {
			pending = append(pending, prog)
		}
	}
	return pending, nil
}

// ApproveProgramme marks a tracked programme approved and enqueues a post for
// it immediately. Returns the number of posts added, which is zero when the
// programme's link is already in the store.
func (p *Pipeline) ApproveProgramme(ctx context.Context, network, externalID string) (int, error) {
	if p == nil || p.store == nil || p.queue == nil {
		return 0, fmt.Errorf("pipeline is not initialized")
	}

	tracked, err := p.store.LoadProgrammes()
	if err != nil {
		return 0, err
	}
	var prog *domain.Programme
	for i := range tracked {
		if string(tracked[i].Network) == network && tracked[i].ExternalID == externalID {
			prog = &tracked[i]
			break
		}
	}
	if prog == nil {
		return 0, fmt.Errorf("%w: %s/%s", storage.ErrProgrammeNotFound, network, externalID)
	}

	offer := domain.Offer{
		Network:        prog.Network,
		ExternalID:     prog.ExternalID,
		Name:           prog.Name,
		DestinationURL: prog.URL,
		Category:       prog.Category,
	}

	link := offer.DestinationURL
	if netCfg, ok := p.networkForType(network); ok {
		if builder, err := p.sources.LinkBuilderFor(netCfg); err == nil {
			built, err := builder.TrackingLink(ctx, netCfg, offer)
			if err != nil {
				p.log.WarnObj("tracking link unavailable; using destination url", "link_error", map[string]any{
					"network": netCfg.ID,
					"offer":   offer.ExternalID,
					"error":   err.Error(),
				})
			} else {
				link = built
			}
		}
	}

	added := 0
	if link != "" {
		added, err = p.queue.Enqueue(ctx, []queue.Candidate{{
			Offer:     offer,
			Link:      link,
			Caption:   captions.Build(offer.Name, offer.Network),
			MediaURL:  p.cfg.DefaultMediaURL,
			Platforms: p.cfg.DefaultPlatforms,
		}})
		if err != nil {
			return 0, fmt.Errorf("enqueue approved programme: %w", err)
		}
	}

	if err := p.store.MarkProgrammeApproved(prog.Network, prog.ExternalID, time.Now().UTC()); err != nil {
		return added, err
	}
	return added, nil
}

// networkForType finds the first enabled network config of the given type.
func (p *Pipeline) networkForType(typ string) (networks.Network, bool) {
	for _, netCfg := range p.netReg.Enabled() {
		if netCfg.Type == typ {
			return netCfg, true
		}
	}
	return networks.Network{}, false
}

// Status assembles the dashboard snapshot.
func (p *Pipeline) Status() (web.Status, error) {
	stats, err := p.queue.Stats()
	if err != nil {
		return web.Status{}, err
	}

	st := web.Status{
		App:   p.cfg.AppName,
		Env:   p.cfg.Env,
		Queue: stats,
	}
	if pending, err := p.PendingProgrammes(); err == nil {
		st.PendingProgrammes = len(pending)
	}
	if entry := p.sched.Entry(p.discoverEntry); entry.Valid() {
		st.NextDiscoverAt = entry.Next
	}
	if entry := p.sched.Entry(p.publishEntry); entry.Valid() {
		st.NextPublishAt = entry.Next
	}
	return st, nil
}

// RecentPosts lists stored posts, newest first.
func (p *Pipeline) RecentPosts(limit int) ([]domain.Post, error) {
	return p.queue.RecentPosts(limit)
}

// Run starts the scheduler and the dashboard server and blocks until the
// context is cancelled or the server fails.
func (p *Pipeline) Run(ctx context.Context) error {
	if p == nil || p.queue == nil {
		return fmt.Errorf("pipeline is not initialized")
	}
	defer p.close()

	var err error
	p.discoverEntry, err = p.sched.AddFunc(everySpec(p.cfg.DiscoverInterval), func() {
		if _, err := p.DiscoverAndEnqueue(ctx); err != nil {
			p.log.ErrorObj("scheduled discovery failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule discovery: %w", err)
	}
	p.publishEntry, err = p.sched.AddFunc(everySpec(p.cfg.PublishInterval), func() {
		if _, err := p.PublishCycle(ctx); err != nil {
			p.log.ErrorObj("scheduled publish failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule publish: %w", err)
	}

	p.log.InfoObj("pipeline starting", "pipeline_state", map[string]any{
		"networks_count":    len(p.netReg.Enabled()),
		"notifiers_count":   p.fanout.Size(),
		"discover_interval": p.cfg.DiscoverInterval.String(),
		"publish_interval":  p.cfg.PublishInterval.String(),
		"http_addr":         p.cfg.HTTPAddr,
	})

	// First runs happen immediately; the cron entries cover the steady state.
	if _, err := p.DiscoverAndEnqueue(ctx); err != nil {
		p.log.ErrorObj("initial discovery failed", "error", err.Error())
	}
	if _, err := p.PublishCycle(ctx); err != nil {
		p.log.ErrorObj("initial publish failed", "error", err.Error())
	}

	p.sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- p.server.Start()
	}()

	select {
	case <-ctx.Done():
		p.log.InfoObj("pipeline stopping", "reason", ctx.Err().Error())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
	}

	stopCtx := p.sched.Stop()
	<-stopCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(shutdownCtx); err != nil {
		p.log.WarnObj("dashboard shutdown failed", "error", err.Error())
	}
	return nil
}

func (p *Pipeline) notifyEvent(ctx context.Context, evt notify.Event) {
	if p.fanout == nil {
		return
	}
	if _, err := p.fanout.Notify(ctx, evt); err != nil {
		p.log.WarnObj("notifier delivery incomplete", "notify_error", map[string]any{
			"kind":  evt.Kind,
			"error": err.Error(),
		})
	}
}

func (p *Pipeline) close() {
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.log.WarnObj("storage close failed", "error", err.Error())
		}
	}
	if p.stats != nil {
		if err := p.stats.Close(); err != nil {
			p.log.WarnObj("analytics close failed", "error", err.Error())
		}
	}
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
