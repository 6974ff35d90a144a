package enrich

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/logger"
	"github.com/slickofficials/autoposter/pkg/httpclient"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	defaultDelay     = 250 * time.Millisecond
)

// Enricher fills missing offer media by scraping OG tags from the merchant
// page. Failures are per-offer and best-effort; the offer passes through
// unchanged on any error.
type Enricher struct {
	client httpclient.Client
	log    logger.Logger
	delay  time.Duration
}

// New constructs an enricher with the provided HTTP client.
func New(client httpclient.Client, log logger.Logger) *Enricher {
	if client == nil {
		client = httpclient.NewRestyClient(15 * time.Second)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Enricher{client: client, log: log, delay: defaultDelay}
}

// FillMedia fetches each offer's destination page (with throttling) and sets
// LogoURL from og:image when the network gave none.
func (e *Enricher) FillMedia(ctx context.Context, offers []domain.Offer) []domain.Offer {
	out := append([]domain.Offer(nil), offers...)

	for i, offer := range offers {
		select {
		case <-ctx.Done():
			return out
		default:
		}

		if offer.LogoURL != "" || offer.DestinationURL == "" {
			continue
		}

		img, err := e.fetchImage(ctx, offer.DestinationURL)
		if err != nil {
			e.log.WarnObj("offer media scrape failed", "scrape_error", map[string]any{
				"network": string(offer.Network),
				"url":     offer.DestinationURL,
				"error":   err.Error(),
			})
			continue
		}
		out[i].LogoURL = img

		if e.delay > 0 && i < len(offers)-1 {
			timer := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
	}

	return out
}

func (e *Enricher) fetchImage(ctx context.Context, url string) (string, error) {
	resp, err := e.client.Get(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	if node := doc.Find(`meta[property="og:image"]`).First(); node.Length() > 0 {
		if val, ok := node.Attr("content"); ok {
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	return "", fmt.Errorf("no og:image tag")
}
