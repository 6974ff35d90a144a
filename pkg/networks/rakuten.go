package networks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
)

// RakutenAdapter implements Source and LinkBuilder for the Rakuten
// Advertising web services API.
type RakutenAdapter struct {
	client HTTPClient
	creds  RakutenCredentials
}

// NewRakutenAdapter builds an adapter for the Rakuten web services API.
func NewRakutenAdapter(client HTTPClient, creds RakutenCredentials) *RakutenAdapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &RakutenAdapter{client: client, creds: creds}
}

func (r *RakutenAdapter) ID() string { return TypeRakuten }

// Discover lists advertisers that have accepted the publisher.
func (r *RakutenAdapter) Discover(ctx context.Context, cfg Network) ([]domain.Offer, error) {
	if strings.TrimSpace(r.creds.WSToken) == "" {
		return nil, fmt.Errorf("rakuten credentials missing")
	}

	q := r.baseQuery()
	q.Set("approvalStatus", "accepted")

	endpoint := cfg.APIBase + "/affiliate/1.0/getAdvertisers?" + q.Encode()
	resp, err := r.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("rakuten advertisers fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("rakuten advertisers returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	records, ok := decodeRecords(resp.Body(), "advertisers")
	if !ok {
		return nil, fmt.Errorf("rakuten advertisers response is not valid JSON")
	}

	offers := make([]domain.Offer, 0, len(records))
	for _, rec := range records {
		id := stringField(rec, "advertiserId", "id")
		dest := stringField(rec, "siteUrl", "domain")
		if id == "" || dest == "" {
			continue
		}
		offers = append(offers, domain.Offer{
			Network:        domain.NetworkRakuten,
			ExternalID:     id,
			Name:           stringField(rec, "advertiserName", "name"),
			DestinationURL: dest,
			Category:       stringField(rec, "category"),
			LogoURL:        stringField(rec, "logo"),
		})
	}
	return offers, nil
}

// Available lists advertisers the publisher has not yet joined. Used to
// seed the application ledger.
func (r *RakutenAdapter) Available(ctx context.Context, cfg Network) ([]domain.Programme, error) {
	if strings.TrimSpace(r.creds.WSToken) == "" {
		return nil, fmt.Errorf("rakuten credentials missing")
	}

	q := r.baseQuery()
	q.Set("approvalStatus", "available")

	endpoint := cfg.APIBase + "/affiliate/1.0/getAdvertisers?" + q.Encode()
	resp, err := r.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("rakuten advertisers fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("rakuten advertisers returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	records, ok := decodeRecords(resp.Body(), "advertisers")
	if !ok {
		return nil, fmt.Errorf("rakuten advertisers response is not valid JSON")
	}

	now := time.Now().UTC()
	progs := make([]domain.Programme, 0, len(records))
	for _, rec := range records {
		id := stringField(rec, "advertiserId", "id")
		if id == "" {
			continue
		}
		progs = append(progs, domain.Programme{
			Network:    domain.NetworkRakuten,
			ExternalID: id,
			Name:       stringField(rec, "advertiserName", "name"),
			URL:        stringField(rec, "siteUrl", "domain"),
			Category:   stringField(rec, "category"),
			DetectedAt: now,
		})
	}
	return progs, nil
}

// Apply submits an advertiser application. Applications are best-effort;
// a vendor rejection surfaces as an error the caller logs.
func (r *RakutenAdapter) Apply(ctx context.Context, cfg Network, externalID string) error {
	if strings.TrimSpace(r.creds.WSToken) == "" {
		return fmt.Errorf("rakuten credentials missing")
	}
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("rakuten advertiser id is empty")
	}

	q := r.baseQuery()
	q.Set("advertiserId", externalID)

	endpoint := cfg.APIBase + "/affiliate/1.0/apply?" + q.Encode()
	resp, err := r.client.PostJSON(ctx, endpoint, nil, map[string]any{})
	if err != nil {
		return fmt.Errorf("rakuten advertiser apply: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	}
	return fmt.Errorf("rakuten advertiser apply returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
}

func (r *RakutenAdapter) baseQuery() url.Values {
	q := url.Values{}
	q.Set("wsToken", r.creds.WSToken)
	if r.creds.SecurityToken != "" {
		q.Set("securityToken", r.creds.SecurityToken)
	}
	if r.creds.ScopeID != "" {
		q.Set("scopeId", r.creds.ScopeID)
	}
	return q
}

// TrackingLink asks the LinkLocator service for a tracking link.
func (r *RakutenAdapter) TrackingLink(ctx context.Context, cfg Network, offer domain.Offer) (string, error) {
	if strings.TrimSpace(r.creds.WSToken) == "" {
		return "", fmt.Errorf("rakuten credentials missing")
	}
	if strings.TrimSpace(offer.DestinationURL) == "" {
		return "", fmt.Errorf("rakuten offer %q has no destination url", offer.ExternalID)
	}

	q := r.baseQuery()
	q.Set("advertiserId", offer.ExternalID)
	q.Set("url", offer.DestinationURL)
	q.Set("u1", "autoposter")

	endpoint := cfg.APIBase + "/linklocator/1.0/getTrackingLink?" + q.Encode()
	resp, err := r.client.Get(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("rakuten tracking link: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("rakuten tracking link returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	record, ok := decodeSingle(resp.Body())
	if !ok {
		return "", fmt.Errorf("rakuten tracking link response is not valid JSON")
	}
	if link := stringField(record, "trackingLink", "url"); link != "" {
		return link, nil
	}
	return "", fmt.Errorf("rakuten tracking link response contained no link")
}
