package networks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
)

// AwinAdapter implements Source and LinkBuilder for the Awin publisher API.
type AwinAdapter struct {
	client HTTPClient
	creds  AwinCredentials
}

// NewAwinAdapter builds an adapter for the Awin publisher API.
func NewAwinAdapter(client HTTPClient, creds AwinCredentials) *AwinAdapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &AwinAdapter{client: client, creds: creds}
}

func (a *AwinAdapter) ID() string { return TypeAwin }

// Discover lists programmes the publisher account has joined. Records missing
// an id or destination URL are dropped.
func (a *AwinAdapter) Discover(ctx context.Context, cfg Network) ([]domain.Offer, error) {
	if err := a.checkCreds(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/publishers/%s/programmes?relationship=joined", cfg.APIBase, a.creds.PublisherID)
	resp, err := a.client.Get(ctx, url, a.headers())
	if err != nil {
		return nil, fmt.Errorf("awin programmes fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("awin programmes returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	records, ok := decodeRecords(resp.Body(), "programmes")
	if !ok {
		return nil, fmt.Errorf("awin programmes response is not valid JSON")
	}

	offers := make([]domain.Offer, 0, len(records))
	for _, rec := range records {
		id := stringField(rec, "programmeId", "id")
		dest := stringField(rec, "clickThroughUrl", "merchantWebsite", "siteUrl", "website")
		if id == "" || dest == "" {
			continue
		}
		offers = append(offers, domain.Offer{
			Network:        domain.NetworkAwin,
			ExternalID:     id,
			Name:           stringField(rec, "programmeName", "name", "merchantName"),
			DestinationURL: dest,
			Category:       stringField(rec, "category", "vertical"),
			LogoURL:        stringField(rec, "logoUrl", "logo"),
		})
	}
	return offers, nil
}

// Available lists every programme visible to the publisher account,
// regardless of relationship. Used to seed the application ledger.
func (a *AwinAdapter) Available(ctx context.Context, cfg Network) ([]domain.Programme, error) {
	if err := a.checkCreds(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/publishers/%s/programmes", cfg.APIBase, a.creds.PublisherID)
	resp, err := a.client.Get(ctx, url, a.headers())
	if err != nil {
		return nil, fmt.Errorf("awin programmes fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("awin programmes returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	records, ok := decodeRecords(resp.Body(), "programmes")
	if !ok {
		return nil, fmt.Errorf("awin programmes response is not valid JSON")
	}

	now := time.Now().UTC()
	progs := make([]domain.Programme, 0, len(records))
	for _, rec := range records {
		id := stringField(rec, "programmeId", "id")
		if id == "" {
			continue
		}
		progs = append(progs, domain.Programme{
			Network:    domain.NetworkAwin,
			ExternalID: id,
			Name:       stringField(rec, "programmeName", "name", "merchantName"),
			URL:        stringField(rec, "clickThroughUrl", "merchantWebsite", "siteUrl", "website"),
			Category:   stringField(rec, "category", "vertical"),
			DetectedAt: now,
		})
	}
	return progs, nil
}

// Apply submits a programme application. Not every account supports the
// endpoint; a vendor rejection surfaces as an error the caller logs.
func (a *AwinAdapter) Apply(ctx context.Context, cfg Network, externalID string) error {
	if err := a.checkCreds(); err != nil {
		return err
	}
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("awin programme id is empty")
	}

	url := fmt.Sprintf("%s/publishers/%s/programmes/%s/apply", cfg.APIBase, a.creds.PublisherID, externalID)
	payload := map[string]any{"publisherId": a.creds.PublisherID}
	resp, err := a.client.PostJSON(ctx, url, a.headers(), payload)
	if err != nil {
		return fmt.Errorf("awin programme apply: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	}
	return fmt.Errorf("awin programme apply returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
}

// TrackingLink creates an Awin cread deep link for the offer's destination.
func (a *AwinAdapter) TrackingLink(ctx context.Context, cfg Network, offer domain.Offer) (string, error) {
	if err := a.checkCreds(); err != nil {
		return "", err
	}
	if strings.TrimSpace(offer.DestinationURL) == "" {
		return "", fmt.Errorf("awin offer %q has no destination url", offer.ExternalID)
	}

	url := fmt.Sprintf("%s/publishers/%s/cread/links", cfg.APIBase, a.creds.PublisherID)
	payload := map[string]any{
		"campaign":    "autoposter",
		"destination": offer.DestinationURL,
		"programmeId": offer.ExternalID,
	}
	resp, err := a.client.PostJSON(ctx, url, a.headers(), payload)
	if err != nil {
		return "", fmt.Errorf("awin cread link: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("awin cread link returned status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	records, ok := decodeRecords(resp.Body(), "links")
	if ok && len(records) > 0 {
		if link := stringField(records[0], "link", "trackingUrl", "tracking_link"); link != "" {
			return link, nil
		}
	}
	// Most accounts return a single object rather than a list.
	single, ok := decodeSingle(resp.Body())
	if ok {
		if link := stringField(single, "link", "trackingUrl", "tracking_link"); link != "" {
			return link, nil
		}
	}
	return "", fmt.Errorf("awin cread response contained no link")
}

func (a *AwinAdapter) checkCreds() error {
	if strings.TrimSpace(a.creds.APIToken) == "" || strings.TrimSpace(a.creds.PublisherID) == "" {
		return fmt.Errorf("awin credentials missing")
	}
	return nil
}

func (a *AwinAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.creds.APIToken}
}
