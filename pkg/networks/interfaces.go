package networks

import (
	"context"

	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/pkg/httpclient"
)

// Source retrieves recently approved offers for a network. Implementations
// return an error on any vendor failure; callers treat that as an empty
// result for the affected network only.
type Source interface {
	ID() string
	Discover(ctx context.Context, cfg Network) ([]domain.Offer, error)
}

// LinkBuilder turns an offer's destination URL into an affiliate-attributed
// tracking link. Callers fall back to the raw destination URL on error.
type LinkBuilder interface {
	TrackingLink(ctx context.Context, cfg Network, offer domain.Offer) (string, error)
}

// Applier lists programmes the account could join and submits applications.
// Applications are best-effort; some accounts reject programmatic applies, so
// callers log failures and move on.
type Applier interface {
	Available(ctx context.Context, cfg Network) ([]domain.Programme, error)
	Apply(ctx context.Context, cfg Network, externalID string) error
}

// SourceRegistry resolves the source, link builder, and applier for a
// network config.
type SourceRegistry interface {
	SourceFor(cfg Network) (Source, error)
	LinkBuilderFor(cfg Network) (LinkBuilder, error)
	ApplierFor(cfg Network) (Applier, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within networks.
type HTTPClient = httpclient.Client
