package domain

import "time"

// Domain contains core models shared across the pipeline.

// Network identifies an affiliate network acting as a source of offers.
type Network string

const (
	NetworkAwin    Network = "awin"
	NetworkRakuten Network = "rakuten"
)

// Offer is a candidate programme discovered from a network. Offers are
// ephemeral; only the posts derived from them are persisted.
type Offer struct {
	Network        Network
	ExternalID     string
	Name           string
	DestinationURL string
	Category       string
	LogoURL        string
}

// Status is the lifecycle state of a queued post.
type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// Programme tracks a programme the account has discovered but not necessarily
// joined yet. Applications are best-effort; approval is observed when the
// programme shows up in the network's joined/accepted feed, or granted
// manually by an operator.
type Programme struct {
	Network    Network    `json:"network"`
	ExternalID string     `json:"external_id"`
	Name       string     `json:"name,omitempty"`
	URL        string     `json:"url,omitempty"`
	Category   string     `json:"category,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
	AppliedAt  *time.Time `json:"applied_at,omitempty"`
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// Key identifies a programme across networks.
func (p Programme) Key() string {
	return string(p.Network) + "/" + p.ExternalID
}

// Post is a durable queue entry keyed by its tracking link. At most one post
// with a given link exists in the store at any time.
type Post struct {
	Link      string     `json:"link"`
	Caption   string     `json:"caption"`
	MediaURL  string     `json:"media_url,omitempty"`
	Platforms []string   `json:"platforms"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}
