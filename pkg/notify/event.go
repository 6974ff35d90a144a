package notify

import "time"

// Event kinds emitted by the pipeline.
const (
	KindDiscover      = "discover"
	KindPublish       = "publish"
	KindPublishFailed = "publish_failed"
)

// Event represents a pipeline occurrence forwarded to alert sinks.
type Event struct {
	Kind       string    `json:"kind"`
	Network    string    `json:"network,omitempty"`
	Link       string    `json:"link,omitempty"`
	Count      int       `json:"count,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event stamped with the current time.
func NewEvent(kind string) Event {
	return Event{Kind: kind, OccurredAt: time.Now().UTC()}
}
